package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// Directory resolves who belongs to each recipient group. The user store
// lives outside this service.
type Directory interface {
	Coordinators(ctx context.Context) ([]string, error)
	Students(ctx context.Context) ([]string, error)

	// AssignedSpecialist returns the student staffing an appointment, or ""
	// when nobody is assigned.
	AssignedSpecialist(ctx context.Context, appointmentID string) (string, error)
}

// StaticDirectory serves fixed ID lists, typically from configuration.
type StaticDirectory struct {
	CoordinatorIDs []string
	StudentIDs     []string
}

// Coordinators implements Directory.
func (d *StaticDirectory) Coordinators(context.Context) ([]string, error) {
	return append([]string(nil), d.CoordinatorIDs...), nil
}

// Students implements Directory.
func (d *StaticDirectory) Students(context.Context) ([]string, error) {
	return append([]string(nil), d.StudentIDs...), nil
}

// AssignedSpecialist implements Directory. A static directory knows no assignments.
func (d *StaticDirectory) AssignedSpecialist(context.Context, string) (string, error) {
	return "", nil
}

// HTTPDirectory queries the portal's user service.
type HTTPDirectory struct {
	client *resty.Client
}

// NewHTTPDirectory creates a directory backed by the user service at baseURL.
func NewHTTPDirectory(baseURL, token string, timeout time.Duration) *HTTPDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPDirectory{client: client}
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

type assigneeResponse struct {
	ID string `json:"id"`
}

// Coordinators implements Directory.
func (d *HTTPDirectory) Coordinators(ctx context.Context) ([]string, error) {
	return d.ids(ctx, "coordinator")
}

// Students implements Directory.
func (d *HTTPDirectory) Students(ctx context.Context) ([]string, error) {
	return d.ids(ctx, "student")
}

func (d *HTTPDirectory) ids(ctx context.Context, role string) ([]string, error) {
	var out idsResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParam("role", role).
		SetResult(&out).
		Get("/users")
	if err != nil {
		return nil, fmt.Errorf("%w: directory: %v", model.ErrTransientDelivery, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: directory returned %s", model.ErrTransientDelivery, resp.Status())
	}
	return out.IDs, nil
}

// AssignedSpecialist implements Directory.
func (d *HTTPDirectory) AssignedSpecialist(ctx context.Context, appointmentID string) (string, error) {
	var out assigneeResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", appointmentID).
		SetResult(&out).
		Get("/appointments/{id}/assignee")
	if err != nil {
		return "", fmt.Errorf("%w: directory: %v", model.ErrTransientDelivery, err)
	}
	switch {
	case resp.StatusCode() == 404:
		return "", nil
	case resp.IsError():
		return "", fmt.Errorf("%w: directory returned %s", model.ErrTransientDelivery, resp.Status())
	}
	return out.ID, nil
}
