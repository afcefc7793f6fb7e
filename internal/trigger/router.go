package trigger

import (
	"context"
	"fmt"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
)

// Router dispatches domain event envelopes to the matching trigger.
type Router struct {
	triggers *Triggers
}

// NewRouter creates a router.
func NewRouter(triggers *Triggers) *Router {
	return &Router{triggers: triggers}
}

// Handle routes one event.
func (r *Router) Handle(ctx context.Context, event *model.DomainEvent) (*BroadcastResult, error) {
	result, err := r.route(ctx, event)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result != nil && len(result.Failed()) > 0:
		status = "partial"
	}
	metrics.DomainEventsConsumed.WithLabelValues(string(event.Type), status).Inc()

	return result, err
}

func (r *Router) route(ctx context.Context, event *model.DomainEvent) (*BroadcastResult, error) {
	switch event.Type {
	case model.DomainAppointmentCreated:
		return r.triggers.OnAppointmentCreated(ctx, event.Appointment)
	case model.DomainAppointmentStatusChanged:
		newStatus := event.NewStatus
		if newStatus == "" && event.Appointment != nil {
			newStatus = event.Appointment.Status
		}
		return r.triggers.OnAppointmentStatusChanged(ctx, event.Appointment, event.OldStatus, newStatus)
	case model.DomainTrainingAssigned:
		return r.triggers.OnTrainingAssigned(ctx, event.Training, event.StudentID)
	case model.DomainTrainingCompleted:
		return r.triggers.OnTrainingCompleted(ctx, event.Training, event.StudentID, event.Score)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", model.ErrValidation, event.Type)
	}
}
