// Package notify creates, delivers and manages user notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/pkg/logger"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
	"github.com/fiscaldesk/support-platform/pkg/tracing"
)

const defaultEmailTimeout = 10 * time.Second

// TemplateRequest creates a notification from a registered template.
type TemplateRequest struct {
	TemplateName  string              `json:"template"`
	RecipientID   string              `json:"recipient_id"`
	RecipientType model.RecipientType `json:"recipient_type"`
	Variables     map[string]string   `json:"variables,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`

	// Overrides; zero values keep the template defaults.
	Priority     model.Priority `json:"priority,omitempty"`
	ActionURL    string         `json:"action_url,omitempty"`
	Icon         string         `json:"icon,omitempty"`
	Color        string         `json:"color,omitempty"`
	ExpiresHours *int           `json:"expires_hours,omitempty"`

	// SendEmail adds an email copy. Templates with the email channel send
	// one regardless.
	SendEmail bool `json:"send_email,omitempty"`
}

// CustomRequest creates a notification from literal text.
type CustomRequest struct {
	RecipientID   string              `json:"recipient_id"`
	RecipientType model.RecipientType `json:"recipient_type"`
	Title         string              `json:"title"`
	Message       string              `json:"message"`
	Type          string              `json:"type,omitempty"`
	Priority      model.Priority      `json:"priority,omitempty"`
	ActionURL     string              `json:"action_url,omitempty"`
	Icon          string              `json:"icon,omitempty"`
	Color         string              `json:"color,omitempty"`
	ExpiresHours  int                 `json:"expires_hours,omitempty"`
	SendEmail     bool                `json:"send_email,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
}

// Publisher announces persisted notifications, e.g. on the event bus.
type Publisher interface {
	PublishNotification(ctx context.Context, n *model.Notification) error
}

// Dispatcher persists notifications and sends the optional email copy in
// the background.
type Dispatcher struct {
	repo         store.NotificationRepository
	registry     *Registry
	mailer       Mailer
	publisher    Publisher
	emailTimeout time.Duration
	logger       *logger.Logger
	tracer       trace.Tracer
	now          func() time.Time

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMailer enables the email channel.
func WithMailer(m Mailer) Option {
	return func(d *Dispatcher) { d.mailer = m }
}

// WithPublisher announces every created notification.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithRegistry replaces the built-in template registry.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithEmailTimeout bounds each email send.
func WithEmailTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.emailTimeout = timeout
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(repo store.NotificationRepository, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:         repo,
		registry:     NewRegistry(),
		emailTimeout: defaultEmailTimeout,
		logger:       log.Component("notify"),
		tracer:       tracing.Tracer("notify"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateFromTemplate renders a template for one recipient and persists it.
func (d *Dispatcher) CreateFromTemplate(ctx context.Context, req *TemplateRequest) (*model.Notification, error) {
	if err := validateRecipient(req.RecipientID, req.RecipientType); err != nil {
		return nil, err
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", model.ErrValidation, req.Priority)
	}
	if req.ExpiresHours != nil && *req.ExpiresHours < 0 {
		return nil, fmt.Errorf("%w: expires_hours must not be negative", model.ErrValidation)
	}

	tmpl, ok := d.registry.Get(req.TemplateName)
	if !ok {
		return nil, fmt.Errorf("%w: template %q", model.ErrNotFound, req.TemplateName)
	}

	n := &model.Notification{
		RecipientID:   strings.TrimSpace(req.RecipientID),
		RecipientType: req.RecipientType,
		Title:         Render(tmpl.Title, req.Variables),
		Message:       Render(tmpl.Message, req.Variables),
		Type:          tmpl.Type,
		Priority:      tmpl.Priority,
		ActionURL:     Render(tmpl.ActionURL, req.Variables),
		Icon:          tmpl.Icon,
		Color:         tmpl.Color,
		Metadata:      withTemplate(req.Metadata, tmpl.Name),
	}
	if req.Priority != "" {
		n.Priority = req.Priority
	}
	if req.ActionURL != "" {
		n.ActionURL = req.ActionURL
	}
	if req.Icon != "" {
		n.Icon = req.Icon
	}
	if req.Color != "" {
		n.Color = req.Color
	}

	expires := tmpl.ExpiresHours
	if req.ExpiresHours != nil {
		expires = *req.ExpiresHours
	}
	return d.create(ctx, n, expires, tmpl.emailByDefault() || req.SendEmail)
}

// CreateCustom persists a notification with caller-supplied text.
func (d *Dispatcher) CreateCustom(ctx context.Context, req *CustomRequest) (*model.Notification, error) {
	if err := validateRecipient(req.RecipientID, req.RecipientType); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: title or message is required", model.ErrValidation)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", model.ErrValidation, req.Priority)
	}
	if req.ExpiresHours < 0 {
		return nil, fmt.Errorf("%w: expires_hours must not be negative", model.ErrValidation)
	}

	n := &model.Notification{
		RecipientID:   strings.TrimSpace(req.RecipientID),
		RecipientType: req.RecipientType,
		Title:         strings.TrimSpace(req.Title),
		Message:       strings.TrimSpace(req.Message),
		Type:          req.Type,
		Priority:      req.Priority,
		ActionURL:     req.ActionURL,
		Icon:          req.Icon,
		Color:         req.Color,
		Metadata:      req.Metadata,
	}
	if n.Type == "" {
		n.Type = "custom"
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}
	if n.Icon == "" {
		n.Icon = "bell"
	}

	return d.create(ctx, n, req.ExpiresHours, req.SendEmail)
}

func (d *Dispatcher) create(ctx context.Context, n *model.Notification, expiresHours int, sendEmail bool) (*model.Notification, error) {
	ctx, span := d.tracer.Start(ctx, "notify.create", trace.WithAttributes(
		attribute.String("type", n.Type),
		attribute.String("recipient_type", string(n.RecipientType)),
	))
	defer span.End()

	n.ID = uuid.Must(uuid.NewV7()).String()
	n.CreatedAt = d.now()
	if expiresHours > 0 {
		expiresAt := n.CreatedAt.Add(time.Duration(expiresHours) * time.Hour)
		n.ExpiresAt = &expiresAt
	}

	if err := d.repo.CreateNotification(ctx, n); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	metrics.NotificationsTotal.WithLabelValues(n.Type, string(n.RecipientType)).Inc()
	d.logger.Debug("notification created",
		zap.String("notification_id", n.ID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("type", n.Type),
	)

	if d.publisher != nil {
		if err := d.publisher.PublishNotification(ctx, n); err != nil {
			d.logger.Warn("failed to publish notification", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}

	if sendEmail {
		d.sendEmail(n)
	}
	return n, nil
}

// sendEmail delivers the email copy in the background. Failures are logged
// and leave EmailSent false; the notification itself stays.
func (d *Dispatcher) sendEmail(n *model.Notification) {
	if d.mailer == nil {
		d.logger.Debug("email requested but no mailer configured", zap.String("notification_id", n.ID))
		return
	}

	email := &Email{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		RecipientType:  n.RecipientType,
		Subject:        n.Title,
		Body:           n.Message,
		ActionURL:      n.ActionURL,
		Priority:       n.Priority,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.emailTimeout)
		defer cancel()

		if err := d.mailer.Send(ctx, email); err != nil {
			if !errors.Is(err, model.ErrTransientDelivery) {
				err = fmt.Errorf("%w: %v", model.ErrTransientDelivery, err)
			}
			metrics.EmailDeliveries.WithLabelValues("failed").Inc()
			d.logger.Warn("email delivery failed",
				zap.String("notification_id", email.NotificationID),
				zap.String("recipient_id", email.RecipientID),
				zap.Error(err),
			)
			return
		}

		if err := d.repo.SetEmailSent(ctx, email.NotificationID, true); err != nil {
			d.logger.Error("failed to record email delivery",
				zap.String("notification_id", email.NotificationID),
				zap.Error(err),
			)
			return
		}
		metrics.EmailDeliveries.WithLabelValues("sent").Inc()
	}()
}

// Wait blocks until in-flight emails finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// List returns a recipient's unexpired notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, recipientID string, unreadOnly bool) ([]model.Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, fmt.Errorf("%w: recipient id is required", model.ErrValidation)
	}
	return d.repo.ListNotifications(ctx, recipientID, unreadOnly, d.now())
}

// MarkRead marks one of the recipient's notifications read.
func (d *Dispatcher) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	n, err := d.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.RecipientID != recipientID {
		return fmt.Errorf("%w: notification %s", model.ErrNotFound, notificationID)
	}
	if n.Read {
		return nil
	}
	return d.repo.MarkRead(ctx, notificationID, d.now())
}

// MarkAllRead marks every unread notification of the recipient read.
func (d *Dispatcher) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if strings.TrimSpace(recipientID) == "" {
		return 0, fmt.Errorf("%w: recipient id is required", model.ErrValidation)
	}
	return d.repo.MarkAllRead(ctx, recipientID, d.now())
}

// PurgeExpired deletes expired notifications.
func (d *Dispatcher) PurgeExpired(ctx context.Context) (int, error) {
	n, err := d.repo.DeleteExpired(ctx, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	if n > 0 {
		d.logger.Info("purged expired notifications", zap.Int("count", n))
	}
	return n, nil
}

// RunJanitor purges expired notifications on every interval until ctx is done.
func (d *Dispatcher) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.PurgeExpired(ctx); err != nil {
				d.logger.Error("notification janitor failed", zap.Error(err))
			}
		}
	}
}

func validateRecipient(id string, typ model.RecipientType) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: recipient id is required", model.ErrValidation)
	}
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown recipient type %q", model.ErrValidation, typ)
	}
	return nil
}

func withTemplate(metadata map[string]string, name string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["template"] = name
	return out
}
