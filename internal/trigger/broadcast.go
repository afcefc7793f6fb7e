package trigger

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/notify"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
)

// Delivery is the outcome of notifying one recipient.
type Delivery struct {
	RecipientID    string `json:"recipient_id"`
	Template       string `json:"template"`
	NotificationID string `json:"notification_id,omitempty"`
	Err            error  `json:"-"`
}

// BroadcastResult collects every delivery of a trigger, failed or not.
type BroadcastResult struct {
	Deliveries []Delivery `json:"deliveries"`
}

// Succeeded returns how many deliveries persisted a notification.
func (r *BroadcastResult) Succeeded() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the failed deliveries.
func (r *BroadcastResult) Failed() []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Err joins the delivery errors, or returns nil when all succeeded.
func (r *BroadcastResult) Err() error {
	var errs []error
	for _, d := range r.Failed() {
		errs = append(errs, fmt.Errorf("recipient %s: %w", d.RecipientID, d.Err))
	}
	return errors.Join(errs...)
}

func (r *BroadcastResult) merge(other *BroadcastResult) {
	if other != nil {
		r.Deliveries = append(r.Deliveries, other.Deliveries...)
	}
}

// lookupFailed records a recipient group that could not be resolved as one
// failed delivery, so the rest of the trigger still runs.
func lookupFailed(group, recipient, template string, err error) *BroadcastResult {
	metrics.BroadcastRecipients.WithLabelValues(group, "failed").Inc()
	return &BroadcastResult{Deliveries: []Delivery{{RecipientID: recipient, Template: template, Err: err}}}
}

// fanOut sends one templated notification per recipient with at most
// workers in flight. A failed recipient never stops the others.
func (t *Triggers) fanOut(ctx context.Context, group string, recipients []string, recipientType model.RecipientType, template string, vars, metadata map[string]string) *BroadcastResult {
	result := &BroadcastResult{Deliveries: make([]Delivery, len(recipients))}

	var g errgroup.Group
	g.SetLimit(t.workers)

	for i, id := range recipients {
		g.Go(func() error {
			d := Delivery{RecipientID: id, Template: template}
			n, err := t.notifier.CreateFromTemplate(ctx, &notify.TemplateRequest{
				TemplateName:  template,
				RecipientID:   id,
				RecipientType: recipientType,
				Variables:     vars,
				Metadata:      metadata,
			})
			if err != nil {
				d.Err = err
				metrics.BroadcastRecipients.WithLabelValues(group, "failed").Inc()
			} else {
				d.NotificationID = n.ID
				metrics.BroadcastRecipients.WithLabelValues(group, "sent").Inc()
			}
			result.Deliveries[i] = d
			return nil
		})
	}
	_ = g.Wait()

	return result
}
