package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Notifier hands email notifications to the mailer through the event bus.
type Notifier interface {
	ApplicationSubmitted(ctx context.Context, app *domain.Application, to string, quote Quote) error
	ApplicationApproved(ctx context.Context, app *domain.Application, to string, membership *domain.Membership) error
	ApplicationRejected(ctx context.Context, app *domain.Application, to string, reason string) error
	MembershipExpired(ctx context.Context, membership domain.Membership) error
}

// EventNotifier publishes EmailNotification messages on a topic exchange.
type EventNotifier struct {
	publisher  EventPublisher
	exchange   string
	adminEmail string
	now        func() time.Time
}

func NewEventNotifier(publisher EventPublisher, exchange, adminEmail string) *EventNotifier {
	if strings.TrimSpace(exchange) == "" {
		exchange = "gart.events"
	}
	return &EventNotifier{publisher: publisher, exchange: exchange, adminEmail: adminEmail, now: time.Now}
}

func (n *EventNotifier) ApplicationSubmitted(ctx context.Context, app *domain.Application, to string, quote Quote) error {
	return n.publish(ctx, domain.EventApplicationSubmitted, domain.EmailNotification{
		Template:      "application_submitted",
		To:            n.recipients(to, true),
		UserID:        app.UserID,
		ApplicationID: app.ID,
		Data: map[string]string{
			"membershipType": string(app.MembershipType),
			"amount":         formatMajorUnits(quote.Amount),
			"currency":       quote.Currency,
		},
	})
}

func (n *EventNotifier) ApplicationApproved(ctx context.Context, app *domain.Application, to string, membership *domain.Membership) error {
	return n.publish(ctx, domain.EventApplicationApproved, domain.EmailNotification{
		Template:      "application_approved",
		To:            n.recipients(to, false),
		UserID:        app.UserID,
		ApplicationID: app.ID,
		MembershipID:  membership.ID,
		Data: map[string]string{
			"membershipType": string(membership.MembershipType),
			"startDate":      membership.StartDate.Format("2006-01-02"),
			"endDate":        membership.EndDate.Format("2006-01-02"),
		},
	})
}

func (n *EventNotifier) ApplicationRejected(ctx context.Context, app *domain.Application, to string, reason string) error {
	return n.publish(ctx, domain.EventApplicationRejected, domain.EmailNotification{
		Template:      "application_rejected",
		To:            n.recipients(to, false),
		UserID:        app.UserID,
		ApplicationID: app.ID,
		Data:          map[string]string{"reason": reason},
	})
}

func (n *EventNotifier) MembershipExpired(ctx context.Context, membership domain.Membership) error {
	return n.publish(ctx, domain.EventMembershipExpired, domain.EmailNotification{
		Template:     "membership_expired",
		UserID:       membership.UserID,
		MembershipID: membership.ID,
		Data:         map[string]string{"endDate": membership.EndDate.Format("2006-01-02")},
	})
}

func (n *EventNotifier) recipients(applicant string, includeAdmin bool) []string {
	var to []string
	if applicant = strings.TrimSpace(applicant); applicant != "" {
		to = append(to, applicant)
	}
	if includeAdmin && n.adminEmail != "" {
		to = append(to, n.adminEmail)
	}
	return to
}

func (n *EventNotifier) publish(ctx context.Context, routingKey string, event domain.EmailNotification) error {
	if n.publisher == nil {
		return nil
	}
	event.Timestamp = n.now().UTC()
	return n.publisher.Publish(ctx, n.exchange, routingKey, event)
}

// notifyBestEffort logs a failed notification instead of failing the workflow step.
func notifyBestEffort(err error, event, subjectID string) {
	if err != nil {
		log.Printf("level=warn component=notifier msg=\"notification dropped\" event=%s subject_id=%s err=%v", event, subjectID, err)
	}
}
