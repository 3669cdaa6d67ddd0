package domain

import "time"

// Notification routing keys published for the mailer.
const (
	EventApplicationSubmitted = "membership.application.submitted"
	EventApplicationApproved  = "membership.application.approved"
	EventApplicationRejected  = "membership.application.rejected"
	EventMembershipExpired    = "membership.expired"
)

// EmailNotification is the payload consumed by the notification service, which renders
// the template and sends the email.
type EmailNotification struct {
	Template      string            `json:"template"`
	To            []string          `json:"to"`
	UserID        string            `json:"user_id"`
	ApplicationID string            `json:"application_id,omitempty"`
	MembershipID  string            `json:"membership_id,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
