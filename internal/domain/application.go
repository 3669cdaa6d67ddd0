/**
 * @description
 * Domain models for membership applications and their payment attestations.
 */
package domain

import (
	"encoding/json"
	"time"
)

// Application status values.
const (
	StatusSubmitted    = "submitted"
	StatusUnderReview  = "under_review"
	StatusNeedsChanges = "needs_changes"
	StatusApproved     = "approved"
	StatusRejected     = "rejected"
	StatusWithdrawn    = "withdrawn"
)

// PendingStatuses are the statuses a user may hold at most one application in.
var PendingStatuses = []string{StatusSubmitted, StatusUnderReview}

var applicationTransitions = map[string][]string{
	StatusSubmitted:    {StatusUnderReview, StatusNeedsChanges, StatusApproved, StatusRejected, StatusWithdrawn},
	StatusUnderReview:  {StatusNeedsChanges, StatusApproved, StatusRejected, StatusWithdrawn},
	StatusNeedsChanges: {StatusUnderReview, StatusApproved, StatusRejected, StatusWithdrawn},
}

// CanTransition reports whether an application may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range applicationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transition is possible.
func IsTerminalStatus(status string) bool {
	_, ok := applicationTransitions[status]
	return !ok
}

// IsPendingStatus reports whether the status counts towards the one-pending-application rule.
func IsPendingStatus(status string) bool {
	for _, s := range PendingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// HistoryEntry is one immutable record of the application status log.
type HistoryEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Note   string    `json:"note,omitempty"`
}

// Decision carries reviewer metadata.
type Decision struct {
	ApprovedBy *string    `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	RejectedBy *string    `json:"rejectedBy,omitempty"`
	RejectedAt *time.Time `json:"rejectedAt,omitempty"`
	Reason     *string    `json:"reason,omitempty"`
}

// Application is a membership application.
type Application struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	MembershipType Category        `json:"membershipType"`
	FormData       json.RawMessage `json:"formData"`
	Status         string          `json:"status"`
	History        []HistoryEntry  `json:"history"`
	Decision       Decision        `json:"decision"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// StatusChange is appended to an application by a workflow step.
type StatusChange struct {
	Status   string
	Entry    HistoryEntry
	Decision Decision
}

// Payment status values.
const (
	PaymentStatusSubmitted = "submitted"
	PaymentStatusVerified  = "verified"
	PaymentStatusRejected  = "rejected"
)

// Payment is a manually attested payment receipt.
type Payment struct {
	ID              string     `json:"id"`
	ApplicationID   string     `json:"applicationId"`
	UserID          string     `json:"userId"`
	TransactionID   string     `json:"transactionId"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	PaidAt          time.Time  `json:"paidAt"`
	PayerName       *string    `json:"payerName,omitempty"`
	ScreenshotURL   *string    `json:"screenshotUrl,omitempty"`
	Status          string     `json:"status"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`
	VerifiedBy      *string    `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	RejectedBy      *string    `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// PaymentDecision updates a payment on an admin decision.
type PaymentDecision struct {
	Status string
	By     string
	At     time.Time
	Reason *string
}

// PaymentAttestation is what the applicant submits about their payment.
type PaymentAttestation struct {
	TransactionID string `json:"transactionId"`
	PaidAt        string `json:"paidAt"`
	PayerName     string `json:"payerName,omitempty"`
	ScreenshotURL string `json:"screenshotUrl,omitempty"`
}

// ApplicationDetail is an application joined with its payment, applicant and type.
type ApplicationDetail struct {
	Application
	Payment        *Payment              `json:"payment,omitempty"`
	User           *User                 `json:"user,omitempty"`
	MembershipInfo *MembershipTypeConfig `json:"membershipTypeConfig,omitempty"`
}

// ApplicationFilter narrows the admin listing.
type ApplicationFilter struct {
	Status         string
	MembershipType Category
	Page           int
	PageSize       int
}

// Offset returns the row offset for the filter's page.
func (f ApplicationFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
