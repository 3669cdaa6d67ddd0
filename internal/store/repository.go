/**
 * @description
 * This file defines the `Repository` interface, the contract for every data access
 * operation the membership workflow needs. The PostgreSQL implementation is used in
 * production; the in-memory implementation backs local development and tests.
 *
 * @dependencies
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrApplicationNotFound      = errors.New("application not found")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrMembershipNotFound       = errors.New("membership not found")
	ErrMembershipTypeNotFound   = errors.New("membership type not found")
	ErrDuplicateTransactionID   = errors.New("this transaction ID has already been used")
	ErrPendingApplicationExists = errors.New("a pending membership application already exists for this user")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// RunInTx runs fn in a single database transaction. Repository calls made with the
	// context passed to fn join that transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Membership type methods
	GetOrCreateMembershipType(ctx context.Context, defaults domain.MembershipTypeConfig) (*domain.MembershipTypeConfig, error)
	GetMembershipType(ctx context.Context, code domain.Category) (*domain.MembershipTypeConfig, error)
	ListMembershipTypes(ctx context.Context) ([]domain.MembershipTypeConfig, error)
	UpdateMembershipType(ctx context.Context, code domain.Category, patch domain.MembershipTypePatch) (*domain.MembershipTypeConfig, error)

	// User methods
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	SetCurrentMembership(ctx context.Context, userID, membershipID string) error

	// Application methods
	HasPendingApplication(ctx context.Context, userID string) (bool, error)
	CreateApplicationWithPayment(ctx context.Context, application *domain.Application, payment *domain.Payment) error
	GetApplication(ctx context.Context, applicationID string) (*domain.Application, error)
	GetApplicationForUpdate(ctx context.Context, applicationID string) (*domain.Application, error)
	GetLatestApplicationByUserID(ctx context.Context, userID string) (*domain.Application, error)
	ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]domain.ApplicationDetail, int, error)
	AppendApplicationStatus(ctx context.Context, applicationID string, change domain.StatusChange) (*domain.Application, error)

	// Payment methods
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	GetPaymentByApplicationID(ctx context.Context, applicationID string) (*domain.Payment, error)
	UpdatePaymentDecision(ctx context.Context, paymentID string, decision domain.PaymentDecision) error

	// Membership methods
	NextSequence(ctx context.Context, name string) (int64, error)
	CreateMembership(ctx context.Context, membership *domain.Membership) error
	HasActiveMembership(ctx context.Context, userID string, now time.Time) (bool, error)
	GetMembershipByApplicationID(ctx context.Context, applicationID string) (*domain.Membership, error)
	GetCurrentMembership(ctx context.Context, userID string, now time.Time) (*domain.Membership, error)
	ExpireMemberships(ctx context.Context, now time.Time) ([]domain.Membership, error)
}
