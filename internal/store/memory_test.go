package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

var memoryTestNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newPendingApplication(id, userID, transactionID string) (*domain.Application, *domain.Payment) {
	app := &domain.Application{
		ID:             id,
		UserID:         userID,
		MembershipType: domain.CategoryVolunteer,
		FormData:       []byte(`{"country":"India"}`),
		Status:         domain.StatusSubmitted,
		History:        []domain.HistoryEntry{{Status: domain.StatusSubmitted, At: memoryTestNow, By: userID}},
		CreatedAt:      memoryTestNow,
		UpdatedAt:      memoryTestNow,
	}
	payment := &domain.Payment{
		ID:            "pay-" + id,
		ApplicationID: id,
		UserID:        userID,
		TransactionID: transactionID,
		Amount:        50000,
		Currency:      "INR",
		Status:        domain.PaymentStatusSubmitted,
	}
	return app, payment
}

func TestMemoryRepository_RollsBackFailedTransaction(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.RunInTx(ctx, func(ctx context.Context) error {
		app, payment := newPendingApplication("app-1", "user-1", "TX-1")
		if err := repo.CreateApplicationWithPayment(ctx, app, payment); err != nil {
			return err
		}
		if _, err := repo.NextSequence(ctx, "membership"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := repo.GetApplication(ctx, "app-1"); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected application to be rolled back, got %v", err)
	}
	if used, _ := repo.TransactionIDExists(ctx, "TX-1"); used {
		t.Fatal("expected transaction id to be released by the rollback")
	}
	seq, err := repo.NextSequence(ctx, "membership")
	if err != nil || seq != 1 {
		t.Fatalf("expected sequence to restart at 1, got %d (err=%v)", seq, err)
	}
}

func TestMemoryRepository_EnforcesUniqueness(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	app, payment := newPendingApplication("app-1", "user-1", "TX-1")
	if err := repo.CreateApplicationWithPayment(ctx, app, payment); err != nil {
		t.Fatalf("CreateApplicationWithPayment returned error: %v", err)
	}

	dupTx, dupPayment := newPendingApplication("app-2", "user-2", "TX-1")
	if err := repo.CreateApplicationWithPayment(ctx, dupTx, dupPayment); !errors.Is(err, ErrDuplicateTransactionID) {
		t.Fatalf("expected ErrDuplicateTransactionID, got %v", err)
	}

	second, secondPayment := newPendingApplication("app-3", "user-1", "TX-3")
	if err := repo.CreateApplicationWithPayment(ctx, second, secondPayment); !errors.Is(err, ErrPendingApplicationExists) {
		t.Fatalf("expected ErrPendingApplicationExists, got %v", err)
	}
}

func TestMemoryRepository_AppendApplicationStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	app, payment := newPendingApplication("app-1", "user-1", "TX-1")
	if err := repo.CreateApplicationWithPayment(ctx, app, payment); err != nil {
		t.Fatalf("CreateApplicationWithPayment returned error: %v", err)
	}

	admin := "admin-1"
	later := memoryTestNow.Add(time.Hour)
	updated, err := repo.AppendApplicationStatus(ctx, "app-1", domain.StatusChange{
		Status:   domain.StatusApproved,
		Entry:    domain.HistoryEntry{Status: domain.StatusApproved, At: later, By: admin},
		Decision: domain.Decision{ApprovedBy: &admin, ApprovedAt: &later},
	})
	if err != nil {
		t.Fatalf("AppendApplicationStatus returned error: %v", err)
	}
	if updated.Status != domain.StatusApproved || len(updated.History) != 2 {
		t.Fatalf("unexpected application: status=%s history=%d", updated.Status, len(updated.History))
	}
	if updated.Decision.ApprovedBy == nil || *updated.Decision.ApprovedBy != admin {
		t.Fatalf("expected approver to be recorded, got %+v", updated.Decision)
	}

	// Returned copies must not alias repository state.
	updated.History[0].Note = "tampered"
	stored, err := repo.GetApplication(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetApplication returned error: %v", err)
	}
	if stored.History[0].Note != "" {
		t.Fatal("expected stored history to be unaffected by caller mutation")
	}

	if _, err := repo.AppendApplicationStatus(ctx, "missing", domain.StatusChange{Status: domain.StatusRejected}); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}

func TestMemoryRepository_CurrentMembershipAndExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	repo.PutUser(domain.User{ID: "user-1"})

	membership := &domain.Membership{
		ID:            "GART-000001",
		UserID:        "user-1",
		ApplicationID: "app-1",
		Status:        domain.MembershipStatusActive,
		StartDate:     memoryTestNow,
		EndDate:       memoryTestNow.AddDate(1, 0, 0),
	}
	if err := repo.CreateMembership(ctx, membership); err != nil {
		t.Fatalf("CreateMembership returned error: %v", err)
	}
	if err := repo.SetCurrentMembership(ctx, "user-1", membership.ID); err != nil {
		t.Fatalf("SetCurrentMembership returned error: %v", err)
	}

	active, err := repo.HasActiveMembership(ctx, "user-1", memoryTestNow)
	if err != nil || !active {
		t.Fatalf("expected an active membership, got %v (err=%v)", active, err)
	}

	expired, err := repo.ExpireMemberships(ctx, memoryTestNow.AddDate(1, 0, 1))
	if err != nil {
		t.Fatalf("ExpireMemberships returned error: %v", err)
	}
	if len(expired) != 1 || expired[0].Status != domain.MembershipStatusExpired {
		t.Fatalf("unexpected expired memberships: %+v", expired)
	}
	if _, err := repo.GetCurrentMembership(ctx, "user-1", memoryTestNow); !errors.Is(err, ErrMembershipNotFound) {
		t.Fatalf("expected ErrMembershipNotFound after expiry, got %v", err)
	}
	user, err := repo.FindUserByID(ctx, "user-1")
	if err != nil || user.CurrentMembershipID != nil {
		t.Fatalf("expected current membership to be cleared, got %+v (err=%v)", user, err)
	}
}

func TestMemoryRepository_UpdatePaymentDecision(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	app, payment := newPendingApplication("app-1", "user-1", "TX-1")
	if err := repo.CreateApplicationWithPayment(ctx, app, payment); err != nil {
		t.Fatalf("CreateApplicationWithPayment returned error: %v", err)
	}

	reason := "amount mismatch"
	if err := repo.UpdatePaymentDecision(ctx, payment.ID, domain.PaymentDecision{
		Status: domain.PaymentStatusRejected,
		By:     "admin-1",
		At:     memoryTestNow,
		Reason: &reason,
	}); err != nil {
		t.Fatalf("UpdatePaymentDecision returned error: %v", err)
	}

	stored, err := repo.GetPaymentByApplicationID(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetPaymentByApplicationID returned error: %v", err)
	}
	if stored.Status != domain.PaymentStatusRejected || stored.RejectionReason == nil || *stored.RejectionReason != reason {
		t.Fatalf("unexpected payment: %+v", stored)
	}
	if stored.RejectedBy == nil || *stored.RejectedBy != "admin-1" {
		t.Fatalf("expected rejecting admin to be recorded, got %+v", stored.RejectedBy)
	}

	if err := repo.UpdatePaymentDecision(ctx, "missing", domain.PaymentDecision{Status: domain.PaymentStatusVerified}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
