/**
 * @description
 * Core business logic for membership applications: quoting, submission, admin review and
 * membership issuance. Every multi-row write runs inside a single repository transaction;
 * notifications are sent after commit and never fail the request.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gart/membership-service/internal/domain"
	"github.com/gart/membership-service/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RateLimiter throttles applicant actions per user.
type RateLimiter interface {
	Allow(ctx context.Context, action ApplicantAction, userID string) (RateLimitDecision, error)
}

// AttachmentStore persists uploaded application documents.
type AttachmentStore interface {
	Save(ctx context.Context, owner, field, filename string, content io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
}

// Upload is one file submitted with an application.
type Upload struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Options carries the optional collaborators of the service.
type Options struct {
	Payment     PaymentTarget
	Attachments AttachmentStore
	RateLimiter RateLimiter
	Clock       func() time.Time
}

// Service provides the business logic for membership management.
type Service struct {
	repo        store.Repository
	notifier    Notifier
	attachments AttachmentStore
	limiter     RateLimiter
	payment     PaymentTarget
	now         func() time.Time
}

// NewService creates a new membership service.
func NewService(repo store.Repository, notifier Notifier, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	if notifier == nil {
		notifier = NewEventNotifier(nil, "", "")
	}
	return &Service{
		repo:        repo,
		notifier:    notifier,
		attachments: opts.Attachments,
		limiter:     opts.RateLimiter,
		payment:     opts.Payment,
		now:         clock,
	}
}

// ApplyInput is a membership application as submitted by the applicant.
type ApplyInput struct {
	UserID         string
	MembershipType string
	Data           map[string]any
	Payment        domain.PaymentAttestation
	Uploads        []Upload
}

// ApplyResult is the outcome of a successful submission.
type ApplyResult struct {
	Application *domain.Application
	Payment     *domain.Payment
	// Quote carries a payment payload tagged with the attested transaction id.
	Quote Quote
}

// ApprovalResult is the outcome of an approval.
type ApprovalResult struct {
	Application *domain.Application
	Membership  *domain.Membership
	// AlreadyApproved is set when the call found the application approved already.
	AlreadyApproved bool
}

// ApplicationPage is one page of the admin listing.
type ApplicationPage struct {
	Items    []domain.ApplicationDetail `json:"items"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"pageSize"`
}

// Quote prices a prospective application without persisting anything.
func (s *Service) Quote(ctx context.Context, userID, membershipType string, data map[string]any) (*Quote, error) {
	if err := s.consumeRateLimit(ctx, ActionQuote, userID); err != nil {
		return nil, err
	}
	if err := s.ensureCanApply(ctx, userID); err != nil {
		return nil, err
	}
	cfg, err := s.activeMembershipType(ctx, membershipType)
	if err != nil {
		return nil, err
	}
	if problems := ValidateForm(cfg.Code, data); len(problems) > 0 {
		return nil, newValidationError(problems...)
	}
	form, err := BuildForm(cfg.Code, data)
	if err != nil {
		return nil, err
	}

	q := CalculateQuote(*cfg, form, s.now())
	q.QRPayload = s.payment.Payload(q.Amount, q.Currency, paymentNote(cfg.Code), "")
	return &q, nil
}

// Apply validates and records a new application together with its payment attestation.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	if err := s.consumeRateLimit(ctx, ActionApply, in.UserID); err != nil {
		return nil, err
	}
	if err := s.ensureCanApply(ctx, in.UserID); err != nil {
		return nil, err
	}
	cfg, err := s.activeMembershipType(ctx, in.MembershipType)
	if err != nil {
		return nil, err
	}

	problems := ValidateForm(cfg.Code, in.Data)
	problems = append(problems, validateAttestation(in.Payment)...)
	problems = append(problems, validateUploads(cfg.Code, in.Uploads)...)
	if len(problems) > 0 {
		return nil, newValidationError(problems...)
	}

	transactionID := strings.TrimSpace(in.Payment.TransactionID)
	used, err := s.repo.TransactionIDExists(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("check transaction id: %w", err)
	}
	if used {
		return nil, ErrDuplicateTransactionID
	}

	form, err := BuildForm(cfg.Code, in.Data)
	if err != nil {
		return nil, err
	}
	now := s.now()
	q := CalculateQuote(*cfg, form, now)

	attachments, err := s.saveUploads(ctx, in.UserID, in.Uploads)
	if err != nil {
		return nil, err
	}
	formData, err := domain.EncodeForm(form, attachments)
	if err != nil {
		s.discardUploads(ctx, attachments)
		return nil, err
	}

	application := &domain.Application{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		MembershipType: cfg.Code,
		FormData:       formData,
		Status:         domain.StatusSubmitted,
		History:        []domain.HistoryEntry{{Status: domain.StatusSubmitted, At: now, By: in.UserID}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	paidAt, _ := ParseDate(in.Payment.PaidAt)
	payment := &domain.Payment{
		ID:            uuid.NewString(),
		ApplicationID: application.ID,
		UserID:        in.UserID,
		TransactionID: transactionID,
		Amount:        q.Amount,
		Currency:      q.Currency,
		PaidAt:        paidAt,
		PayerName:     optionalString(in.Payment.PayerName),
		ScreenshotURL: optionalString(in.Payment.ScreenshotURL),
		Status:        domain.PaymentStatusSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if payment.ScreenshotURL == nil {
		payment.ScreenshotURL = optionalString(attachments["paymentScreenshot"])
	}

	if err := s.repo.CreateApplicationWithPayment(ctx, application, payment); err != nil {
		s.discardUploads(ctx, attachments)
		return nil, err
	}
	q.QRPayload = s.payment.Payload(q.Amount, q.Currency, paymentNote(cfg.Code), transactionID)

	log.Printf("level=info component=membership_service msg=\"application submitted\" application_id=%s user_id=%s type=%s amount=%d currency=%s",
		application.ID, in.UserID, cfg.Code, q.Amount, q.Currency)
	notifyBestEffort(s.notifier.ApplicationSubmitted(ctx, application, domain.ContactEmail(form), q),
		domain.EventApplicationSubmitted, application.ID)

	return &ApplyResult{Application: application, Payment: payment, Quote: q}, nil
}

// Approve issues a membership for the application. Approving an application that is
// already approved returns the membership issued the first time.
func (s *Service) Approve(ctx context.Context, adminID, applicationID string) (*ApprovalResult, error) {
	var result ApprovalResult
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		application, err := s.repo.GetApplicationForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}
		payment, err := s.repo.GetPaymentByApplicationID(ctx, applicationID)
		if err != nil {
			return err
		}

		if application.Status == domain.StatusApproved {
			if payment.Status != domain.PaymentStatusVerified {
				return ErrInvalidTransition
			}
			membership, err := s.repo.GetMembershipByApplicationID(ctx, applicationID)
			if err != nil {
				return err
			}
			result = ApprovalResult{Application: application, Membership: membership, AlreadyApproved: true}
			return nil
		}
		if !domain.CanTransition(application.Status, domain.StatusApproved) {
			return ErrInvalidTransition
		}

		now := s.now()
		// A parked needs_changes application can outlive a newer approved one.
		active, err := s.repo.HasActiveMembership(ctx, application.UserID, now)
		if err != nil {
			return fmt.Errorf("check active membership: %w", err)
		}
		if active {
			return ErrActiveMembershipExists
		}

		cfg, err := s.repo.GetOrCreateMembershipType(ctx, DefaultMembershipType(application.MembershipType))
		if err != nil {
			return err
		}
		form, err := domain.DecodeForm(application.MembershipType, application.FormData)
		if err != nil {
			return err
		}

		seq, err := s.repo.NextSequence(ctx, MembershipSequence)
		if err != nil {
			return err
		}
		membership := &domain.Membership{
			ID:             FormatMembershipID(seq),
			UserID:         application.UserID,
			MembershipType: application.MembershipType,
			ApplicationID:  application.ID,
			Status:         domain.MembershipStatusActive,
			StartDate:      calendarDate(now),
			EndDate:        MembershipEndDate(*cfg, form, now),
			CreatedAt:      now,
		}
		if err := s.repo.CreateMembership(ctx, membership); err != nil {
			return err
		}
		if err := s.repo.SetCurrentMembership(ctx, application.UserID, membership.ID); err != nil {
			return err
		}
		if err := s.repo.UpdatePaymentDecision(ctx, payment.ID, domain.PaymentDecision{
			Status: domain.PaymentStatusVerified,
			By:     adminID,
			At:     now,
		}); err != nil {
			return err
		}
		updated, err := s.repo.AppendApplicationStatus(ctx, application.ID, domain.StatusChange{
			Status:   domain.StatusApproved,
			Entry:    domain.HistoryEntry{Status: domain.StatusApproved, At: now, By: adminID},
			Decision: domain.Decision{ApprovedBy: &adminID, ApprovedAt: &now},
		})
		if err != nil {
			return err
		}
		result = ApprovalResult{Application: updated, Membership: membership}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyApproved {
		log.Printf("level=info component=membership_service msg=\"membership issued\" application_id=%s membership_id=%s approved_by=%s",
			applicationID, result.Membership.ID, adminID)
		notifyBestEffort(s.notifier.ApplicationApproved(ctx, result.Application, s.applicantEmail(ctx, result.Application), result.Membership),
			domain.EventApplicationApproved, applicationID)
	}
	return &result, nil
}

// Reject rejects the application and its payment. A non-blank reason is required.
func (s *Service) Reject(ctx context.Context, adminID, applicationID, reason string) (*domain.Application, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newValidationError("reason is required")
	}

	application, changed, err := s.transition(ctx, applicationID, transitionStep{
		to:       domain.StatusRejected,
		actor:    adminID,
		note:     reason,
		decision: func(now time.Time) domain.Decision {
			return domain.Decision{RejectedBy: &adminID, RejectedAt: &now, Reason: &reason}
		},
		before: func(ctx context.Context, application *domain.Application, now time.Time) error {
			payment, err := s.repo.GetPaymentByApplicationID(ctx, application.ID)
			if err != nil {
				return err
			}
			return s.repo.UpdatePaymentDecision(ctx, payment.ID, domain.PaymentDecision{
				Status: domain.PaymentStatusRejected,
				By:     adminID,
				At:     now,
				Reason: &reason,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	if changed {
		notifyBestEffort(s.notifier.ApplicationRejected(ctx, application, s.applicantEmail(ctx, application), reason),
			domain.EventApplicationRejected, applicationID)
	}
	return application, nil
}

// MarkUnderReview records that an administrator has picked up the application.
func (s *Service) MarkUnderReview(ctx context.Context, adminID, applicationID, note string) (*domain.Application, error) {
	application, _, err := s.transition(ctx, applicationID, transitionStep{
		to:    domain.StatusUnderReview,
		actor: adminID,
		note:  strings.TrimSpace(note),
	})
	return application, err
}

// RequestChanges sends the application back to the applicant with a note.
func (s *Service) RequestChanges(ctx context.Context, adminID, applicationID, note string) (*domain.Application, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, newValidationError("note is required")
	}
	application, _, err := s.transition(ctx, applicationID, transitionStep{
		to:    domain.StatusNeedsChanges,
		actor: adminID,
		note:  note,
	})
	return application, err
}

// Withdraw lets the applicant retract an application that has not been decided yet.
func (s *Service) Withdraw(ctx context.Context, userID, applicationID string) (*domain.Application, error) {
	application, _, err := s.transition(ctx, applicationID, transitionStep{
		to:    domain.StatusWithdrawn,
		actor: userID,
		authorize: func(application *domain.Application) error {
			if application.UserID != userID {
				return ErrForbidden
			}
			return nil
		},
	})
	return application, err
}

type transitionStep struct {
	to        string
	actor     string
	note      string
	decision  func(now time.Time) domain.Decision
	authorize func(application *domain.Application) error
	before    func(ctx context.Context, application *domain.Application, now time.Time) error
}

// transition moves an application to step.to inside one transaction. Repeating a
// transition the application has already made is a no-op and reports changed=false.
func (s *Service) transition(ctx context.Context, applicationID string, step transitionStep) (*domain.Application, bool, error) {
	var (
		result  *domain.Application
		changed bool
	)
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		application, err := s.repo.GetApplicationForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}
		if step.authorize != nil {
			if err := step.authorize(application); err != nil {
				return err
			}
		}
		if application.Status == step.to {
			result = application
			return nil
		}
		if !domain.CanTransition(application.Status, step.to) {
			return ErrInvalidTransition
		}

		now := s.now()
		if step.before != nil {
			if err := step.before(ctx, application, now); err != nil {
				return err
			}
		}
		change := domain.StatusChange{
			Status: step.to,
			Entry:  domain.HistoryEntry{Status: step.to, At: now, By: step.actor, Note: step.note},
		}
		if step.decision != nil {
			change.Decision = step.decision(now)
		}
		updated, err := s.repo.AppendApplicationStatus(ctx, applicationID, change)
		if err != nil {
			return err
		}
		result, changed = updated, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		log.Printf("level=info component=membership_service msg=\"application status changed\" application_id=%s status=%s by=%s",
			applicationID, step.to, step.actor)
	}
	return result, changed, nil
}

// ListApplications returns a filtered page of applications, newest first.
func (s *Service) ListApplications(ctx context.Context, filter domain.ApplicationFilter) (*ApplicationPage, error) {
	var problems []string
	if filter.Status != "" && !isKnownStatus(filter.Status) {
		problems = append(problems, fmt.Sprintf("status %q is not a valid application status", filter.Status))
	}
	if filter.MembershipType != "" {
		code, ok := domain.ParseCategory(string(filter.MembershipType))
		if !ok {
			problems = append(problems, fmt.Sprintf("membershipType %q is not supported", filter.MembershipType))
		}
		filter.MembershipType = code
	}
	if len(problems) > 0 {
		return nil, newValidationError(problems...)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	items, total, err := s.repo.ListApplications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	if items == nil {
		items = []domain.ApplicationDetail{}
	}
	return &ApplicationPage{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// GetApplication returns an application joined with its payment, applicant and type.
func (s *Service) GetApplication(ctx context.Context, applicationID string) (*domain.ApplicationDetail, error) {
	application, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, application, true)
}

// LatestApplication returns the caller's most recent application, or nil when none exists.
func (s *Service) LatestApplication(ctx context.Context, userID string) (*domain.ApplicationDetail, error) {
	application, err := s.repo.GetLatestApplicationByUserID(ctx, userID)
	if errors.Is(err, store.ErrApplicationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, application, false)
}

// CurrentMembership returns the caller's active membership, or nil when none exists.
func (s *Service) CurrentMembership(ctx context.Context, userID string) (*domain.Membership, error) {
	membership, err := s.repo.GetCurrentMembership(ctx, userID, s.now())
	if errors.Is(err, store.ErrMembershipNotFound) {
		return nil, nil
	}
	return membership, err
}

// AttachmentPath returns the stored path of one uploaded document of an application.
func (s *Service) AttachmentPath(ctx context.Context, applicationID, field string) (string, error) {
	application, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return "", err
	}
	var doc struct {
		Attachments domain.Attachments `json:"attachments"`
	}
	if err := json.Unmarshal(application.FormData, &doc); err != nil {
		return "", fmt.Errorf("decode attachments of %s: %w", applicationID, err)
	}
	path, ok := doc.Attachments[field]
	if !ok || path == "" {
		return "", ErrAttachmentNotFound
	}
	return path, nil
}

// ListMembershipTypes returns every membership type, creating missing defaults first.
func (s *Service) ListMembershipTypes(ctx context.Context) ([]domain.MembershipTypeConfig, error) {
	for _, code := range domain.Categories {
		if _, err := s.repo.GetOrCreateMembershipType(ctx, DefaultMembershipType(code)); err != nil {
			return nil, fmt.Errorf("ensure membership type %s: %w", code, err)
		}
	}
	return s.repo.ListMembershipTypes(ctx)
}

// UpdateMembershipType applies an administrator's partial update to a membership type.
func (s *Service) UpdateMembershipType(ctx context.Context, rawCode string, patch domain.MembershipTypePatch) (*domain.MembershipTypeConfig, error) {
	code, ok := domain.ParseCategory(rawCode)
	if !ok {
		return nil, ErrMembershipTypeNotFound
	}
	if patch.IsEmpty() {
		return nil, newValidationError("at least one field must be provided")
	}
	if problems := validatePatch(code, patch); len(problems) > 0 {
		return nil, newValidationError(problems...)
	}
	if _, err := s.repo.GetOrCreateMembershipType(ctx, DefaultMembershipType(code)); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateMembershipType(ctx, code, patch)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=membership_service msg=\"membership type updated\" code=%s", code)
	return updated, nil
}

// ExpireMemberships marks memberships past their end date as expired.
func (s *Service) ExpireMemberships(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireMemberships(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	for _, membership := range expired {
		notifyBestEffort(s.notifier.MembershipExpired(ctx, membership), domain.EventMembershipExpired, membership.ID)
	}
	return len(expired), nil
}

func (s *Service) ensureCanApply(ctx context.Context, userID string) error {
	active, err := s.repo.HasActiveMembership(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("check active membership: %w", err)
	}
	if active {
		return ErrActiveMembershipExists
	}
	pending, err := s.repo.HasPendingApplication(ctx, userID)
	if err != nil {
		return fmt.Errorf("check pending application: %w", err)
	}
	if pending {
		return ErrPendingApplicationExists
	}
	return nil
}

func (s *Service) activeMembershipType(ctx context.Context, raw string) (*domain.MembershipTypeConfig, error) {
	code, ok := domain.ParseCategory(raw)
	if !ok {
		return nil, ErrMembershipTypeNotFound
	}
	cfg, err := s.repo.GetOrCreateMembershipType(ctx, DefaultMembershipType(code))
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, ErrMembershipTypeNotFound
	}
	return cfg, nil
}

func (s *Service) consumeRateLimit(ctx context.Context, action ApplicantAction, userID string) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Allow(ctx, action, userID)
	if err != nil {
		log.Printf("level=warn component=rate_limiter msg=\"rate limiter unavailable, allowing request\" action=%s user_id=%s err=%v", action, userID, err)
		return nil
	}
	if decision.Allowed {
		return nil
	}
	log.Printf("level=info component=rate_limiter msg=\"request throttled\" action=%s user_id=%s retry_after=%s", action, userID, decision.RetryAfter)
	return &RateLimitError{RetryAfterSeconds: retryAfterSeconds(decision.RetryAfter)}
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func (s *Service) saveUploads(ctx context.Context, userID string, uploads []Upload) (domain.Attachments, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, errors.New("attachment storage is not configured")
	}
	saved := make(domain.Attachments, len(uploads))
	for _, upload := range uploads {
		path, err := s.attachments.Save(ctx, userID, upload.Field, upload.Filename, upload.Content)
		if err != nil {
			s.discardUploads(ctx, saved)
			return nil, fmt.Errorf("store %s: %w", upload.Field, err)
		}
		saved[upload.Field] = path
	}
	return saved, nil
}

func (s *Service) discardUploads(ctx context.Context, attachments domain.Attachments) {
	if s.attachments == nil {
		return
	}
	for field, path := range attachments {
		if err := s.attachments.Delete(ctx, path); err != nil {
			log.Printf("level=warn component=membership_service msg=\"failed to remove orphaned upload\" field=%s path=%s err=%v", field, path, err)
		}
	}
}

func (s *Service) detail(ctx context.Context, application *domain.Application, withUser bool) (*domain.ApplicationDetail, error) {
	detail := &domain.ApplicationDetail{Application: *application}

	payment, err := s.repo.GetPaymentByApplicationID(ctx, application.ID)
	switch {
	case err == nil:
		detail.Payment = payment
	case !errors.Is(err, store.ErrPaymentNotFound):
		return nil, err
	}

	if withUser {
		user, err := s.repo.FindUserByID(ctx, application.UserID)
		switch {
		case err == nil:
			detail.User = user
		case !errors.Is(err, store.ErrUserNotFound):
			return nil, err
		}
	}

	cfg, err := s.repo.GetMembershipType(ctx, application.MembershipType)
	switch {
	case err == nil:
		detail.MembershipInfo = cfg
	case !errors.Is(err, store.ErrMembershipTypeNotFound):
		return nil, err
	}
	return detail, nil
}

// applicantEmail prefers the account email and falls back to the one on the form.
func (s *Service) applicantEmail(ctx context.Context, application *domain.Application) string {
	if user, err := s.repo.FindUserByID(ctx, application.UserID); err == nil && user.Email != "" {
		return user.Email
	}
	form, err := domain.DecodeForm(application.MembershipType, application.FormData)
	if err != nil {
		return ""
	}
	return domain.ContactEmail(form)
}

func validateAttestation(p domain.PaymentAttestation) []string {
	var problems []string
	if strings.TrimSpace(p.TransactionID) == "" {
		problems = append(problems, "payment.transactionId is required")
	}
	if strings.TrimSpace(p.PaidAt) == "" {
		problems = append(problems, "payment.paidAt is required")
	} else if _, ok := ParseDate(p.PaidAt); !ok {
		problems = append(problems, "payment.paidAt must be a valid date")
	}
	return problems
}

var commonUploadFields = []string{"idProof", "paymentScreenshot"}

// UploadFields lists the file fields accepted for a category.
func UploadFields(code domain.Category) []string {
	fields := append([]string{}, commonUploadFields...)
	switch {
	case code == domain.CategoryStudent:
		fields = append(fields, "studentIdCard")
	case code.IsProfessional():
		fields = append(fields, "registrationCertificate", "qualificationCertificate")
	}
	return fields
}

func validateUploads(code domain.Category, uploads []Upload) []string {
	allowed := make(map[string]bool)
	for _, field := range UploadFields(code) {
		allowed[field] = true
	}
	var problems []string
	seen := make(map[string]bool)
	for _, upload := range uploads {
		switch {
		case !allowed[upload.Field]:
			problems = append(problems, fmt.Sprintf("file field %q is not accepted for %s", upload.Field, code))
		case seen[upload.Field]:
			problems = append(problems, fmt.Sprintf("file field %q was sent more than once", upload.Field))
		}
		seen[upload.Field] = true
	}
	return problems
}

func validatePatch(code domain.Category, patch domain.MembershipTypePatch) []string {
	var problems []string
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		problems = append(problems, "name cannot be blank")
	}
	if patch.Tier != nil && *patch.Tier < 1 {
		problems = append(problems, "tier must be at least 1")
	}
	if patch.DurationMonths != nil && *patch.DurationMonths < 1 {
		problems = append(problems, "durationMonths must be at least 1")
	}
	if patch.Fee != nil {
		problems = append(problems, validateMoney("fee", patch.Fee)...)
	}
	if patch.FeeConfig != nil {
		if patch.FeeConfig.PerYear != nil && code != domain.CategoryStudent {
			problems = append(problems, "feeConfig.perYear is only supported for STUDENT")
		}
		problems = append(problems, validateRegionFees("feeConfig.regionFees", patch.FeeConfig.RegionFees)...)
		problems = append(problems, validateRegionFees("feeConfig.perYear", patch.FeeConfig.PerYear)...)
	}
	return problems
}

func validateRegionFees(field string, fees *domain.RegionFees) []string {
	if fees == nil {
		return nil
	}
	problems := validateMoney(field+".domestic", fees.Domestic)
	problems = append(problems, validateMoney(field+".lmic", fees.LMIC)...)
	return append(problems, validateMoney(field+".international", fees.International)...)
}

func validateMoney(field string, m *domain.Money) []string {
	if m == nil {
		return nil
	}
	var problems []string
	if m.Amount < 0 {
		problems = append(problems, field+".amount cannot be negative")
	}
	if c := strings.TrimSpace(m.Currency); c != "" && len(c) != 3 {
		problems = append(problems, field+".currency must be a 3-letter ISO code")
	}
	return problems
}

func isKnownStatus(status string) bool {
	switch status {
	case domain.StatusSubmitted, domain.StatusUnderReview, domain.StatusNeedsChanges,
		domain.StatusApproved, domain.StatusRejected, domain.StatusWithdrawn:
		return true
	}
	return false
}

func paymentNote(code domain.Category) string {
	return "GART " + strings.ToLower(string(code)) + " membership"
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
