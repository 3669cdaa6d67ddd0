/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * JSON documents (form data, history, fee configuration) are passed as text and cast
 * to jsonb in SQL so the queries also work under the simple query protocol.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gart/membership-service/internal/domain"
)

const (
	uniqueViolationCode = "23505"

	paymentTransactionIDConstraint = "membership_payments_transaction_id_key"
	onePendingApplicationIndex     = "membership_applications_one_pending_idx"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// translateWriteError maps unique violations on the workflow's guard indexes to sentinels.
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		switch pgErr.ConstraintName {
		case paymentTransactionIDConstraint:
			return ErrDuplicateTransactionID
		case onePendingApplicationIndex:
			return ErrPendingApplicationExists
		}
	}
	return err
}

// --- membership types ---

const membershipTypeColumns = `code, name, description, tier, duration_months, fee_amount, fee_currency, fee_config, is_active, created_at, updated_at`

func scanMembershipType(row pgx.Row) (*domain.MembershipTypeConfig, error) {
	var (
		cfg       domain.MembershipTypeConfig
		feeConfig []byte
	)
	err := row.Scan(
		&cfg.Code, &cfg.Name, &cfg.Description, &cfg.Tier, &cfg.DurationMonths,
		&cfg.Fee.Amount, &cfg.Fee.Currency, &feeConfig, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipTypeNotFound
		}
		return nil, err
	}
	if len(feeConfig) > 0 {
		if err := json.Unmarshal(feeConfig, &cfg.FeeConfig); err != nil {
			return nil, fmt.Errorf("decode fee config of %s: %w", cfg.Code, err)
		}
	}
	return &cfg, nil
}

// GetOrCreateMembershipType inserts the defaults unless the code exists and returns the stored row.
// An existing row is never overwritten.
func (r *PostgresRepository) GetOrCreateMembershipType(ctx context.Context, defaults domain.MembershipTypeConfig) (*domain.MembershipTypeConfig, error) {
	feeConfig, err := json.Marshal(defaults.FeeConfig)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO membership_types (code, name, description, tier, duration_months, fee_amount, fee_currency, fee_config, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		RETURNING ` + membershipTypeColumns
	return scanMembershipType(r.q(ctx).QueryRow(ctx, query,
		defaults.Code, defaults.Name, defaults.Description, defaults.Tier, defaults.DurationMonths,
		defaults.Fee.Amount, defaults.Fee.Currency, string(feeConfig), defaults.IsActive,
	))
}

func (r *PostgresRepository) GetMembershipType(ctx context.Context, code domain.Category) (*domain.MembershipTypeConfig, error) {
	query := `SELECT ` + membershipTypeColumns + ` FROM membership_types WHERE code = $1`
	return scanMembershipType(r.q(ctx).QueryRow(ctx, query, code))
}

func (r *PostgresRepository) ListMembershipTypes(ctx context.Context) ([]domain.MembershipTypeConfig, error) {
	query := `SELECT ` + membershipTypeColumns + ` FROM membership_types ORDER BY tier, code`
	rows, err := r.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.MembershipTypeConfig
	for rows.Next() {
		cfg, err := scanMembershipType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *cfg)
	}
	return types, rows.Err()
}

// UpdateMembershipType changes only the columns present in the patch.
func (r *PostgresRepository) UpdateMembershipType(ctx context.Context, code domain.Category, patch domain.MembershipTypePatch) (*domain.MembershipTypeConfig, error) {
	var (
		feeAmount   *int64
		feeCurrency *string
		feeConfig   *string
	)
	if patch.Fee != nil {
		feeAmount = &patch.Fee.Amount
		if patch.Fee.Currency != "" {
			feeCurrency = &patch.Fee.Currency
		}
	}
	if patch.FeeConfig != nil {
		raw, err := json.Marshal(patch.FeeConfig)
		if err != nil {
			return nil, err
		}
		s := string(raw)
		feeConfig = &s
	}

	query := `
		UPDATE membership_types SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			tier = COALESCE($4, tier),
			duration_months = COALESCE($5, duration_months),
			fee_amount = COALESCE($6, fee_amount),
			fee_currency = COALESCE($7, fee_currency),
			fee_config = COALESCE($8::jsonb, fee_config),
			is_active = COALESCE($9, is_active),
			updated_at = now()
		WHERE code = $1
		RETURNING ` + membershipTypeColumns
	return scanMembershipType(r.q(ctx).QueryRow(ctx, query,
		code, patch.Name, patch.Description, patch.Tier, patch.DurationMonths,
		feeAmount, feeCurrency, feeConfig, patch.IsActive,
	))
}

// --- users ---

func (r *PostgresRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, name, email, role, current_membership_id FROM users WHERE id = $1`
	err := r.q(ctx).QueryRow(ctx, query, userID).Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.CurrentMembershipID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetCurrentMembership points the user's read model at a membership. Users not yet
// replicated from the auth service are skipped.
func (r *PostgresRepository) SetCurrentMembership(ctx context.Context, userID, membershipID string) error {
	_, err := r.q(ctx).Exec(ctx, `UPDATE users SET current_membership_id = $2 WHERE id = $1`, userID, membershipID)
	return err
}

// --- applications ---

const applicationColumns = `a.id::text, a.user_id, a.membership_type, a.form_data, a.status, a.history,
	a.approved_by, a.approved_at, a.rejected_by, a.rejected_at, a.rejection_reason, a.created_at, a.updated_at`

type applicationRow struct {
	app      domain.Application
	formData []byte
	history  []byte
}

func (row *applicationRow) dest() []any {
	a := &row.app
	return []any{
		&a.ID, &a.UserID, &a.MembershipType, &row.formData, &a.Status, &row.history,
		&a.Decision.ApprovedBy, &a.Decision.ApprovedAt, &a.Decision.RejectedBy, &a.Decision.RejectedAt,
		&a.Decision.Reason, &a.CreatedAt, &a.UpdatedAt,
	}
}

func (row *applicationRow) decode() (*domain.Application, error) {
	app := row.app
	app.FormData = json.RawMessage(row.formData)
	if len(row.history) > 0 {
		if err := json.Unmarshal(row.history, &app.History); err != nil {
			return nil, fmt.Errorf("decode history of application %s: %w", app.ID, err)
		}
	}
	return &app, nil
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var ar applicationRow
	if err := row.Scan(ar.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return ar.decode()
}

func (r *PostgresRepository) HasPendingApplication(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM membership_applications WHERE user_id = $1 AND status IN ('submitted', 'under_review'))`
	err := r.q(ctx).QueryRow(ctx, query, userID).Scan(&exists)
	return exists, err
}

// CreateApplicationWithPayment inserts both rows atomically. Unique violations on the
// transaction id or the one-pending-application index are returned as sentinels.
func (r *PostgresRepository) CreateApplicationWithPayment(ctx context.Context, application *domain.Application, payment *domain.Payment) error {
	history, err := json.Marshal(application.History)
	if err != nil {
		return err
	}

	err = r.RunInTx(ctx, func(ctx context.Context) error {
		_, err := r.q(ctx).Exec(ctx, `
			INSERT INTO membership_applications (id, user_id, membership_type, form_data, status, history, created_at, updated_at)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7, $8)`,
			application.ID, application.UserID, application.MembershipType, string(application.FormData),
			application.Status, string(history), application.CreatedAt, application.UpdatedAt,
		)
		if err != nil {
			return err
		}
		_, err = r.q(ctx).Exec(ctx, `
			INSERT INTO membership_payments (id, application_id, user_id, transaction_id, amount, currency, paid_at,
				payer_name, screenshot_url, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			payment.ID, payment.ApplicationID, payment.UserID, payment.TransactionID, payment.Amount, payment.Currency,
			payment.PaidAt, payment.PayerName, payment.ScreenshotURL, payment.Status, payment.CreatedAt, payment.UpdatedAt,
		)
		return err
	})
	return translateWriteError(err)
}

func (r *PostgresRepository) GetApplication(ctx context.Context, applicationID string) (*domain.Application, error) {
	if !isUUID(applicationID) {
		return nil, ErrApplicationNotFound
	}
	query := `SELECT ` + applicationColumns + ` FROM membership_applications a WHERE a.id = $1`
	return scanApplication(r.q(ctx).QueryRow(ctx, query, applicationID))
}

// GetApplicationForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetApplicationForUpdate(ctx context.Context, applicationID string) (*domain.Application, error) {
	if !isUUID(applicationID) {
		return nil, ErrApplicationNotFound
	}
	query := `SELECT ` + applicationColumns + ` FROM membership_applications a WHERE a.id = $1 FOR UPDATE`
	return scanApplication(r.q(ctx).QueryRow(ctx, query, applicationID))
}

func (r *PostgresRepository) GetLatestApplicationByUserID(ctx context.Context, userID string) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM membership_applications a WHERE a.user_id = $1 ORDER BY a.created_at DESC LIMIT 1`
	return scanApplication(r.q(ctx).QueryRow(ctx, query, userID))
}

// ListApplications returns one page of applications joined with payment and applicant,
// newest first, plus the total number of matching rows.
func (r *PostgresRepository) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]domain.ApplicationDetail, int, error) {
	query := `
		SELECT ` + applicationColumns + `, ` + paymentColumns + `,
			u.id, u.name, u.email, u.role, u.current_membership_id,
			COUNT(*) OVER ()
		FROM membership_applications a
		JOIN membership_payments p ON p.application_id = a.id
		LEFT JOIN users u ON u.id = a.user_id
		WHERE ($1 = '' OR a.status = $1) AND ($2 = '' OR a.membership_type = $2)
		ORDER BY a.created_at DESC
		LIMIT $3 OFFSET $4`

	types, err := r.membershipTypeIndex(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.q(ctx).Query(ctx, query, filter.Status, string(filter.MembershipType), filter.PageSize, filter.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items []domain.ApplicationDetail
		total int
	)
	for rows.Next() {
		var (
			ar                                         applicationRow
			payment                                    domain.Payment
			userID, name, email, role, currentMemberID *string
		)
		dest := append(ar.dest(), paymentDest(&payment)...)
		dest = append(dest, &userID, &name, &email, &role, &currentMemberID, &total)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, err
		}
		app, err := ar.decode()
		if err != nil {
			return nil, 0, err
		}

		detail := domain.ApplicationDetail{Application: *app, Payment: &payment}
		if userID != nil {
			detail.User = &domain.User{
				ID:                  *userID,
				Name:                deref(name),
				Email:               deref(email),
				Role:                deref(role),
				CurrentMembershipID: currentMemberID,
			}
		}
		if cfg, ok := types[app.MembershipType]; ok {
			cfg := cfg
			detail.MembershipInfo = &cfg
		}
		items = append(items, detail)
	}
	return items, total, rows.Err()
}

func (r *PostgresRepository) membershipTypeIndex(ctx context.Context) (map[domain.Category]domain.MembershipTypeConfig, error) {
	types, err := r.ListMembershipTypes(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[domain.Category]domain.MembershipTypeConfig, len(types))
	for _, cfg := range types {
		idx[cfg.Code] = cfg
	}
	return idx, nil
}

// AppendApplicationStatus sets the new status, appends the history entry and merges
// any decision fields that are set.
func (r *PostgresRepository) AppendApplicationStatus(ctx context.Context, applicationID string, change domain.StatusChange) (*domain.Application, error) {
	if !isUUID(applicationID) {
		return nil, ErrApplicationNotFound
	}
	entry, err := json.Marshal(change.Entry)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE membership_applications a SET
			status = $2,
			history = a.history || jsonb_build_array($3::jsonb),
			approved_by = COALESCE($4, a.approved_by),
			approved_at = COALESCE($5, a.approved_at),
			rejected_by = COALESCE($6, a.rejected_by),
			rejected_at = COALESCE($7, a.rejected_at),
			rejection_reason = COALESCE($8, a.rejection_reason),
			updated_at = $9
		WHERE a.id = $1
		RETURNING ` + applicationColumns
	d := change.Decision
	app, err := scanApplication(r.q(ctx).QueryRow(ctx, query,
		applicationID, change.Status, string(entry),
		d.ApprovedBy, d.ApprovedAt, d.RejectedBy, d.RejectedAt, d.Reason, change.Entry.At,
	))
	return app, translateWriteError(err)
}

// --- payments ---

const paymentColumns = `p.id::text, p.application_id::text, p.user_id, p.transaction_id, p.amount, p.currency, p.paid_at,
	p.payer_name, p.screenshot_url, p.status, p.rejection_reason, p.verified_by, p.verified_at,
	p.rejected_by, p.rejected_at, p.created_at, p.updated_at`

func paymentDest(p *domain.Payment) []any {
	return []any{
		&p.ID, &p.ApplicationID, &p.UserID, &p.TransactionID, &p.Amount, &p.Currency, &p.PaidAt,
		&p.PayerName, &p.ScreenshotURL, &p.Status, &p.RejectionReason, &p.VerifiedBy, &p.VerifiedAt,
		&p.RejectedBy, &p.RejectedAt, &p.CreatedAt, &p.UpdatedAt,
	}
}

func (r *PostgresRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM membership_payments WHERE transaction_id = $1)`, transactionID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) GetPaymentByApplicationID(ctx context.Context, applicationID string) (*domain.Payment, error) {
	if !isUUID(applicationID) {
		return nil, ErrPaymentNotFound
	}
	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM membership_payments p WHERE p.application_id = $1`
	if err := r.q(ctx).QueryRow(ctx, query, applicationID).Scan(paymentDest(&payment)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PostgresRepository) UpdatePaymentDecision(ctx context.Context, paymentID string, decision domain.PaymentDecision) error {
	if !isUUID(paymentID) {
		return ErrPaymentNotFound
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	switch decision.Status {
	case domain.PaymentStatusVerified:
		tag, err = r.q(ctx).Exec(ctx, `
			UPDATE membership_payments SET status = $2, verified_by = $3, verified_at = $4, updated_at = $4
			WHERE id = $1`, paymentID, decision.Status, decision.By, decision.At)
	case domain.PaymentStatusRejected:
		tag, err = r.q(ctx).Exec(ctx, `
			UPDATE membership_payments SET status = $2, rejected_by = $3, rejected_at = $4, rejection_reason = $5, updated_at = $4
			WHERE id = $1`, paymentID, decision.Status, decision.By, decision.At, decision.Reason)
	default:
		return fmt.Errorf("unsupported payment decision %q", decision.Status)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// --- memberships ---

const membershipColumns = `m.id, m.user_id, m.membership_type, m.application_id::text, m.status, m.start_date, m.end_date, m.renewal_count, m.created_at`

func membershipDest(m *domain.Membership) []any {
	return []any{&m.ID, &m.UserID, &m.MembershipType, &m.ApplicationID, &m.Status, &m.StartDate, &m.EndDate, &m.RenewalCount, &m.CreatedAt}
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	if err := row.Scan(membershipDest(&m)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

// NextSequence atomically increments and returns the named counter, starting at 1.
func (r *PostgresRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.q(ctx).QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`, name).Scan(&value)
	return value, err
}

func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO memberships (id, user_id, membership_type, application_id, status, start_date, end_date, renewal_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		m.ID, m.UserID, m.MembershipType, m.ApplicationID, m.Status, m.StartDate, m.EndDate, m.RenewalCount, m.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) HasActiveMembership(ctx context.Context, userID string, now time.Time) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND status = 'active' AND end_date > $2)`,
		userID, now).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) GetMembershipByApplicationID(ctx context.Context, applicationID string) (*domain.Membership, error) {
	if !isUUID(applicationID) {
		return nil, ErrMembershipNotFound
	}
	query := `SELECT ` + membershipColumns + ` FROM memberships m WHERE m.application_id = $1`
	return scanMembership(r.q(ctx).QueryRow(ctx, query, applicationID))
}

func (r *PostgresRepository) GetCurrentMembership(ctx context.Context, userID string, now time.Time) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships m
		WHERE m.user_id = $1 AND m.status = 'active' AND m.end_date > $2
		ORDER BY m.end_date DESC LIMIT 1`
	return scanMembership(r.q(ctx).QueryRow(ctx, query, userID, now))
}

// ExpireMemberships flips lapsed active memberships to expired and clears them from the
// owners' current membership pointer in one statement.
func (r *PostgresRepository) ExpireMemberships(ctx context.Context, now time.Time) ([]domain.Membership, error) {
	query := `
		WITH expired AS (
			UPDATE memberships m SET status = 'expired', updated_at = $1
			WHERE m.status = 'active' AND m.end_date <= $1
			RETURNING ` + membershipColumns + `
		), cleared AS (
			UPDATE users SET current_membership_id = NULL
			WHERE current_membership_id IN (SELECT id FROM expired)
		)
		SELECT * FROM expired`
	rows, err := r.q(ctx).Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(membershipDest(&m)...); err != nil {
			return nil, err
		}
		expired = append(expired, m)
	}
	return expired, rows.Err()
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
