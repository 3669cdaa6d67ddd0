package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

type memoryTxKey struct{}

type memoryState struct {
	types        map[domain.Category]domain.MembershipTypeConfig
	users        map[string]domain.User
	applications map[string]domain.Application
	payments     map[string]domain.Payment
	memberships  map[string]domain.Membership
	counters     map[string]int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		types:        make(map[domain.Category]domain.MembershipTypeConfig),
		users:        make(map[string]domain.User),
		applications: make(map[string]domain.Application),
		payments:     make(map[string]domain.Payment),
		memberships:  make(map[string]domain.Membership),
		counters:     make(map[string]int64),
	}
}

// clone copies the maps. Stored values are replaced on update, never mutated in place,
// so a shallow copy is a consistent snapshot.
func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.types {
		c.types[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

// MemoryRepository is an in-process Repository used for local development and tests.
// Transactions are serialised and rolled back by restoring a snapshot.
type MemoryRepository struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemoryState()}
}

// PutUser stores a user read model, replacing any previous one.
func (r *MemoryRepository) PutUser(user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.users[user.ID] = user
}

func inMemoryTx(ctx context.Context) bool {
	_, ok := ctx.Value(memoryTxKey{}).(bool)
	return ok
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inMemoryTx(ctx) {
		return fn(ctx)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	snapshot := r.state.clone()
	r.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			r.restore(snapshot)
			panic(p)
		} else if err != nil {
			r.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, memoryTxKey{}, true))
}

func (r *MemoryRepository) restore(snapshot *memoryState) {
	r.mu.Lock()
	r.state = snapshot
	r.mu.Unlock()
}

// write runs fn under the write lock. Outside a transaction it also waits for running
// transactions so a rollback cannot discard the write.
func (r *MemoryRepository) write(ctx context.Context, fn func(s *memoryState) error) error {
	if !inMemoryTx(ctx) {
		r.txMu.Lock()
		defer r.txMu.Unlock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

func (r *MemoryRepository) read(fn func(s *memoryState)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.state)
}

func (r *MemoryRepository) GetOrCreateMembershipType(ctx context.Context, defaults domain.MembershipTypeConfig) (*domain.MembershipTypeConfig, error) {
	var cfg domain.MembershipTypeConfig
	err := r.write(ctx, func(s *memoryState) error {
		existing, ok := s.types[defaults.Code]
		if !ok {
			now := time.Now().UTC()
			existing = defaults
			existing.CreatedAt, existing.UpdatedAt = now, now
			s.types[defaults.Code] = existing
		}
		cfg = existing
		return nil
	})
	return &cfg, err
}

func (r *MemoryRepository) GetMembershipType(ctx context.Context, code domain.Category) (*domain.MembershipTypeConfig, error) {
	var (
		cfg domain.MembershipTypeConfig
		ok  bool
	)
	r.read(func(s *memoryState) { cfg, ok = s.types[code] })
	if !ok {
		return nil, ErrMembershipTypeNotFound
	}
	return &cfg, nil
}

func (r *MemoryRepository) ListMembershipTypes(ctx context.Context) ([]domain.MembershipTypeConfig, error) {
	var types []domain.MembershipTypeConfig
	r.read(func(s *memoryState) {
		for _, cfg := range s.types {
			types = append(types, cfg)
		}
	})
	sort.Slice(types, func(i, j int) bool {
		if types[i].Tier != types[j].Tier {
			return types[i].Tier < types[j].Tier
		}
		return types[i].Code < types[j].Code
	})
	return types, nil
}

func (r *MemoryRepository) UpdateMembershipType(ctx context.Context, code domain.Category, patch domain.MembershipTypePatch) (*domain.MembershipTypeConfig, error) {
	var cfg domain.MembershipTypeConfig
	err := r.write(ctx, func(s *memoryState) error {
		existing, ok := s.types[code]
		if !ok {
			return ErrMembershipTypeNotFound
		}
		if patch.Fee != nil && patch.Fee.Currency == "" {
			fee := *patch.Fee
			fee.Currency = existing.Fee.Currency
			patch.Fee = &fee
		}
		cfg = patch.Apply(existing)
		cfg.UpdatedAt = time.Now().UTC()
		s.types[code] = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *MemoryRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	var (
		user domain.User
		ok   bool
	)
	r.read(func(s *memoryState) { user, ok = s.users[userID] })
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *MemoryRepository) SetCurrentMembership(ctx context.Context, userID, membershipID string) error {
	return r.write(ctx, func(s *memoryState) error {
		user, ok := s.users[userID]
		if !ok {
			return nil
		}
		id := membershipID
		user.CurrentMembershipID = &id
		s.users[userID] = user
		return nil
	})
}

func (s *memoryState) hasPending(userID, exceptID string) bool {
	for _, app := range s.applications {
		if app.UserID == userID && app.ID != exceptID && domain.IsPendingStatus(app.Status) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) HasPendingApplication(ctx context.Context, userID string) (bool, error) {
	var pending bool
	r.read(func(s *memoryState) { pending = s.hasPending(userID, "") })
	return pending, nil
}

func (r *MemoryRepository) CreateApplicationWithPayment(ctx context.Context, application *domain.Application, payment *domain.Payment) error {
	return r.write(ctx, func(s *memoryState) error {
		for _, p := range s.payments {
			if p.TransactionID == payment.TransactionID {
				return ErrDuplicateTransactionID
			}
		}
		if domain.IsPendingStatus(application.Status) && s.hasPending(application.UserID, "") {
			return ErrPendingApplicationExists
		}
		s.applications[application.ID] = cloneApplication(*application)
		s.payments[payment.ID] = *payment
		return nil
	})
}

func (r *MemoryRepository) GetApplication(ctx context.Context, applicationID string) (*domain.Application, error) {
	var (
		app domain.Application
		ok  bool
	)
	r.read(func(s *memoryState) { app, ok = s.applications[applicationID] })
	if !ok {
		return nil, ErrApplicationNotFound
	}
	app = cloneApplication(app)
	return &app, nil
}

// GetApplicationForUpdate needs no row lock; transactions are already serialised.
func (r *MemoryRepository) GetApplicationForUpdate(ctx context.Context, applicationID string) (*domain.Application, error) {
	return r.GetApplication(ctx, applicationID)
}

func (r *MemoryRepository) GetLatestApplicationByUserID(ctx context.Context, userID string) (*domain.Application, error) {
	var (
		latest domain.Application
		found  bool
	)
	r.read(func(s *memoryState) {
		for _, app := range s.applications {
			if app.UserID != userID {
				continue
			}
			if !found || newerThan(app, latest) {
				latest, found = app, true
			}
		}
	})
	if !found {
		return nil, ErrApplicationNotFound
	}
	latest = cloneApplication(latest)
	return &latest, nil
}

func (r *MemoryRepository) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]domain.ApplicationDetail, int, error) {
	var matched []domain.ApplicationDetail
	r.read(func(s *memoryState) {
		for _, app := range s.applications {
			if filter.Status != "" && app.Status != filter.Status {
				continue
			}
			if filter.MembershipType != "" && app.MembershipType != filter.MembershipType {
				continue
			}
			detail := domain.ApplicationDetail{Application: cloneApplication(app)}
			for _, p := range s.payments {
				if p.ApplicationID == app.ID {
					p := p
					detail.Payment = &p
					break
				}
			}
			if user, ok := s.users[app.UserID]; ok {
				detail.User = &user
			}
			if cfg, ok := s.types[app.MembershipType]; ok {
				detail.MembershipInfo = &cfg
			}
			matched = append(matched, detail)
		}
	})

	sort.Slice(matched, func(i, j int) bool { return newerThan(matched[i].Application, matched[j].Application) })

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return nil, total, nil
	}
	end := total
	if filter.PageSize > 0 && start+filter.PageSize < end {
		end = start + filter.PageSize
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) AppendApplicationStatus(ctx context.Context, applicationID string, change domain.StatusChange) (*domain.Application, error) {
	var updated domain.Application
	err := r.write(ctx, func(s *memoryState) error {
		app, ok := s.applications[applicationID]
		if !ok {
			return ErrApplicationNotFound
		}
		if domain.IsPendingStatus(change.Status) && s.hasPending(app.UserID, app.ID) {
			return ErrPendingApplicationExists
		}
		app = cloneApplication(app)
		app.Status = change.Status
		app.History = append(app.History, change.Entry)
		mergeDecision(&app.Decision, change.Decision)
		app.UpdatedAt = change.Entry.At
		s.applications[applicationID] = app
		updated = cloneApplication(app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MemoryRepository) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	r.read(func(s *memoryState) {
		for _, p := range s.payments {
			if p.TransactionID == transactionID {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (r *MemoryRepository) GetPaymentByApplicationID(ctx context.Context, applicationID string) (*domain.Payment, error) {
	var (
		payment domain.Payment
		found   bool
	)
	r.read(func(s *memoryState) {
		for _, p := range s.payments {
			if p.ApplicationID == applicationID {
				payment, found = p, true
				return
			}
		}
	})
	if !found {
		return nil, ErrPaymentNotFound
	}
	return &payment, nil
}

func (r *MemoryRepository) UpdatePaymentDecision(ctx context.Context, paymentID string, decision domain.PaymentDecision) error {
	return r.write(ctx, func(s *memoryState) error {
		p, ok := s.payments[paymentID]
		if !ok {
			return ErrPaymentNotFound
		}
		by, at := decision.By, decision.At
		p.Status = decision.Status
		switch decision.Status {
		case domain.PaymentStatusVerified:
			p.VerifiedBy, p.VerifiedAt = &by, &at
		case domain.PaymentStatusRejected:
			p.RejectedBy, p.RejectedAt, p.RejectionReason = &by, &at, decision.Reason
		}
		p.UpdatedAt = at
		s.payments[paymentID] = p
		return nil
	})
}

func (r *MemoryRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.write(ctx, func(s *memoryState) error {
		s.counters[name]++
		value = s.counters[name]
		return nil
	})
	return value, err
}

func (r *MemoryRepository) CreateMembership(ctx context.Context, membership *domain.Membership) error {
	return r.write(ctx, func(s *memoryState) error {
		s.memberships[membership.ID] = *membership
		return nil
	})
}

func (r *MemoryRepository) HasActiveMembership(ctx context.Context, userID string, now time.Time) (bool, error) {
	m, err := r.GetCurrentMembership(ctx, userID, now)
	if err == ErrMembershipNotFound {
		return false, nil
	}
	return m != nil, err
}

func (r *MemoryRepository) GetMembershipByApplicationID(ctx context.Context, applicationID string) (*domain.Membership, error) {
	var (
		membership domain.Membership
		found      bool
	)
	r.read(func(s *memoryState) {
		for _, m := range s.memberships {
			if m.ApplicationID == applicationID {
				membership, found = m, true
				return
			}
		}
	})
	if !found {
		return nil, ErrMembershipNotFound
	}
	return &membership, nil
}

func (r *MemoryRepository) GetCurrentMembership(ctx context.Context, userID string, now time.Time) (*domain.Membership, error) {
	var (
		current domain.Membership
		found   bool
	)
	r.read(func(s *memoryState) {
		for _, m := range s.memberships {
			if m.UserID != userID || !m.IsCurrent(now) {
				continue
			}
			if !found || m.EndDate.After(current.EndDate) {
				current, found = m, true
			}
		}
	})
	if !found {
		return nil, ErrMembershipNotFound
	}
	return &current, nil
}

func (r *MemoryRepository) ExpireMemberships(ctx context.Context, now time.Time) ([]domain.Membership, error) {
	var expired []domain.Membership
	err := r.write(ctx, func(s *memoryState) error {
		for id, m := range s.memberships {
			if m.Status != domain.MembershipStatusActive || m.EndDate.After(now) {
				continue
			}
			m.Status = domain.MembershipStatusExpired
			s.memberships[id] = m
			expired = append(expired, m)

			if user, ok := s.users[m.UserID]; ok && user.CurrentMembershipID != nil && *user.CurrentMembershipID == id {
				user.CurrentMembershipID = nil
				s.users[m.UserID] = user
			}
		}
		return nil
	})
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, err
}

func cloneApplication(app domain.Application) domain.Application {
	app.History = append([]domain.HistoryEntry(nil), app.History...)
	app.FormData = append([]byte(nil), app.FormData...)
	return app
}

func mergeDecision(dst *domain.Decision, src domain.Decision) {
	if src.ApprovedBy != nil {
		dst.ApprovedBy = src.ApprovedBy
	}
	if src.ApprovedAt != nil {
		dst.ApprovedAt = src.ApprovedAt
	}
	if src.RejectedBy != nil {
		dst.RejectedBy = src.RejectedBy
	}
	if src.RejectedAt != nil {
		dst.RejectedAt = src.RejectedAt
	}
	if src.Reason != nil {
		dst.Reason = src.Reason
	}
}

func newerThan(a, b domain.Application) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
