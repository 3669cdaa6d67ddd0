/**
 * @description
 * Scheduled job implementations for the membership service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// MembershipExpirer marks lapsed memberships as expired.
type MembershipExpirer interface {
	ExpireMemberships(ctx context.Context) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	expirer MembershipExpirer
	logger  *slog.Logger
	timeout time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(expirer MembershipExpirer, logger *slog.Logger) *Jobs {
	return &Jobs{expirer: expirer, logger: logger, timeout: 2 * time.Minute}
}

// ProcessMembershipExpiry moves memberships past their end date to expired.
func (j *Jobs) ProcessMembershipExpiry() {
	j.logger.Info("starting membership expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	count, err := j.expirer.ExpireMemberships(ctx)
	if err != nil {
		j.logger.Error("failed to expire memberships", "error", err)
		return
	}
	if count == 0 {
		j.logger.Info("no memberships to expire")
		return
	}

	j.logger.Info("membership expiry job finished", "expired", count)
}
