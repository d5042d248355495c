/**
 * @description
 * Scheduled job implementations for the billing service. The due-payment
 * sweep is the external trigger of the settlement engine; it decides when to
 * poll, never whether or how much to pay.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tributary-so/tributary/internal/billing"
	"github.com/tributary-so/tributary/internal/config"
	"github.com/tributary-so/tributary/internal/domain"
)

// Biller defines the service operations the jobs need.
type Biller interface {
	ListDuePolicies(ctx context.Context, now time.Time, limit int) ([]domain.PaymentPolicy, error)
	SettlePolicy(ctx context.Context, userPaymentKey string, policyID uint32, now time.Time) (*domain.PaymentRecord, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	biller Biller
	logger *slog.Logger
	config config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(biller Biller, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{biller: biller, logger: logger, config: cfg}
}

// ProcessDuePayments settles every policy whose due time has passed. A
// failure on one policy is logged and the sweep moves on; timing and
// balance errors are expected here and retried on the next sweep.
func (j *Jobs) ProcessDuePayments() {
	j.logger.Info("starting due payment sweep")
	ctx := context.Background()
	now := time.Now().UTC()

	limit := j.config.DuePaymentBatchSize
	if limit <= 0 {
		limit = 100
	}

	policies, err := j.biller.ListDuePolicies(ctx, now, limit)
	if err != nil {
		j.logger.Error("failed to list due policies", "error", err)
		return
	}
	if len(policies) == 0 {
		j.logger.Info("no due policies to settle")
		return
	}

	j.logger.Info("found due policies", "count", len(policies))

	settled := 0
	for _, policy := range policies {
		record, err := j.biller.SettlePolicy(ctx, policy.UserPayment, policy.PolicyID, now)
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, billing.ErrPaymentNotDue) || errors.Is(err, billing.ErrInsufficientBalance) {
				level = slog.LevelWarn
			}
			j.logger.Log(ctx, level, "failed to settle policy",
				"user_payment", policy.UserPayment, "policy_id", policy.PolicyID, "error", err)
			continue
		}
		settled++
		j.logger.Info("settled policy",
			"user_payment", policy.UserPayment, "policy_id", policy.PolicyID,
			"amount", record.Amount, "record_id", record.RecordID)
	}

	j.logger.Info("due payment sweep finished", "settled", settled, "evaluated", len(policies))
}
