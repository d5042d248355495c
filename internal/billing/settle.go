/**
 * @description
 * The settlement engine: validates preconditions, splits fees, requests the
 * three transfers through the ledger collaborator, advances the due date,
 * and applies all aggregate mutations as one staged commit.
 */
package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tributary-so/tributary/internal/domain"
)

// unixTime converts engine timestamps (Unix seconds) to time.Time in UTC.
func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// Ledger is the funds-transfer collaborator. Transfers move the smallest
// currency unit between accounts; BalanceOf reads the available balance of a
// funding account.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	BalanceOf(ctx context.Context, account string) (uint64, error)
}

// TransferAuthority is the capability scoped to exactly one settlement
// call's transfers: it binds the ledger to the funding account being
// debited, so the engine cannot move funds from anywhere else.
type TransferAuthority struct {
	ledger Ledger
	from   string
}

// NewTransferAuthority scopes a ledger to one funding account.
func NewTransferAuthority(ledger Ledger, fundingAccount string) TransferAuthority {
	return TransferAuthority{ledger: ledger, from: fundingAccount}
}

func (a TransferAuthority) balance(ctx context.Context) (uint64, error) {
	return a.ledger.BalanceOf(ctx, a.from)
}

func (a TransferAuthority) transfer(ctx context.Context, to string, amount uint64) error {
	return a.ledger.Transfer(ctx, a.from, to, amount)
}

// Settlement holds everything one settlement call reads and mutates. The
// caller guarantees exclusive access to the aggregates for the duration of
// the call.
type Settlement struct {
	Policy      *domain.PaymentPolicy
	UserPayment *domain.UserPayment
	Gateway     *domain.PaymentGateway
	Config      *domain.ProgramConfig
	Authority   TransferAuthority
}

// Settle executes one due payment. Preconditions are checked in order, each
// failing fast with its own error: policy active, gateway active, program
// not paused, payment due, balance sufficient. On success the gross amount
// is split, the three transfers are requested (zero-amount transfers are
// skipped), the due date is advanced from the old due date so missed cycles
// catch up, and the aggregates are mutated. Every fallible computation runs
// before the first transfer and every mutation after the last, so a failure
// anywhere leaves the aggregates untouched.
func Settle(ctx context.Context, s Settlement, now int64) (*domain.PaymentRecord, error) {
	policy, user, gateway, config := s.Policy, s.UserPayment, s.Gateway, s.Config

	if policy.Status != domain.StatusActive {
		return nil, ErrPolicyNotActive
	}
	if !gateway.IsActive {
		return nil, ErrGatewayInactive
	}
	if config.EmergencyPause {
		return nil, ErrProgramPaused
	}
	if now < policy.NextPaymentDue {
		return nil, ErrPaymentNotDue
	}

	amount := policy.PolicyType.Amount()
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	balance, err := s.Authority.balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading funding balance: %w", err)
	}
	if balance < amount {
		return nil, ErrInsufficientBalance
	}

	split, err := SplitFees(amount, gateway.GatewayFeeBps, config.ProtocolFeeBps)
	if err != nil {
		return nil, err
	}

	// Stage the new due date and counter checks before any transfer so that
	// nothing fallible runs between the first transfer and the commit.
	nextDue, err := NextDue(policy.NextPaymentDue, policy.Frequency, now)
	if err != nil {
		return nil, err
	}
	if policy.TotalPaid > math.MaxUint64-amount ||
		gateway.TotalProcessed > math.MaxUint64-amount ||
		policy.PaymentCount == math.MaxUint32 {
		return nil, ErrArithmeticOverflow
	}

	// An Active policy implies a nonzero active-policy count; a zero count on
	// the final cycle would underflow the decrement, so it aborts here,
	// before any transfer.
	lastCycle := renewalsExhausted(policy, policy.PaymentCount+1)
	if lastCycle && user.ActivePoliciesCount == 0 {
		return nil, ErrArithmeticOverflow
	}

	transfers := []struct {
		to     string
		amount uint64
	}{
		{policy.Recipient, split.RecipientAmount},
		{gateway.FeeRecipient, split.GatewayFee},
		{config.FeeRecipient, split.ProtocolFee},
	}
	for _, t := range transfers {
		if t.amount == 0 {
			continue
		}
		if err := s.Authority.transfer(ctx, t.to, t.amount); err != nil {
			return nil, fmt.Errorf("transfer of %d to %s: %w", t.amount, t.to, err)
		}
	}

	policy.NextPaymentDue = nextDue
	policy.TotalPaid += amount
	policy.PaymentCount++
	policy.UpdatedAt = unixTime(now)
	gateway.TotalProcessed += amount
	user.UpdatedAt = unixTime(now)

	if lastCycle {
		policy.Status = domain.StatusPaused
		user.ActivePoliciesCount--
	}

	return &domain.PaymentRecord{
		UserPayment: policy.UserPayment,
		PolicyID:    policy.PolicyID,
		Gateway:     gateway.Authority,
		Amount:      amount,
		Timestamp:   now,
		Memo:        policy.Memo,
		RecordID:    policy.PaymentCount,
	}, nil
}

// renewalsExhausted reports whether the settlement bringing the policy to
// count payments should stop billing: auto-renew switched off, or the
// renewal cap reached.
func renewalsExhausted(policy *domain.PaymentPolicy, count uint32) bool {
	sub := policy.PolicyType.Subscription
	if sub == nil {
		return false
	}
	if !sub.AutoRenew {
		return true
	}
	return sub.MaxRenewals != nil && count >= *sub.MaxRenewals
}
