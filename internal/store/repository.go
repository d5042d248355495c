/**
 * @description
 * Data access layer for the billing engine. Each aggregate lives in its own
 * table keyed the way the domain keys it; cross-aggregate links are plain
 * key columns resolved by lookup.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tributary-so/tributary/internal/domain"
)

var (
	ErrPolicyNotFound      = errors.New("payment policy not found")
	ErrUserPaymentNotFound = errors.New("user payment account not found")
	ErrGatewayNotFound     = errors.New("payment gateway not found")
	ErrConfigNotFound      = errors.New("program config not initialized")

	// ErrSettlementConflict reports that another settlement attempt holds
	// the policy's claim, or that the row changed between claim and commit.
	ErrSettlementConflict = errors.New("policy settled concurrently")
)

// settlementClaimTTL bounds how long a settlement claim can pin a policy.
// A claim older than this is treated as abandoned by a crashed attempt.
const settlementClaimTTL = time.Minute

const policyColumns = `user_payment, policy_id, recipient, gateway,
	amount, interval_seconds, auto_renew, max_renewals,
	status, frequency_kind, custom_seconds, memo,
	next_payment_due, total_paid, payment_count, created_at, updated_at`

// Repository handles database operations for all billing aggregates.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanPolicy(row pgx.Row) (*domain.PaymentPolicy, error) {
	var (
		policy      domain.PaymentPolicy
		sub         domain.Subscription
		maxRenewals *int64
		freqKind    string
		custom      int64
		memo        []byte
	)
	if err := row.Scan(
		&policy.UserPayment,
		&policy.PolicyID,
		&policy.Recipient,
		&policy.Gateway,
		&sub.Amount,
		&sub.IntervalSeconds,
		&sub.AutoRenew,
		&maxRenewals,
		&policy.Status,
		&freqKind,
		&custom,
		&memo,
		&policy.NextPaymentDue,
		&policy.TotalPaid,
		&policy.PaymentCount,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if maxRenewals != nil {
		v := uint32(*maxRenewals)
		sub.MaxRenewals = &v
	}
	policy.PolicyType = domain.PolicyType{Kind: domain.PolicyKindSubscription, Subscription: &sub}
	policy.Frequency = domain.PaymentFrequency{Kind: domain.FrequencyKind(freqKind), CustomSeconds: uint64(custom)}
	copy(policy.Memo[:], memo)

	return &policy, nil
}

// GetPolicy retrieves one policy by its (user payment, policy id) key.
func (r *Repository) GetPolicy(ctx context.Context, userPaymentKey string, policyID uint32) (*domain.PaymentPolicy, error) {
	query := `SELECT ` + policyColumns + `
		FROM payment_policies
		WHERE user_payment = $1 AND policy_id = $2`
	policy, err := scanPolicy(r.db.QueryRow(ctx, query, userPaymentKey, policyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return policy, nil
}

// ListDuePolicies returns active policies whose due time has passed,
// oldest due first.
func (r *Repository) ListDuePolicies(ctx context.Context, now time.Time, limit int) ([]domain.PaymentPolicy, error) {
	query := `SELECT ` + policyColumns + `
		FROM payment_policies
		WHERE status = 'active' AND next_payment_due <= $1
		ORDER BY next_payment_due ASC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []domain.PaymentPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}
	return policies, rows.Err()
}

// CreatePolicy inserts a policy and increments the owner's active-policy
// count in one transaction.
func (r *Repository) CreatePolicy(ctx context.Context, policy *domain.PaymentPolicy) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var maxRenewals *int64
	sub := policy.PolicyType.Subscription
	if sub.MaxRenewals != nil {
		v := int64(*sub.MaxRenewals)
		maxRenewals = &v
	}

	insert := `INSERT INTO payment_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	if _, err := tx.Exec(ctx, insert,
		policy.UserPayment,
		policy.PolicyID,
		policy.Recipient,
		policy.Gateway,
		sub.Amount,
		sub.IntervalSeconds,
		sub.AutoRenew,
		maxRenewals,
		policy.Status,
		string(policy.Frequency.Kind),
		policy.Frequency.CustomSeconds,
		policy.Memo[:],
		policy.NextPaymentDue,
		policy.TotalPaid,
		policy.PaymentCount,
		policy.CreatedAt,
		policy.UpdatedAt,
	); err != nil {
		return err
	}

	update := `UPDATE user_payments
		SET active_policies_count = active_policies_count + 1, updated_at = $2
		WHERE key = $1`
	tag, err := tx.Exec(ctx, update, policy.UserPayment, policy.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserPaymentNotFound
	}

	return tx.Commit(ctx)
}

// UpdatePolicyStatus persists a pause/resume transition and adjusts the
// owner's active-policy count by countDelta.
func (r *Repository) UpdatePolicyStatus(ctx context.Context, policy *domain.PaymentPolicy, countDelta int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	update := `UPDATE payment_policies
		SET status = $3, updated_at = $4
		WHERE user_payment = $1 AND policy_id = $2`
	tag, err := tx.Exec(ctx, update, policy.UserPayment, policy.PolicyID, policy.Status, policy.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPolicyNotFound
	}

	if countDelta != 0 {
		adjust := `UPDATE user_payments
			SET active_policies_count = active_policies_count + $2, updated_at = $3
			WHERE key = $1`
		if _, err := tx.Exec(ctx, adjust, policy.UserPayment, countDelta, policy.UpdatedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ClaimSettlementAttempt marks one policy row as being settled, so the cron
// sweep and the gateway HTTP trigger cannot both move money for the same
// policy. The claim must be taken before any transfer is requested; it ends
// when CommitSettlement or ReleaseSettlementClaim clears it, or after
// settlementClaimTTL. A policy already claimed by another attempt yields
// ErrSettlementConflict.
func (r *Repository) ClaimSettlementAttempt(ctx context.Context, userPaymentKey string, policyID uint32, attemptAt time.Time) (*domain.PaymentPolicy, error) {
	query := `UPDATE payment_policies
		SET claimed_at = $3
		WHERE user_payment = $1 AND policy_id = $2
		  AND (claimed_at IS NULL OR claimed_at < $4)
		RETURNING ` + policyColumns
	policy, err := scanPolicy(r.db.QueryRow(ctx, query,
		userPaymentKey, policyID, attemptAt, attemptAt.Add(-settlementClaimTTL)))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Distinguish a missing policy from one claimed by another attempt.
		if _, err := r.GetPolicy(ctx, userPaymentKey, policyID); err != nil {
			return nil, err
		}
		return nil, ErrSettlementConflict
	}
	return policy, nil
}

// ReleaseSettlementClaim clears the claim of a settlement attempt that did
// not commit.
func (r *Repository) ReleaseSettlementClaim(ctx context.Context, userPaymentKey string, policyID uint32) error {
	query := `UPDATE payment_policies
		SET claimed_at = NULL
		WHERE user_payment = $1 AND policy_id = $2`
	_, err := r.db.Exec(ctx, query, userPaymentKey, policyID)
	return err
}

// CommitSettlement writes every mutation of one settlement in a single
// transaction and ends the claim. The policy update stays guarded on the
// pre-settlement payment count and due date as a final consistency check
// behind the claim.
func (r *Repository) CommitSettlement(ctx context.Context, policy *domain.PaymentPolicy,
	user *domain.UserPayment, gateway *domain.PaymentGateway, previousDue int64) error {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	updatePolicy := `UPDATE payment_policies
		SET status = $3,
		    next_payment_due = $4,
		    total_paid = $5,
		    payment_count = $6,
		    updated_at = $7,
		    claimed_at = NULL
		WHERE user_payment = $1 AND policy_id = $2
		  AND payment_count = $8 AND next_payment_due = $9`
	tag, err := tx.Exec(ctx, updatePolicy,
		policy.UserPayment,
		policy.PolicyID,
		policy.Status,
		policy.NextPaymentDue,
		policy.TotalPaid,
		policy.PaymentCount,
		policy.UpdatedAt,
		policy.PaymentCount-1,
		previousDue,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementConflict
	}

	updateUser := `UPDATE user_payments
		SET active_policies_count = $2, updated_at = $3
		WHERE key = $1`
	if _, err := tx.Exec(ctx, updateUser, user.Key(), user.ActivePoliciesCount, user.UpdatedAt); err != nil {
		return err
	}

	updateGateway := `UPDATE payment_gateways
		SET total_processed = $2
		WHERE authority = $1`
	if _, err := tx.Exec(ctx, updateGateway, gateway.Authority, gateway.TotalProcessed); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetUserPayment retrieves a user payment account by its composite key.
func (r *Repository) GetUserPayment(ctx context.Context, key string) (*domain.UserPayment, error) {
	query := `SELECT owner, funding_account, active_policies_count, is_active, created_at, updated_at
		FROM user_payments
		WHERE key = $1`
	var user domain.UserPayment
	if err := r.db.QueryRow(ctx, query, key).Scan(
		&user.Owner,
		&user.FundingAccount,
		&user.ActivePoliciesCount,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserPaymentNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUserPayment inserts a user payment account.
func (r *Repository) CreateUserPayment(ctx context.Context, user *domain.UserPayment) error {
	query := `INSERT INTO user_payments (key, owner, funding_account, active_policies_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		user.Key(),
		user.Owner,
		user.FundingAccount,
		user.ActivePoliciesCount,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// GetGateway retrieves a gateway by its operator authority.
func (r *Repository) GetGateway(ctx context.Context, authority string) (*domain.PaymentGateway, error) {
	query := `SELECT authority, fee_recipient, gateway_fee_bps, is_active, total_processed, created_at
		FROM payment_gateways
		WHERE authority = $1`
	var gateway domain.PaymentGateway
	if err := r.db.QueryRow(ctx, query, authority).Scan(
		&gateway.Authority,
		&gateway.FeeRecipient,
		&gateway.GatewayFeeBps,
		&gateway.IsActive,
		&gateway.TotalProcessed,
		&gateway.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGatewayNotFound
		}
		return nil, err
	}
	return &gateway, nil
}

// CreateGateway inserts a payment gateway.
func (r *Repository) CreateGateway(ctx context.Context, gateway *domain.PaymentGateway) error {
	query := `INSERT INTO payment_gateways (authority, fee_recipient, gateway_fee_bps, is_active, total_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, query,
		gateway.Authority,
		gateway.FeeRecipient,
		gateway.GatewayFeeBps,
		gateway.IsActive,
		gateway.TotalProcessed,
		gateway.CreatedAt,
	)
	return err
}

// GetProgramConfig retrieves the singleton program configuration.
func (r *Repository) GetProgramConfig(ctx context.Context) (*domain.ProgramConfig, error) {
	query := `SELECT admin, fee_recipient, protocol_fee_bps, max_policies_per_user, emergency_pause
		FROM program_config
		WHERE id = 1`
	var config domain.ProgramConfig
	if err := r.db.QueryRow(ctx, query).Scan(
		&config.Admin,
		&config.FeeRecipient,
		&config.ProtocolFeeBps,
		&config.MaxPoliciesPerUser,
		&config.EmergencyPause,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &config, nil
}

// SaveProgramConfig creates or replaces the singleton program configuration.
func (r *Repository) SaveProgramConfig(ctx context.Context, config *domain.ProgramConfig) error {
	query := `INSERT INTO program_config (id, admin, fee_recipient, protocol_fee_bps, max_policies_per_user, emergency_pause)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET admin = EXCLUDED.admin,
		    fee_recipient = EXCLUDED.fee_recipient,
		    protocol_fee_bps = EXCLUDED.protocol_fee_bps,
		    max_policies_per_user = EXCLUDED.max_policies_per_user,
		    emergency_pause = EXCLUDED.emergency_pause`
	_, err := r.db.Exec(ctx, query,
		config.Admin,
		config.FeeRecipient,
		config.ProtocolFeeBps,
		config.MaxPoliciesPerUser,
		config.EmergencyPause,
	)
	return err
}
