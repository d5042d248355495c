/**
 * @description
 * Aggregates surrounding a payment policy: the payer's funding link, the
 * gateway operator, the program configuration singleton, and the payment
 * record event emitted per settlement.
 */
package domain

import "time"

// MaxBps is the full basis-point scale (100%).
const MaxBps = 10_000

// UserPayment links a payer to a funding account. Keyed by
// (owner, funding account).
type UserPayment struct {
	Owner               string    `json:"owner"`
	FundingAccount      string    `json:"funding_account"`
	ActivePoliciesCount uint32    `json:"active_policies_count"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Key returns the store key for the user payment account.
func (u UserPayment) Key() string {
	return u.Owner + ":" + u.FundingAccount
}

// PaymentGateway is an operator that triggers settlement and takes a cut of
// each payment. Keyed by its authority. Never deleted, only deactivated.
type PaymentGateway struct {
	Authority      string    `json:"authority"`
	FeeRecipient   string    `json:"fee_recipient"`
	GatewayFeeBps  uint16    `json:"gateway_fee_bps"`
	IsActive       bool      `json:"is_active"`
	TotalProcessed uint64    `json:"total_processed"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProgramConfig is the singleton program configuration. Created once by the
// admin; only admin actions mutate it.
type ProgramConfig struct {
	Admin              string `json:"admin"`
	FeeRecipient       string `json:"fee_recipient"`
	ProtocolFeeBps     uint16 `json:"protocol_fee_bps"`
	MaxPoliciesPerUser uint32 `json:"max_policies_per_user"`
	EmergencyPause     bool   `json:"emergency_pause"`
}

// PaymentRecord is the event emitted once per successful settlement. It is
// not stored by the engine; RecordID equals the policy's payment count after
// increment and is therefore monotonically increasing per policy.
type PaymentRecord struct {
	UserPayment string `json:"user_payment"`
	PolicyID    uint32 `json:"policy_id"`
	Gateway     string `json:"gateway"`
	Amount      uint64 `json:"amount"`
	Timestamp   int64  `json:"timestamp"`
	Memo        Memo   `json:"memo"`
	RecordID    uint32 `json:"record_id"`
}
