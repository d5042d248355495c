/**
 * @description
 * Core domain models for payment policies: the policy aggregate, its
 * variant types (policy kind, frequency, status), and the memo field.
 */
package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// MemoSize is the fixed size of a policy memo.
const MemoSize = 64

// Memo is a fixed-size note attached to a policy and echoed on every
// payment record.
type Memo [MemoSize]byte

// NewMemo builds a Memo from a string, truncating to MemoSize bytes.
func NewMemo(s string) Memo {
	var m Memo
	copy(m[:], s)
	return m
}

// String returns the memo with trailing zero bytes removed.
func (m Memo) String() string {
	return string(bytes.TrimRight(m[:], "\x00"))
}

// MarshalJSON renders the memo as a trimmed string.
func (m Memo) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON parses a string into the fixed-size memo.
func (m *Memo) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*m = NewMemo(s)
	return nil
}

// PolicyKind tags the PolicyType variant set.
type PolicyKind string

const (
	PolicyKindSubscription PolicyKind = "subscription"
)

// PolicyType is the tagged variant describing the amount and cadence of one
// billing cycle. Only the subscription variant exists today; the tag keeps
// the encoding stable when further kinds (one-time, milestone) are added.
type PolicyType struct {
	Kind         PolicyKind    `json:"kind"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Subscription is the recurring-payment policy variant.
type Subscription struct {
	Amount          uint64  `json:"amount"`
	IntervalSeconds uint64  `json:"interval_seconds"`
	AutoRenew       bool    `json:"auto_renew"`
	MaxRenewals     *uint32 `json:"max_renewals,omitempty"`
}

// NewSubscriptionPolicy builds a subscription policy type.
func NewSubscriptionPolicy(amount, intervalSeconds uint64, autoRenew bool, maxRenewals *uint32) PolicyType {
	return PolicyType{
		Kind: PolicyKindSubscription,
		Subscription: &Subscription{
			Amount:          amount,
			IntervalSeconds: intervalSeconds,
			AutoRenew:       autoRenew,
			MaxRenewals:     maxRenewals,
		},
	}
}

// Amount returns the gross amount of one billing cycle.
func (p PolicyType) Amount() uint64 {
	if p.Kind == PolicyKindSubscription && p.Subscription != nil {
		return p.Subscription.Amount
	}
	return 0
}

// FrequencyKind tags the PaymentFrequency variant set.
type FrequencyKind string

const (
	FrequencyDaily        FrequencyKind = "daily"
	FrequencyWeekly       FrequencyKind = "weekly"
	FrequencyMonthly      FrequencyKind = "monthly"
	FrequencyQuarterly    FrequencyKind = "quarterly"
	FrequencySemiAnnually FrequencyKind = "semi_annually"
	FrequencyAnnually     FrequencyKind = "annually"
	FrequencyCustom       FrequencyKind = "custom"
)

// PaymentFrequency is the cadence descriptor consumed by the due-date
// scheduler. CustomSeconds is meaningful only when Kind is FrequencyCustom.
type PaymentFrequency struct {
	Kind          FrequencyKind `json:"kind"`
	CustomSeconds uint64        `json:"custom_seconds,omitempty"`
}

// Custom builds a custom fixed-interval frequency.
func Custom(seconds uint64) PaymentFrequency {
	return PaymentFrequency{Kind: FrequencyCustom, CustomSeconds: seconds}
}

// Frequency builds a non-custom frequency.
func Frequency(kind FrequencyKind) PaymentFrequency {
	return PaymentFrequency{Kind: kind}
}

// PaymentStatus governs whether settlement may proceed on a policy.
type PaymentStatus string

const (
	StatusActive PaymentStatus = "active"
	StatusPaused PaymentStatus = "paused"
)

// PaymentPolicy is one payer's agreement to pay a recipient on a schedule.
// It is keyed by (user payment account, policy id); the user-payment and
// gateway fields are non-owning back-references resolved by lookup.
type PaymentPolicy struct {
	UserPayment    string           `json:"user_payment"`
	PolicyID       uint32           `json:"policy_id"`
	Recipient      string           `json:"recipient"`
	Gateway        string           `json:"gateway"`
	PolicyType     PolicyType       `json:"policy_type"`
	Status         PaymentStatus    `json:"status"`
	Frequency      PaymentFrequency `json:"frequency"`
	Memo           Memo             `json:"memo"`
	NextPaymentDue int64            `json:"next_payment_due"`
	TotalPaid      uint64           `json:"total_paid"`
	PaymentCount   uint32           `json:"payment_count"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
