/**
 * @description
 * Policy lifecycle: parameter validation at creation and the legal status
 * transitions (Active <-> Paused). Settlement is rejected while paused.
 */
package billing

import (
	"time"

	"github.com/tributary-so/tributary/internal/domain"
)

// ValidatePolicyParams checks policy parameters before any state is created.
func ValidatePolicyParams(policyType domain.PolicyType, frequency domain.PaymentFrequency) error {
	switch policyType.Kind {
	case domain.PolicyKindSubscription:
		sub := policyType.Subscription
		if sub == nil || sub.Amount == 0 {
			return ErrInvalidAmount
		}
		if sub.MaxRenewals != nil && *sub.MaxRenewals == 0 {
			return ErrInvalidMaxRenewals
		}
	default:
		return ErrInvalidPolicyType
	}

	switch frequency.Kind {
	case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly,
		domain.FrequencyQuarterly, domain.FrequencySemiAnnually, domain.FrequencyAnnually:
		return nil
	case domain.FrequencyCustom:
		if frequency.CustomSeconds == 0 {
			return ErrInvalidInterval
		}
		return nil
	default:
		return ErrInvalidFrequency
	}
}

// NewPolicy validates the parameters and builds an Active policy. The first
// due date is startTime when given, otherwise now.
func NewPolicy(userPaymentKey string, policyID uint32, recipient, gatewayKey string,
	policyType domain.PolicyType, frequency domain.PaymentFrequency,
	memo domain.Memo, startTime *int64, now time.Time) (*domain.PaymentPolicy, error) {

	if err := ValidatePolicyParams(policyType, frequency); err != nil {
		return nil, err
	}

	nextDue := now.Unix()
	if startTime != nil {
		nextDue = *startTime
	}

	return &domain.PaymentPolicy{
		UserPayment:    userPaymentKey,
		PolicyID:       policyID,
		Recipient:      recipient,
		Gateway:        gatewayKey,
		PolicyType:     policyType,
		Status:         domain.StatusActive,
		Frequency:      frequency,
		Memo:           memo,
		NextPaymentDue: nextDue,
		TotalPaid:      0,
		PaymentCount:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Pause moves an Active policy to Paused.
func Pause(policy *domain.PaymentPolicy, now time.Time) error {
	if policy.Status == domain.StatusPaused {
		return ErrAlreadyPaused
	}
	policy.Status = domain.StatusPaused
	policy.UpdatedAt = now
	return nil
}

// Resume moves a Paused policy back to Active.
func Resume(policy *domain.PaymentPolicy, now time.Time) error {
	if policy.Status == domain.StatusActive {
		return ErrAlreadyActive
	}
	policy.Status = domain.StatusActive
	policy.UpdatedAt = now
	return nil
}
