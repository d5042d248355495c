/**
 * @description
 * Core business logic for the billing service. The Service wires the
 * keyed aggregate store, the ledger collaborator, and the event publisher
 * around the settlement engine.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tributary-so/tributary/internal/billing"
	"github.com/tributary-so/tributary/internal/domain"
	"github.com/tributary-so/tributary/pkg/rabbitmq"
)

// Default program parameters applied when the config singleton is first
// created.
const (
	defaultProtocolFeeBps     = 100 // 1%
	defaultMaxPoliciesPerUser = 10
)

// Repository defines the aggregate store operations the service needs.
type Repository interface {
	GetPolicy(ctx context.Context, userPaymentKey string, policyID uint32) (*domain.PaymentPolicy, error)
	ListDuePolicies(ctx context.Context, now time.Time, limit int) ([]domain.PaymentPolicy, error)
	CreatePolicy(ctx context.Context, policy *domain.PaymentPolicy) error
	UpdatePolicyStatus(ctx context.Context, policy *domain.PaymentPolicy, countDelta int) error
	ClaimSettlementAttempt(ctx context.Context, userPaymentKey string, policyID uint32, attemptAt time.Time) (*domain.PaymentPolicy, error)
	ReleaseSettlementClaim(ctx context.Context, userPaymentKey string, policyID uint32) error
	CommitSettlement(ctx context.Context, policy *domain.PaymentPolicy, user *domain.UserPayment, gateway *domain.PaymentGateway, previousDue int64) error
	GetUserPayment(ctx context.Context, key string) (*domain.UserPayment, error)
	CreateUserPayment(ctx context.Context, user *domain.UserPayment) error
	GetGateway(ctx context.Context, authority string) (*domain.PaymentGateway, error)
	CreateGateway(ctx context.Context, gateway *domain.PaymentGateway) error
	GetProgramConfig(ctx context.Context) (*domain.ProgramConfig, error)
	SaveProgramConfig(ctx context.Context, config *domain.ProgramConfig) error
}

// EventPublisher defines the interface for publishing billing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Service provides the business logic for recurring payments.
type Service struct {
	repo      Repository
	ledger    billing.Ledger
	publisher EventPublisher
}

// NewService creates a new billing service.
func NewService(repo Repository, ledger billing.Ledger, publisher EventPublisher) Service {
	return Service{repo: repo, ledger: ledger, publisher: publisher}
}

// InitializeProgram creates the program config singleton with default fee
// parameters, the admin doubling as protocol fee recipient.
func (s Service) InitializeProgram(ctx context.Context, admin string) (*domain.ProgramConfig, error) {
	if admin == "" {
		return nil, errors.New("admin is required")
	}

	config := &domain.ProgramConfig{
		Admin:              admin,
		FeeRecipient:       admin,
		ProtocolFeeBps:     defaultProtocolFeeBps,
		MaxPoliciesPerUser: defaultMaxPoliciesPerUser,
		EmergencyPause:     false,
	}
	if err := s.repo.SaveProgramConfig(ctx, config); err != nil {
		return nil, err
	}
	return config, nil
}

// SetEmergencyPause toggles the program-wide pause flag.
func (s Service) SetEmergencyPause(ctx context.Context, paused bool) (*domain.ProgramConfig, error) {
	config, err := s.repo.GetProgramConfig(ctx)
	if err != nil {
		return nil, err
	}
	config.EmergencyPause = paused
	if err := s.repo.SaveProgramConfig(ctx, config); err != nil {
		return nil, err
	}
	return config, nil
}

// RegisterUserPayment creates the funding link for a payer.
func (s Service) RegisterUserPayment(ctx context.Context, owner, fundingAccount string) (*domain.UserPayment, error) {
	if owner == "" || fundingAccount == "" {
		return nil, errors.New("owner and funding account are required")
	}

	config, err := s.repo.GetProgramConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config.EmergencyPause {
		return nil, billing.ErrProgramPaused
	}

	now := time.Now().UTC()
	user := &domain.UserPayment{
		Owner:          owner,
		FundingAccount: fundingAccount,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateUserPayment(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RegisterGateway creates a gateway operator record.
func (s Service) RegisterGateway(ctx context.Context, authority, feeRecipient string, feeBps uint16) (*domain.PaymentGateway, error) {
	if authority == "" || feeRecipient == "" {
		return nil, errors.New("authority and fee recipient are required")
	}
	if feeBps > domain.MaxBps {
		return nil, billing.ErrFeeRateTooHigh
	}

	gateway := &domain.PaymentGateway{
		Authority:     authority,
		FeeRecipient:  feeRecipient,
		GatewayFeeBps: feeBps,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateGateway(ctx, gateway); err != nil {
		return nil, err
	}
	return gateway, nil
}

// CreatePolicyRequest carries the parameters of a new payment policy.
type CreatePolicyRequest struct {
	UserPaymentKey string
	PolicyID       uint32
	Recipient      string
	Gateway        string
	PolicyType     domain.PolicyType
	Frequency      domain.PaymentFrequency
	Memo           string
	StartTime      *int64
}

// CreatePolicy validates the request against the program config, the owner's
// funding link, and the gateway, then creates an Active policy.
func (s Service) CreatePolicy(ctx context.Context, req CreatePolicyRequest) (*domain.PaymentPolicy, error) {
	config, err := s.repo.GetProgramConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config.EmergencyPause {
		return nil, billing.ErrProgramPaused
	}

	user, err := s.repo.GetUserPayment(ctx, req.UserPaymentKey)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, billing.ErrUserInactive
	}
	if user.ActivePoliciesCount >= config.MaxPoliciesPerUser {
		return nil, billing.ErrMaxPoliciesReached
	}

	gateway, err := s.repo.GetGateway(ctx, req.Gateway)
	if err != nil {
		return nil, err
	}
	if !gateway.IsActive {
		return nil, billing.ErrGatewayInactive
	}

	policy, err := billing.NewPolicy(req.UserPaymentKey, req.PolicyID, req.Recipient, gateway.Authority,
		req.PolicyType, req.Frequency, domain.NewMemo(req.Memo), req.StartTime, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}

	s.publishPolicyEvent(ctx, "payment.policy_created", policy)
	return policy, nil
}

// GetPolicy retrieves one policy by key.
func (s Service) GetPolicy(ctx context.Context, userPaymentKey string, policyID uint32) (*domain.PaymentPolicy, error) {
	return s.repo.GetPolicy(ctx, userPaymentKey, policyID)
}

// ListDuePolicies returns active policies due at or before now.
func (s Service) ListDuePolicies(ctx context.Context, now time.Time, limit int) ([]domain.PaymentPolicy, error) {
	return s.repo.ListDuePolicies(ctx, now, limit)
}

// SettlePolicy executes one due payment for the policy. The policy row is
// claimed first, so the two triggers this service hosts (cron sweep and
// gateway HTTP call) cannot both move money for the same policy; then the
// remaining aggregates are loaded, the engine runs against the ledger, and
// all mutations land in one store transaction that also ends the claim. A
// failed attempt releases the claim.
func (s Service) SettlePolicy(ctx context.Context, userPaymentKey string, policyID uint32, now time.Time) (*domain.PaymentRecord, error) {
	policy, err := s.repo.ClaimSettlementAttempt(ctx, userPaymentKey, policyID, now)
	if err != nil {
		return nil, err
	}

	record, err := s.settleClaimed(ctx, policy, now)
	if err != nil {
		if relErr := s.repo.ReleaseSettlementClaim(ctx, userPaymentKey, policyID); relErr != nil {
			log.Printf("WARN: failed to release settlement claim for %s/%d: %v", userPaymentKey, policyID, relErr)
		}
		return nil, err
	}
	return record, nil
}

func (s Service) settleClaimed(ctx context.Context, policy *domain.PaymentPolicy, now time.Time) (*domain.PaymentRecord, error) {
	user, err := s.repo.GetUserPayment(ctx, policy.UserPayment)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, billing.ErrUserInactive
	}
	gateway, err := s.repo.GetGateway(ctx, policy.Gateway)
	if err != nil {
		return nil, err
	}
	config, err := s.repo.GetProgramConfig(ctx)
	if err != nil {
		return nil, err
	}

	previousDue := policy.NextPaymentDue
	record, err := billing.Settle(ctx, billing.Settlement{
		Policy:      policy,
		UserPayment: user,
		Gateway:     gateway,
		Config:      config,
		Authority:   billing.NewTransferAuthority(s.ledger, user.FundingAccount),
	}, now.Unix())
	if err != nil {
		return nil, err
	}

	if err := s.repo.CommitSettlement(ctx, policy, user, gateway, previousDue); err != nil {
		return nil, fmt.Errorf("committing settlement: %w", err)
	}

	s.publishRecord(ctx, record)
	return record, nil
}

// PausePolicy moves a policy to Paused and releases its slot in the owner's
// active-policy count.
func (s Service) PausePolicy(ctx context.Context, userPaymentKey string, policyID uint32) (*domain.PaymentPolicy, error) {
	policy, err := s.repo.GetPolicy(ctx, userPaymentKey, policyID)
	if err != nil {
		return nil, err
	}
	if err := billing.Pause(policy, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePolicyStatus(ctx, policy, -1); err != nil {
		return nil, err
	}
	s.publishPolicyEvent(ctx, "payment.policy_paused", policy)
	return policy, nil
}

// ResumePolicy moves a Paused policy back to Active. The same admission
// checks as creation apply: the program must not be paused and the owner
// must be active with a free policy slot.
func (s Service) ResumePolicy(ctx context.Context, userPaymentKey string, policyID uint32) (*domain.PaymentPolicy, error) {
	config, err := s.repo.GetProgramConfig(ctx)
	if err != nil {
		return nil, err
	}
	if config.EmergencyPause {
		return nil, billing.ErrProgramPaused
	}

	policy, err := s.repo.GetPolicy(ctx, userPaymentKey, policyID)
	if err != nil {
		return nil, err
	}
	if err := billing.Resume(policy, time.Now().UTC()); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserPayment(ctx, policy.UserPayment)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, billing.ErrUserInactive
	}
	if user.ActivePoliciesCount >= config.MaxPoliciesPerUser {
		return nil, billing.ErrMaxPoliciesReached
	}

	if err := s.repo.UpdatePolicyStatus(ctx, policy, 1); err != nil {
		return nil, err
	}
	s.publishPolicyEvent(ctx, "payment.policy_resumed", policy)
	return policy, nil
}

type policyEvent struct {
	UserPayment    string    `json:"user_payment"`
	PolicyID       uint32    `json:"policy_id"`
	Status         string    `json:"status"`
	NextPaymentDue int64     `json:"next_payment_due"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s Service) publishPolicyEvent(ctx context.Context, routingKey string, policy *domain.PaymentPolicy) {
	if s.publisher == nil {
		return
	}
	payload := policyEvent{
		UserPayment:    policy.UserPayment,
		PolicyID:       policy.PolicyID,
		Status:         string(policy.Status),
		NextPaymentDue: policy.NextPaymentDue,
		Timestamp:      time.Now(),
	}
	if err := s.publisher.Publish(ctx, rabbitmq.Exchange, routingKey, payload); err != nil {
		log.Printf("WARN: failed to publish policy event %s: %v", routingKey, err)
	}
}

func (s Service) publishRecord(ctx context.Context, record *domain.PaymentRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, rabbitmq.Exchange, "payment.settled", record); err != nil {
		log.Printf("WARN: failed to publish payment record %d: %v", record.RecordID, err)
	}
}
