package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tributary-so/tributary/internal/domain"
)

type transferCall struct {
	from, to string
	amount   uint64
}

type ledgerStub struct {
	balances    map[string]uint64
	transfers   []transferCall
	transferErr error
	balanceErr  error
}

func (l *ledgerStub) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if l.transferErr != nil {
		return l.transferErr
	}
	l.transfers = append(l.transfers, transferCall{from: from, to: to, amount: amount})
	return nil
}

func (l *ledgerStub) BalanceOf(ctx context.Context, account string) (uint64, error) {
	if l.balanceErr != nil {
		return 0, l.balanceErr
	}
	return l.balances[account], nil
}

func testSettlement(ledger *ledgerStub) Settlement {
	due := ts(2023, time.March, 1, 0, 0, 0)
	return Settlement{
		Policy: &domain.PaymentPolicy{
			UserPayment:    "owner:funding",
			PolicyID:       7,
			Recipient:      "recipient",
			Gateway:        "gateway-authority",
			PolicyType:     domain.NewSubscriptionPolicy(1_000_000, 0, true, nil),
			Status:         domain.StatusActive,
			Frequency:      domain.Frequency(domain.FrequencyMonthly),
			Memo:           domain.NewMemo("newsletter"),
			NextPaymentDue: due,
		},
		UserPayment: &domain.UserPayment{
			Owner:               "owner",
			FundingAccount:      "funding",
			ActivePoliciesCount: 1,
			IsActive:            true,
		},
		Gateway: &domain.PaymentGateway{
			Authority:     "gateway-authority",
			FeeRecipient:  "gateway-fees",
			GatewayFeeBps: 50,
			IsActive:      true,
		},
		Config: &domain.ProgramConfig{
			Admin:          "admin",
			FeeRecipient:   "treasury",
			ProtocolFeeBps: 100,
		},
		Authority: NewTransferAuthority(ledger, "funding"),
	}
}

func TestSettle_SuccessfulMonthlySettlement(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 2_000_000}}
	s := testSettlement(ledger)
	now := s.Policy.NextPaymentDue

	record, err := Settle(context.Background(), s, now)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}

	if len(ledger.transfers) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(ledger.transfers))
	}
	want := []transferCall{
		{"funding", "recipient", 985_000},
		{"funding", "gateway-fees", 5_000},
		{"funding", "treasury", 10_000},
	}
	for i, w := range want {
		if ledger.transfers[i] != w {
			t.Fatalf("transfer %d = %+v, want %+v", i, ledger.transfers[i], w)
		}
	}

	if s.Policy.PaymentCount != 1 || s.Policy.TotalPaid != 1_000_000 {
		t.Fatalf("policy counters = count %d / paid %d", s.Policy.PaymentCount, s.Policy.TotalPaid)
	}
	wantDue, err := addMonths(now, 1)
	if err != nil {
		t.Fatalf("addMonths returned error: %v", err)
	}
	if s.Policy.NextPaymentDue != wantDue {
		t.Fatalf("NextPaymentDue = %d, want %d", s.Policy.NextPaymentDue, wantDue)
	}
	if s.Gateway.TotalProcessed != 1_000_000 {
		t.Fatalf("gateway TotalProcessed = %d", s.Gateway.TotalProcessed)
	}
	if record.RecordID != 1 || record.Amount != 1_000_000 || record.Timestamp != now {
		t.Fatalf("unexpected payment record: %+v", record)
	}
	if record.Memo.String() != "newsletter" {
		t.Fatalf("record memo = %q", record.Memo.String())
	}
}

func TestSettle_PreconditionOrderAndNoMutation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settlement)
		wantErr error
	}{
		{"paused policy", func(s *Settlement) { s.Policy.Status = domain.StatusPaused }, ErrPolicyNotActive},
		{"inactive gateway", func(s *Settlement) { s.Gateway.IsActive = false }, ErrGatewayInactive},
		{"program paused", func(s *Settlement) { s.Config.EmergencyPause = true }, ErrProgramPaused},
		{"not due", func(s *Settlement) { s.Policy.NextPaymentDue += secondsPerDay }, ErrPaymentNotDue},
		{"combined fees over 100%", func(s *Settlement) {
			s.Gateway.GatewayFeeBps = 9_500
			s.Config.ProtocolFeeBps = 600
		}, ErrFeeRateTooHigh},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ledger := &ledgerStub{balances: map[string]uint64{"funding": 2_000_000}}
			s := testSettlement(ledger)
			now := s.Policy.NextPaymentDue
			c.mutate(&s)

			record, err := Settle(context.Background(), s, now)
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("Settle error = %v, want %v", err, c.wantErr)
			}
			if record != nil {
				t.Fatal("no record may be emitted on failure")
			}
			if len(ledger.transfers) != 0 {
				t.Fatal("no transfer may be requested on failure")
			}
			if s.Policy.PaymentCount != 0 || s.Policy.TotalPaid != 0 || s.Gateway.TotalProcessed != 0 {
				t.Fatal("aggregates mutated on failed settlement")
			}
		})
	}
}

func TestSettle_InsufficientBalanceLeavesStateUntouched(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 999_999}}
	s := testSettlement(ledger)
	now := s.Policy.NextPaymentDue
	oldDue := s.Policy.NextPaymentDue

	_, err := Settle(context.Background(), s, now)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if s.Policy.PaymentCount != 0 || s.Policy.TotalPaid != 0 || s.Policy.NextPaymentDue != oldDue {
		t.Fatal("aggregates mutated on insufficient balance")
	}
}

func TestSettle_TransferErrorAbortsWithoutMutation(t *testing.T) {
	ledger := &ledgerStub{
		balances:    map[string]uint64{"funding": 2_000_000},
		transferErr: errors.New("rail unavailable"),
	}
	s := testSettlement(ledger)
	now := s.Policy.NextPaymentDue
	oldDue := s.Policy.NextPaymentDue

	_, err := Settle(context.Background(), s, now)
	if err == nil {
		t.Fatal("expected transfer error to propagate")
	}
	if s.Policy.PaymentCount != 0 || s.Policy.NextPaymentDue != oldDue || s.Gateway.TotalProcessed != 0 {
		t.Fatal("aggregates mutated after failed transfer")
	}
}

func TestSettle_IdempotentPerDueCycle(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 5_000_000}}
	s := testSettlement(ledger)
	now := s.Policy.NextPaymentDue

	if _, err := Settle(context.Background(), s, now); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}

	// Same trigger again at the same time: the advanced due date acts as the
	// idempotency guard.
	_, err := Settle(context.Background(), s, now)
	if !errors.Is(err, ErrPaymentNotDue) {
		t.Fatalf("expected ErrPaymentNotDue on retry, got %v", err)
	}
	if s.Policy.PaymentCount != 1 {
		t.Fatalf("PaymentCount = %d after retry, want 1", s.Policy.PaymentCount)
	}
}

func TestSettle_MissedDailyCyclesCatchUp(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 5_000_000}}
	s := testSettlement(ledger)
	s.Policy.Frequency = domain.Frequency(domain.FrequencyDaily)
	due := s.Policy.NextPaymentDue
	now := due + 10*secondsPerDay

	if _, err := Settle(context.Background(), s, now); err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if want := due + 11*secondsPerDay; s.Policy.NextPaymentDue != want {
		t.Fatalf("NextPaymentDue = %d, want %d", s.Policy.NextPaymentDue, want)
	}
}

func TestSettle_SkipsZeroAmountTransfers(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 5_000_000}}
	s := testSettlement(ledger)
	s.Gateway.GatewayFeeBps = 0
	now := s.Policy.NextPaymentDue

	if _, err := Settle(context.Background(), s, now); err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	for _, tr := range ledger.transfers {
		if tr.amount == 0 {
			t.Fatalf("zero-amount transfer requested to %s", tr.to)
		}
	}
	if len(ledger.transfers) != 2 {
		t.Fatalf("expected 2 transfers with zero gateway fee, got %d", len(ledger.transfers))
	}
}

func TestSettle_MaxRenewalsPausesPolicy(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 5_000_000}}
	s := testSettlement(ledger)
	s.Policy.PolicyType = domain.NewSubscriptionPolicy(1_000_000, 0, true, u32(1))
	now := s.Policy.NextPaymentDue

	record, err := Settle(context.Background(), s, now)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if record.RecordID != 1 {
		t.Fatalf("RecordID = %d", record.RecordID)
	}
	if s.Policy.Status != domain.StatusPaused {
		t.Fatalf("policy status after final renewal = %s, want paused", s.Policy.Status)
	}
	if s.UserPayment.ActivePoliciesCount != 0 {
		t.Fatalf("ActivePoliciesCount = %d, want 0", s.UserPayment.ActivePoliciesCount)
	}
}

func TestSettle_FinalCycleNeedsActivePolicySlot(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 5_000_000}}
	s := testSettlement(ledger)
	s.Policy.PolicyType = domain.NewSubscriptionPolicy(1_000_000, 0, false, nil)
	s.UserPayment.ActivePoliciesCount = 0 // breached: active policy with zero count

	_, err := Settle(context.Background(), s, s.Policy.NextPaymentDue)
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow on count underflow, got %v", err)
	}
	if len(ledger.transfers) != 0 {
		t.Fatal("no transfer may be requested when the count cannot be decremented")
	}
	if s.Policy.PaymentCount != 0 || s.Policy.Status != domain.StatusActive {
		t.Fatal("aggregates mutated on aborted settlement")
	}
}

func TestSettle_AutoRenewOffPausesAfterOnePayment(t *testing.T) {
	ledger := &ledgerStub{balances: map[string]uint64{"funding": 5_000_000}}
	s := testSettlement(ledger)
	s.Policy.PolicyType = domain.NewSubscriptionPolicy(1_000_000, 0, false, nil)
	now := s.Policy.NextPaymentDue

	if _, err := Settle(context.Background(), s, now); err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if s.Policy.Status != domain.StatusPaused {
		t.Fatalf("policy status = %s, want paused when auto renew is off", s.Policy.Status)
	}
}

func TestSettle_BalanceReadErrorPropagates(t *testing.T) {
	ledger := &ledgerStub{balanceErr: errors.New("ledger down")}
	s := testSettlement(ledger)

	_, err := Settle(context.Background(), s, s.Policy.NextPaymentDue)
	if err == nil || errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected wrapped ledger error, got %v", err)
	}
}
