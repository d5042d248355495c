package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tributary-so/tributary/internal/billing"
	"github.com/tributary-so/tributary/internal/config"
	"github.com/tributary-so/tributary/internal/domain"
)

type billerStub struct {
	due        []domain.PaymentPolicy
	dueErr     error
	settleErr  map[uint32]error
	settled    []uint32
	limitsSeen []int
}

func (s *billerStub) ListDuePolicies(ctx context.Context, now time.Time, limit int) ([]domain.PaymentPolicy, error) {
	s.limitsSeen = append(s.limitsSeen, limit)
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	return s.due, nil
}

func (s *billerStub) SettlePolicy(ctx context.Context, userPaymentKey string, policyID uint32, now time.Time) (*domain.PaymentRecord, error) {
	if err, ok := s.settleErr[policyID]; ok {
		return nil, err
	}
	s.settled = append(s.settled, policyID)
	return &domain.PaymentRecord{UserPayment: userPaymentKey, PolicyID: policyID, Amount: 100, RecordID: 1}, nil
}

func newTestJobs(biller Biller, cfg config.Config) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(biller, logger, cfg)
}

func duePolicy(id uint32) domain.PaymentPolicy {
	return domain.PaymentPolicy{UserPayment: "owner:funding", PolicyID: id, Status: domain.StatusActive}
}

func TestProcessDuePayments_SettlesEveryDuePolicy(t *testing.T) {
	biller := &billerStub{due: []domain.PaymentPolicy{duePolicy(1), duePolicy(2), duePolicy(3)}}
	jobs := newTestJobs(biller, config.Config{DuePaymentBatchSize: 50})

	jobs.ProcessDuePayments()

	if len(biller.settled) != 3 {
		t.Fatalf("settled %d policies, want 3", len(biller.settled))
	}
	if len(biller.limitsSeen) != 1 || biller.limitsSeen[0] != 50 {
		t.Fatalf("batch size passed = %v, want [50]", biller.limitsSeen)
	}
}

func TestProcessDuePayments_ContinuesPastFailures(t *testing.T) {
	biller := &billerStub{
		due:       []domain.PaymentPolicy{duePolicy(1), duePolicy(2), duePolicy(3)},
		settleErr: map[uint32]error{2: billing.ErrInsufficientBalance},
	}
	jobs := newTestJobs(biller, config.Config{})

	jobs.ProcessDuePayments()

	if len(biller.settled) != 2 {
		t.Fatalf("settled %d policies, want 2 (one skipped)", len(biller.settled))
	}
	for _, id := range biller.settled {
		if id == 2 {
			t.Fatal("failing policy must not be reported settled")
		}
	}
}

func TestProcessDuePayments_StopsOnListError(t *testing.T) {
	biller := &billerStub{dueErr: errors.New("db unavailable")}
	jobs := newTestJobs(biller, config.Config{})

	jobs.ProcessDuePayments()

	if len(biller.settled) != 0 {
		t.Fatal("no settlements expected when listing fails")
	}
}

func TestProcessDuePayments_DefaultsBatchSize(t *testing.T) {
	biller := &billerStub{}
	jobs := newTestJobs(biller, config.Config{})

	jobs.ProcessDuePayments()

	if len(biller.limitsSeen) != 1 || biller.limitsSeen[0] != 100 {
		t.Fatalf("batch size passed = %v, want default [100]", biller.limitsSeen)
	}
}
