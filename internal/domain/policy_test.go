package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMemo(t *testing.T) {
	m := NewMemo("gym membership")
	if m.String() != "gym membership" {
		t.Fatalf("memo round trip = %q", m.String())
	}

	long := strings.Repeat("x", MemoSize+10)
	m = NewMemo(long)
	if got := m.String(); len(got) != MemoSize {
		t.Fatalf("memo length = %d, want truncation to %d", len(got), MemoSize)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	var decoded Memo
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if decoded != m {
		t.Fatal("memo changed across JSON round trip")
	}
}

func TestPolicyTypeAmount(t *testing.T) {
	p := NewSubscriptionPolicy(2_500, 0, true, nil)
	if p.Amount() != 2_500 {
		t.Fatalf("Amount() = %d", p.Amount())
	}

	unknown := PolicyType{Kind: "one_time"}
	if unknown.Amount() != 0 {
		t.Fatal("unknown policy kind must report zero amount")
	}
}

func TestUserPaymentKey(t *testing.T) {
	u := UserPayment{Owner: "alice", FundingAccount: "acct-1"}
	if u.Key() != "alice:acct-1" {
		t.Fatalf("Key() = %q", u.Key())
	}
}
