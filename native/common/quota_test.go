package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10, EpochSeconds: 60}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaCounterOverflow(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: math.MaxUint32, EpochSeconds: 60}
	prev := QuotaNow{EpochID: 3, ReqCount: math.MaxUint32}

	if _, err := CheckQuota(q, 3, prev, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected ErrQuotaCounterOverflow, got %v", err)
	}
}

func TestCheckQuotaDisabled(t *testing.T) {
	q := Quota{}
	if q.Enabled() {
		t.Fatal("zero quota should be disabled")
	}
	next, err := CheckQuota(q, 7, QuotaNow{EpochID: 7, ReqCount: 500}, 100)
	if err != nil {
		t.Fatalf("disabled quota should never deny: %v", err)
	}
	if next.ReqCount != 600 {
		t.Fatalf("unexpected count %d", next.ReqCount)
	}
}

func TestQuotaEpochMapping(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 60}
	if q.Epoch(0) != 0 {
		t.Fatalf("epoch(0) = %d", q.Epoch(0))
	}
	if q.Epoch(59) != 0 || q.Epoch(60) != 1 || q.Epoch(121) != 2 {
		t.Fatalf("unexpected epoch mapping: %d %d %d", q.Epoch(59), q.Epoch(60), q.Epoch(121))
	}
}

func TestGuard(t *testing.T) {
	if err := Guard(nil, ModuleLending); err != nil {
		t.Fatalf("nil view should pass: %v", err)
	}
	paused := pauseMap{ModuleLending: true}
	if err := Guard(paused, ModuleLending); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(paused, ModuleDelegation); err != nil {
		t.Fatalf("unpaused module should pass: %v", err)
	}
}

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }
