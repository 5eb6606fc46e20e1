package application

import (
	"context"
	"testing"
	"time"

	"abuse-gateway/middleware/guard/infra"
)

func TestJanitor_MaybeSweepIsGatedByInterval(t *testing.T) {
	state := infra.NewMemoryState()
	saver := &countingSaver{}
	j := NewJanitor(state, saver, DefaultPolicy(), time.Hour, nil)

	svc := Service{State: state}
	svc.Block("k", "x", time.Minute, t0)

	if j.MaybeSweep(t0) {
		t.Fatalf("expected first call to only arm the timer")
	}
	if j.MaybeSweep(t0.Add(30 * time.Minute)) {
		t.Fatalf("expected no sweep before the interval")
	}
	if !j.MaybeSweep(t0.Add(61 * time.Minute)) {
		t.Fatalf("expected sweep after the interval")
	}
	if len(state.Export(t0).BlockedIPs) != 0 {
		t.Fatalf("expected expired block removed")
	}
	if saver.n.Load() != 1 {
		t.Fatalf("expected one save after removing a block, got %d", saver.n.Load())
	}
	if j.MaybeSweep(t0.Add(62 * time.Minute)) {
		t.Fatalf("expected interval to restart after a sweep")
	}
}

func TestJanitor_SweepWithoutExpiredBlocksDoesNotPersist(t *testing.T) {
	state := infra.NewMemoryState()
	saver := &countingSaver{}
	j := NewJanitor(state, saver, DefaultPolicy(), time.Hour, nil)

	state.Admit("k", t0, time.Minute, 10)
	res := j.Sweep(t0.Add(11 * time.Minute))

	if res.DroppedClients != 1 {
		t.Fatalf("expected stale client dropped, got %+v", res)
	}
	if saver.n.Load() != 0 {
		t.Fatalf("expected no save when no block was removed")
	}
}

func TestJanitor_SweepKeepsBlockCreatedAfterNow(t *testing.T) {
	state := infra.NewMemoryState()
	j := NewJanitor(state, nil, DefaultPolicy(), time.Hour, nil)

	svc := Service{State: state}
	svc.Block("k", "x", time.Hour, t0.Add(time.Second))

	j.Sweep(t0)
	if _, ok := state.Blocked(t0.Add(time.Second))["k"]; !ok {
		t.Fatalf("expected newer block to survive an older sweep")
	}
}

func TestJanitor_StartRunsOnTicker(t *testing.T) {
	state := infra.NewMemoryState()
	saver := &countingSaver{}
	j := NewJanitor(state, saver, DefaultPolicy(), 5*time.Millisecond, nil)

	svc := Service{State: state}
	svc.Block("k", "x", time.Minute, t0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx, func() time.Time { return t0.Add(time.Hour) })

	deadline := time.After(2 * time.Second)
	for saver.n.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for ticker sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
