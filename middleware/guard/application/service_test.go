package application

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"abuse-gateway/middleware/guard/domain"
	"abuse-gateway/middleware/guard/infra"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type countingSaver struct {
	n atomic.Int64
}

func (c *countingSaver) Request() { c.n.Add(1) }

func newService() (Service, *countingSaver) {
	saver := &countingSaver{}
	return Service{
		State:  infra.NewMemoryState(),
		Policy: DefaultPolicy(),
		Saver:  saver,
	}, saver
}

func TestService_CheckRate_121stRequestRejected(t *testing.T) {
	svc, _ := newService()

	// 121 requisições em 10 segundos
	var last domain.RateDecision
	for i := 0; i < 121; i++ {
		at := t0.Add(time.Duration(i) * 10 * time.Second / 121)
		last = svc.CheckRate("9.9.9.9", at)
		if i < 120 && !last.Allowed {
			t.Fatalf("expected request %d to be admitted", i+1)
		}
	}
	if last.Allowed {
		t.Fatalf("expected request 121 to be rejected")
	}
	if got := domain.Seconds(last.RetryAfter); got < 50 || got > 51 {
		t.Fatalf("expected retry_after ~50, got %d", got)
	}
	if last.Limit != 120 || last.Window != time.Minute {
		t.Fatalf("unexpected decision %+v", last)
	}
}

func TestService_CheckRate_ResumesAfterWindow(t *testing.T) {
	svc, _ := newService()
	svc.Policy.Limit = 2

	svc.CheckRate("k", t0)
	svc.CheckRate("k", t0)
	if svc.CheckRate("k", t0.Add(time.Second)).Allowed {
		t.Fatalf("expected rejection inside the window")
	}
	if !svc.CheckRate("k", t0.Add(61*time.Second)).Allowed {
		t.Fatalf("expected admission after the window")
	}
}

func TestService_FiveNotFoundsBlockForAnHour(t *testing.T) {
	svc, saver := newService()

	for i := 0; i < 5; i++ {
		svc.RecordOutcome("1.2.3.4", http.StatusNotFound, t0.Add(time.Duration(i)*time.Second))
	}

	st := svc.IsBlocked("1.2.3.4", t0.Add(5*time.Second))
	if !st.Blocked {
		t.Fatalf("expected block after five 404s")
	}
	if st.Reason != "Consecutive 404 errors (5)" {
		t.Fatalf("unexpected reason %q", st.Reason)
	}

	blocked := svc.State.Blocked(t0.Add(5 * time.Second))
	if len(blocked) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(blocked))
	}
	rec := blocked["1.2.3.4"]
	if rec.Duration != time.Hour {
		t.Fatalf("expected duration 3600s, got %s", rec.Duration)
	}
	if saver.n.Load() != 1 {
		t.Fatalf("expected one persistence request, got %d", saver.n.Load())
	}

	// sexto 404 com o bloqueio ativo: nada muda
	svc.RecordOutcome("1.2.3.4", http.StatusNotFound, t0.Add(10*time.Second))
	after := svc.State.Blocked(t0.Add(10 * time.Second))["1.2.3.4"]
	if after != rec {
		t.Fatalf("expected record unchanged, got %+v want %+v", after, rec)
	}
	if c := svc.State.Counters(); c.BlocksTriggered != 1 {
		t.Fatalf("expected one block triggered, got %d", c.BlocksTriggered)
	}
}

func TestService_TenErrorsBlockForFiveMinutes(t *testing.T) {
	svc, _ := newService()

	for i := 0; i < 9; i++ {
		svc.RecordOutcome("5.6.7.8", http.StatusInternalServerError, t0.Add(time.Duration(i)*time.Second))
	}
	if svc.IsBlocked("5.6.7.8", t0.Add(9*time.Second)).Blocked {
		t.Fatalf("expected no block with nine errors")
	}

	svc.RecordOutcome("5.6.7.8", http.StatusForbidden, t0.Add(9*time.Second))

	rec, ok := svc.State.Blocked(t0.Add(10 * time.Second))["5.6.7.8"]
	if !ok {
		t.Fatalf("expected block after ten errors")
	}
	if rec.Duration != 5*time.Minute {
		t.Fatalf("expected 300s, got %s", rec.Duration)
	}
	if rec.Reason != "Excessive errors (10 in 60s)" {
		t.Fatalf("unexpected reason %q", rec.Reason)
	}
}

func TestService_NotFoundsDoNotFeedGeneralWindow(t *testing.T) {
	svc, _ := newService()
	svc.Policy.NotFoundThreshold = 100

	for i := 0; i < 20; i++ {
		svc.RecordOutcome("k", http.StatusNotFound, t0)
	}
	if svc.IsBlocked("k", t0).Blocked {
		t.Fatalf("expected 404s to stay out of the general error window")
	}
}

func TestService_CountNotFoundAsErrorsOptIn(t *testing.T) {
	svc, _ := newService()
	svc.Policy.NotFoundThreshold = 100
	svc.Policy.CountNotFoundAsErrors = true

	for i := 0; i < 10; i++ {
		svc.RecordOutcome("k", http.StatusNotFound, t0)
	}
	st := svc.IsBlocked("k", t0)
	if !st.Blocked || st.Reason != "Excessive errors (10 in 60s)" {
		t.Fatalf("expected general error block, got %+v", st)
	}
}

func TestService_AllowListedNeverBlocked(t *testing.T) {
	svc, _ := newService()
	svc.AddToWhitelist("9.9.9.9")

	for i := 0; i < 50; i++ {
		svc.RecordOutcome("9.9.9.9", http.StatusNotFound, t0)
		svc.RecordOutcome("9.9.9.9", http.StatusInternalServerError, t0)
	}
	if svc.IsBlocked("9.9.9.9", t0).Blocked {
		t.Fatalf("expected whitelisted client never blocked")
	}
	if svc.Block("9.9.9.9", "manual", time.Hour, t0) {
		t.Fatalf("expected manual block to be a no-op for whitelisted client")
	}
	for i := 0; i < 10; i++ {
		svc.RecordOutcome("127.0.0.1", http.StatusNotFound, t0)
	}
	if svc.IsBlocked("127.0.0.1", t0).Blocked {
		t.Fatalf("expected loopback never blocked")
	}
}

func TestService_SuccessOutcomesIgnored(t *testing.T) {
	svc, _ := newService()
	for i := 0; i < 100; i++ {
		svc.RecordOutcome("k", http.StatusOK, t0)
	}
	if svc.IsBlocked("k", t0).Blocked {
		t.Fatalf("expected no block for 2xx")
	}
}

func TestService_IsBlockedEvictsExpiredAndPersists(t *testing.T) {
	svc, saver := newService()
	svc.Block("k", "manual", time.Minute, t0)
	before := saver.n.Load()

	st := svc.IsBlocked("k", t0.Add(30*time.Second))
	if !st.Blocked || st.Remaining != 30*time.Second {
		t.Fatalf("expected 30s remaining, got %+v", st)
	}

	if svc.IsBlocked("k", t0.Add(time.Minute)).Blocked {
		t.Fatalf("expected not blocked at blockedUntil")
	}
	if _, ok := svc.State.Export(t0).BlockedIPs["k"]; ok {
		t.Fatalf("expected record removed")
	}
	if saver.n.Load() != before+1 {
		t.Fatalf("expected eviction to request a save")
	}
}

func TestService_UnblockAndListMutationsAreIdempotent(t *testing.T) {
	svc, saver := newService()
	svc.Block("k", "", 0, t0)

	if !svc.Unblock("k") || svc.Unblock("k") {
		t.Fatalf("expected unblock to report an entry exactly once")
	}
	if !svc.AddToWhitelist("1.1.1.1") || svc.AddToWhitelist("1.1.1.1") {
		t.Fatalf("expected whitelist add to change state once")
	}
	if !svc.AddTrustedNetwork("10.0.0.0/8") || svc.AddTrustedNetwork("10.0.0.0/8") {
		t.Fatalf("expected trusted network add to change state once")
	}
	if !svc.RemoveTrustedNetwork("10.0.0.0/8") || svc.RemoveTrustedNetwork("10.0.0.0/8") {
		t.Fatalf("expected trusted network remove to change state once")
	}
	// block + unblock + add + add + remove
	if got := saver.n.Load(); got != 5 {
		t.Fatalf("expected 5 persistence requests, got %d", got)
	}
}

func TestService_ManualBlockDefaults(t *testing.T) {
	svc, _ := newService()
	if !svc.Block("k", "", 0, t0) {
		t.Fatalf("expected manual block")
	}
	rec := svc.State.Blocked(t0)["k"]
	if rec.Reason != "Manual block" || rec.Duration != time.Hour {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestService_ReportAndBlockedClients(t *testing.T) {
	svc, _ := newService()
	svc.CountRequest()
	svc.CountRequest()
	svc.CountRejected()
	svc.CheckRate("a", t0)
	svc.Block("b", "x", time.Hour, t0)
	svc.AddToWhitelist("9.9.9.9")

	r := svc.Report(t0)
	if r.TotalRequests != 2 || r.BlockedRequests != 1 {
		t.Fatalf("unexpected counters %+v", r.Counters)
	}
	if r.CurrentlyBlocked != 1 || r.KnownClients != 1 || r.WhitelistSize != 1 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Policy.Limit != 120 {
		t.Fatalf("expected effective policy in report")
	}

	list := svc.BlockedClients(t0.Add(10 * time.Minute))
	if len(list) != 1 || list[0].Key != "b" || list[0].Remaining != 50*time.Minute {
		t.Fatalf("unexpected blocked list %+v", list)
	}
}
