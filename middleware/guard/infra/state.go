package infra

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"abuse-gateway/middleware/guard/domain"
)

// MemoryState implementa domain.ClientStateStore em memória.
//
// Um único mutex cobre janelas, bloqueios e allow-list; os contadores são
// atômicos e ficam fora dele.
type MemoryState struct {
	mu        sync.Mutex
	requests  map[domain.Key][]time.Time
	errors    map[domain.Key]*errorWindows
	blocked   map[domain.Key]domain.BlockRecord
	whitelist map[string]struct{}
	trusted   map[string]struct{}

	totalRequests   atomic.Int64
	blockedRequests atomic.Int64
	clientsBlocked  atomic.Int64
	blocksTriggered atomic.Int64
	rateLimited     atomic.Int64
}

type errorWindows struct {
	notFound []time.Time
	all      []time.Time
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		requests:  make(map[domain.Key][]time.Time),
		errors:    make(map[domain.Key]*errorWindows),
		blocked:   make(map[domain.Key]domain.BlockRecord),
		whitelist: make(map[string]struct{}),
		trusted:   make(map[string]struct{}),
	}
}

// prune descarta o prefixo de ts com entradas anteriores a cutoff.
// ts é não-decrescente, então basta achar o primeiro índice que fica.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(cutoff) })
	if i == 0 {
		return ts
	}
	if i == len(ts) {
		return ts[:0]
	}
	return append(ts[:0], ts[i:]...)
}

// appendMonotonic garante a ordem não-decrescente mesmo com relógios fora de ordem.
func appendMonotonic(ts []time.Time, now time.Time) []time.Time {
	if n := len(ts); n > 0 && now.Before(ts[n-1]) {
		now = ts[n-1]
	}
	return append(ts, now)
}

func (s *MemoryState) Admit(key domain.Key, now time.Time, window time.Duration, limit int) domain.RateDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := prune(s.requests[key], now.Add(-window))
	count := len(ts)

	if count >= limit {
		s.requests[key] = ts
		s.rateLimited.Add(1)
		retry := window
		if count > 0 {
			retry = window - now.Sub(ts[0])
		}
		if retry < 0 {
			retry = 0
		}
		return domain.RateDecision{
			Allowed:    false,
			Count:      count,
			Limit:      limit,
			Window:     window,
			RetryAfter: retry,
		}
	}

	s.requests[key] = appendMonotonic(ts, now)
	return domain.RateDecision{
		Allowed:   true,
		Count:     count + 1,
		Limit:     limit,
		Remaining: limit - count - 1,
		Window:    window,
	}
}

func (s *MemoryState) RecordError(key domain.Key, kind domain.ErrorKind, now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ew, ok := s.errors[key]
	if !ok {
		ew = &errorWindows{}
		s.errors[key] = ew
	}

	cutoff := now.Add(-window)
	if kind == domain.NotFoundError {
		ew.notFound = prune(appendMonotonic(ew.notFound, now), cutoff)
		return len(ew.notFound)
	}
	ew.all = prune(appendMonotonic(ew.all, now), cutoff)
	return len(ew.all)
}

func (s *MemoryState) Block(key domain.Key, rec domain.BlockRecord, mode domain.BlockMode) domain.BlockResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if domain.MatchAllowList(string(key), s.whitelist, s.trusted) {
		return domain.BlockSkippedAllowed
	}

	existing, exists := s.blocked[key]
	if exists && mode == domain.BlockIfInactive && existing.Active(rec.BlockedAt) {
		return domain.BlockSkippedActive
	}

	s.blocked[key] = rec
	s.blocksTriggered.Add(1)
	if !exists || !existing.Active(rec.BlockedAt) {
		s.clientsBlocked.Add(1)
	}
	return domain.BlockInserted
}

func (s *MemoryState) Status(key domain.Key, now time.Time) (domain.BlockRecord, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.blocked[key]
	if !ok {
		return domain.BlockRecord{}, false, false
	}
	if !rec.Active(now) {
		delete(s.blocked, key)
		return rec, false, true
	}
	return rec, true, false
}

func (s *MemoryState) Unblock(key domain.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocked[key]; !ok {
		return false
	}
	delete(s.blocked, key)
	return true
}

func (s *MemoryState) Blocked(now time.Time) map[domain.Key]domain.BlockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.Key]domain.BlockRecord, len(s.blocked))
	for k, rec := range s.blocked {
		if rec.Active(now) {
			out[k] = rec
		}
	}
	return out
}

func (s *MemoryState) IsAllowed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.MatchAllowList(id, s.whitelist, s.trusted)
}

func (s *MemoryState) AddToWhitelist(entry string) bool {
	return s.addTo(s.whitelist, entry)
}

func (s *MemoryState) RemoveFromWhitelist(entry string) bool {
	return s.removeFrom(s.whitelist, entry)
}

func (s *MemoryState) AddTrustedNetwork(network string) bool {
	return s.addTo(s.trusted, network)
}

func (s *MemoryState) RemoveTrustedNetwork(network string) bool {
	return s.removeFrom(s.trusted, network)
}

func (s *MemoryState) addTo(set map[string]struct{}, v string) bool {
	if v == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := set[v]; ok {
		return false
	}
	set[v] = struct{}{}
	return true
}

func (s *MemoryState) removeFrom(set map[string]struct{}, v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := set[v]; !ok {
		return false
	}
	delete(set, v)
	return true
}

func (s *MemoryState) Whitelist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.whitelist)
}

func (s *MemoryState) TrustedNetworks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.trusted)
}

func (s *MemoryState) Sweep(now time.Time, retention time.Duration) domain.SweepResult {
	cutoff := now.Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	var res domain.SweepResult
	for k, rec := range s.blocked {
		if !rec.Active(now) {
			delete(s.blocked, k)
			res.ExpiredBlocks++
		}
	}

	for k, ts := range s.requests {
		ts = prune(ts, cutoff)
		if len(ts) == 0 {
			delete(s.requests, k)
			res.DroppedClients++
			continue
		}
		s.requests[k] = ts
	}

	for k, ew := range s.errors {
		ew.notFound = prune(ew.notFound, cutoff)
		ew.all = prune(ew.all, cutoff)
		if len(ew.notFound) == 0 && len(ew.all) == 0 {
			delete(s.errors, k)
		}
	}
	return res
}

func (s *MemoryState) Export(now time.Time) domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocked := make(map[domain.Key]domain.BlockRecord, len(s.blocked))
	for k, rec := range s.blocked {
		blocked[k] = rec
	}
	return domain.Snapshot{
		BlockedIPs:      blocked,
		Whitelist:       sortedKeys(s.whitelist),
		TrustedNetworks: sortedKeys(s.trusted),
		SavedAt:         now,
	}
}

// Import substitui tabela de bloqueios e allow-list pelo conteúdo do snapshot.
// Janelas e contadores não fazem parte do snapshot e ficam intactos.
func (s *MemoryState) Import(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocked = make(map[domain.Key]domain.BlockRecord, len(snap.BlockedIPs))
	for k, rec := range snap.BlockedIPs {
		s.blocked[k] = rec
	}
	s.whitelist = make(map[string]struct{}, len(snap.Whitelist))
	for _, v := range snap.Whitelist {
		if v != "" {
			s.whitelist[v] = struct{}{}
		}
	}
	s.trusted = make(map[string]struct{}, len(snap.TrustedNetworks))
	for _, v := range snap.TrustedNetworks {
		if v != "" {
			s.trusted[v] = struct{}{}
		}
	}
}

func (s *MemoryState) CountRequest()  { s.totalRequests.Add(1) }
func (s *MemoryState) CountRejected() { s.blockedRequests.Add(1) }

func (s *MemoryState) Counters() domain.Counters {
	return domain.Counters{
		TotalRequests:   s.totalRequests.Load(),
		BlockedRequests: s.blockedRequests.Load(),
		ClientsBlocked:  s.clientsBlocked.Load(),
		BlocksTriggered: s.blocksTriggered.Load(),
		RateLimited:     s.rateLimited.Load(),
	}
}

// KnownClients conta clientes com alguma janela de requisições viva.
func (s *MemoryState) KnownClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
