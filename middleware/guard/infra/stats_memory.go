package infra

import (
	"context"
	"sync"

	"abuse-gateway/middleware/guard/domain"
)

const (
	defaultMaxRoutes = 512
	defaultMaxKeys   = 10000
)

// Counters conta desfechos do pipeline.
type Counters map[domain.Outcome]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryStatsStore guarda os contadores no processo. Rotas e chaves têm um
// teto de cardinalidade; o excedente é somado em domain.OtherRoute.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byStatus map[int]int64
	byRoute  map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
	maxRoutes int
	maxKeys   int
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func WithMaxRoutes(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if n > 0 {
			s.maxRoutes = n
		}
	}
}

func WithMaxKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:     make(Counters),
		byStatus:  make(map[int]int64),
		byRoute:   make(map[string]Counters),
		byKey:     make(map[string]Counters),
		maxRoutes: defaultMaxRoutes,
		maxKeys:   defaultMaxKeys,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := domain.RouteLabel(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	if ev.Status >= 400 {
		s.byStatus[ev.Status]++
	}
	if route != "" {
		bump(s.byRoute, route, ev.Outcome, s.maxRoutes)
	}
	if s.trackKeys && ev.Key != "" {
		bump(s.byKey, string(ev.Key), ev.Outcome, s.maxKeys)
	}
	return nil
}

// bump soma em m[k]; com o mapa cheio, chaves novas vão para OtherRoute.
func bump(m map[string]Counters, k string, o domain.Outcome, limit int) {
	c, ok := m[k]
	if !ok {
		if len(m) >= limit {
			k = domain.OtherRoute
			c = m[k]
		}
		if c == nil {
			c = make(Counters)
			m[k] = c
		}
	}
	c[o]++
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.byKey)
}

func (s *MemoryStatsStore) Summary(context.Context) (domain.StatsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := domain.StatsSummary{
		Outcomes: s.total.clone(),
		Statuses: make(map[int]int64, len(s.byStatus)),
		Routes:   make(map[string]map[domain.Outcome]int64, len(s.byRoute)),
	}
	for code, n := range s.byStatus {
		sum.Statuses[code] = n
	}
	for route, c := range s.byRoute {
		sum.Routes[route] = c.clone()
	}
	return sum, nil
}

func cloneAll(m map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}
