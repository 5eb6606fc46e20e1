package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"abuse-gateway/middleware/guard/application"
	"abuse-gateway/middleware/guard/domain"
	"abuse-gateway/middleware/guard/infra"
)

const defaultSilentStatus = 444 // estilo nginx: "No Response"

type Options struct {
	Service application.Service
	Janitor *application.Janitor
	Stats   domain.StatsStore
	Logger  *slog.Logger

	KeyFn             KeyFunc
	KeyHeader         string
	TrustProxyHeaders bool

	// SkipPrefixes pulam todas as checagens, para qualquer cliente.
	SkipPrefixes []string
	// LoopbackSkipPrefixes pulam as checagens apenas para clientes locais.
	LoopbackSkipPrefixes []string
	// AllowListSkipPaths (caminho exato) pulam as checagens para clientes na allow-list.
	AllowListSkipPaths []string

	// RestrictedPrefixes exigem allow-list; PublicPaths (caminho exato) abrem exceções.
	RestrictedPrefixes []string
	PublicPaths        []string

	SilentBlocking bool
	SilentStatus   int

	FrameAncestors       []string
	SlowRequestThreshold time.Duration

	Now func() time.Time
}

// Guard executa o pipeline de proteção. Um mesmo Guard serve o adapter
// net/http, o adapter gin e a API admin.
type Guard struct {
	opts  Options
	svc   application.Service
	log   *slog.Logger
	keyFn KeyFunc
	now   func() time.Time
}

func New(opts Options) *Guard {
	if opts.SilentStatus == 0 {
		opts.SilentStatus = defaultSilentStatus
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustProxyHeaders)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Service.State == nil {
		opts.Service.State = infra.NewMemoryState()
	}
	if opts.Service.Logger == nil {
		opts.Service.Logger = opts.Logger
	}

	return &Guard{
		opts:  opts,
		svc:   opts.Service,
		log:   opts.Logger,
		keyFn: opts.KeyFn,
		now:   opts.Now,
	}
}

// Service expõe o caso de uso configurado (útil para seed e API admin).
func (g *Guard) Service() application.Service { return g.svc }

// Middleware é o atalho net/http: New(opts).Handler.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	return New(opts).Handler
}

func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, func(w http.ResponseWriter) int {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			return rec.status
		})
	})
}

// serve roda os gates e, se a requisição passar, chama forward.
// Retorna false quando a requisição foi rejeitada (resposta já escrita).
func (g *Guard) serve(w http.ResponseWriter, r *http.Request, forward func(http.ResponseWriter) int) bool {
	start := g.now()
	key := domain.Key(g.keyFn(r))
	path := r.URL.Path

	g.svc.CountRequest()
	if g.opts.Janitor != nil {
		g.opts.Janitor.MaybeSweep(start)
	}

	allowed := g.svc.IsAllowed(key)

	if g.skip(path, key, allowed) {
		status := forward(w)
		g.stat(r, key, domain.OutcomeSkipped, status, start)
		return true
	}

	if hasAnyPrefix(path, g.opts.RestrictedPrefixes) && !containsString(g.opts.PublicPaths, path) && !allowed {
		g.svc.CountRejected()
		g.log.Warn("restricted_path_denied", "client_ip", string(key), "path", path)
		writeJSON(w, http.StatusForbidden, deniedResponse{
			Error:   "Access denied",
			Message: "Only whitelisted IPs can access this endpoint",
		})
		g.stat(r, key, domain.OutcomeDenied, http.StatusForbidden, start)
		return false
	}

	if st := g.svc.IsBlocked(key, start); st.Blocked {
		g.svc.CountRejected()
		g.log.Warn("blocked_request", "client_ip", string(key), "path", path, "reason", st.Reason)
		status := g.rejectBlocked(w, st)
		g.stat(r, key, domain.OutcomeBlocked, status, start)
		return false
	}

	var dec *domain.RateDecision
	if !allowed {
		d := g.svc.CheckRate(key, start)
		if !d.Allowed {
			g.log.Warn("rate_limit_exceeded", "client_ip", string(key), "path", path, "count", d.Count, "limit", d.Limit)
			// violação de rate limit também alimenta o bloqueio automático
			g.svc.RecordOutcome(key, http.StatusTooManyRequests, start)
			g.rejectRate(w, d)
			g.stat(r, key, domain.OutcomeRateLimited, http.StatusTooManyRequests, start)
			return false
		}
		dec = &d
	}

	// headers precisam ir antes do corpo
	g.decorate(w.Header(), key, dec)

	status := g.forward(w, r, key, forward)

	end := g.now()
	if status >= http.StatusBadRequest {
		if status == http.StatusNotFound {
			g.log.Info("not_found", "client_ip", string(key), "path", path)
		}
		g.svc.RecordOutcome(key, status, end)
	}
	if th := g.opts.SlowRequestThreshold; th > 0 {
		if took := end.Sub(start); took > th {
			g.log.Warn("slow_request", "client_ip", string(key), "path", path, "duration_ms", took.Milliseconds())
		}
	}
	g.stat(r, key, domain.OutcomeAdmitted, status, end)
	return true
}

// forward chama o próximo handler; um panic vira um 500 para o bloqueio
// automático e é relançado sem alteração.
func (g *Guard) forward(w http.ResponseWriter, r *http.Request, key domain.Key, next func(http.ResponseWriter) int) int {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if p != http.ErrAbortHandler {
			g.log.Error("downstream_panic", "client_ip", string(key), "path", r.URL.Path, "panic", p)
			g.svc.RecordOutcome(key, http.StatusInternalServerError, g.now())
		}
		panic(p)
	}()
	return next(w)
}

func (g *Guard) skip(path string, key domain.Key, allowed bool) bool {
	if hasAnyPrefix(path, g.opts.SkipPrefixes) {
		return true
	}
	if domain.IsLoopback(string(key)) && hasAnyPrefix(path, g.opts.LoopbackSkipPrefixes) {
		return true
	}
	return allowed && containsString(g.opts.AllowListSkipPaths, path)
}

func (g *Guard) rejectBlocked(w http.ResponseWriter, st domain.BlockStatus) int {
	if g.opts.SilentBlocking {
		w.WriteHeader(g.opts.SilentStatus)
		return g.opts.SilentStatus
	}
	retry := domain.Seconds(st.Remaining)
	w.Header().Set("Retry-After", formatInt(retry))
	writeJSON(w, http.StatusTooManyRequests, blockedResponse{
		Error:      "IP temporarily blocked",
		Reason:     st.Reason,
		RetryAfter: retry,
	})
	return http.StatusTooManyRequests
}

func (g *Guard) rejectRate(w http.ResponseWriter, d domain.RateDecision) {
	retry := domain.Seconds(d.RetryAfter)
	window := domain.Seconds(d.Window)

	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(d.Limit))
	h.Set("X-RateLimit-Window", formatInt(window))
	h.Set("Retry-After", formatInt(retry))
	writeJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
		Error:         "Rate limit exceeded",
		Limit:         d.Limit,
		WindowSeconds: window,
		RetryAfter:    retry,
	})
}

func (g *Guard) decorate(h http.Header, key domain.Key, dec *domain.RateDecision) {
	if dec != nil {
		h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
		h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	}
	for _, name := range g.securityHeaders(key) {
		h.Set(name, g.securityHeaderValue(name))
	}
}

// securityHeaders lista os headers de segurança que o guard define para key.
func (g *Guard) securityHeaders(key domain.Key) []string {
	names := []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "X-XSS-Protection"}
	if !domain.IsLoopback(string(key)) {
		names = append(names, "Strict-Transport-Security")
	}
	return names
}

func (g *Guard) securityHeaderValue(name string) string {
	switch name {
	case "X-Content-Type-Options":
		return "nosniff"
	case "X-Frame-Options":
		return frameOptions(g.opts.FrameAncestors)
	case "Content-Security-Policy":
		return frameAncestors(g.opts.FrameAncestors)
	case "X-XSS-Protection":
		return "1; mode=block"
	case "Strict-Transport-Security":
		return "max-age=31536000; includeSubDomains"
	}
	return ""
}

// ModifyResponse serve como httputil.ReverseProxy.ModifyResponse. O proxy
// copia os headers do upstream com Add; sem isto, um upstream que também
// define X-Frame-Options ou CSP gera headers duplicados. Os valores do guard
// prevalecem.
func (g *Guard) ModifyResponse(resp *http.Response) error {
	if resp.Request == nil {
		return nil
	}
	key := domain.Key(g.keyFn(resp.Request))
	for _, name := range g.securityHeaders(key) {
		resp.Header.Del(name)
	}
	return nil
}

func (g *Guard) stat(r *http.Request, key domain.Key, o domain.Outcome, status int, at time.Time) {
	if g.opts.Stats == nil {
		return
	}
	err := g.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:     key,
		Outcome: o,
		Status:  status,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      at,
	})
	if err != nil {
		g.log.Debug("stats_record_failed", "err", err)
	}
}

type deniedResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type blockedResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after"`
}

type rateLimitedResponse struct {
	Error         string `json:"error"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
	RetryAfter    int    `json:"retry_after"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder guarda o status final escrito pelo próximo handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote && code >= 200 {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
