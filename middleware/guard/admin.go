package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"abuse-gateway/middleware/guard/application"
	"abuse-gateway/middleware/guard/domain"

	"github.com/gorilla/mux"
)

// AdminHandler expõe a API de operação (estatísticas, bloqueios e allow-list).
// Deve ficar num listener separado, fora do pipeline de proteção.
type AdminHandler struct {
	svc     application.Service
	janitor *application.Janitor
	stats   domain.StatsStore
	logger  *slog.Logger
	now     func() time.Time
}

const (
	adminPrefix = "/security"
	// maxBlockSeconds limita bloqueios manuais a um ano.
	maxBlockSeconds = 365 * 24 * 60 * 60
)

// NewAdminHandler monta a API admin. stats pode ser nil; quando implementa
// domain.StatsReader, GET /security/stats inclui os contadores do pipeline.
func NewAdminHandler(svc application.Service, janitor *application.Janitor, stats domain.StatsStore, logger *slog.Logger, now func() time.Time) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{svc: svc, janitor: janitor, stats: stats, logger: logger, now: now}
}

// Admin cria o AdminHandler com o serviço, o janitor, as estatísticas e o
// relógio do Guard.
func (g *Guard) Admin() *AdminHandler {
	return NewAdminHandler(g.svc, g.opts.Janitor, g.opts.Stats, g.log, g.now)
}

func (h *AdminHandler) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.logRequests)

	// rotas registradas no router raiz: num Subrouter o mux responde 404 em vez
	// de 405 quando só o método diverge
	router.HandleFunc(adminPrefix+"/stats", h.Stats).Methods(http.MethodGet)

	router.HandleFunc(adminPrefix+"/blocked", h.ListBlocked).Methods(http.MethodGet)
	router.HandleFunc(adminPrefix+"/blocked/{ip}", h.BlockClient).Methods(http.MethodPost)
	router.HandleFunc(adminPrefix+"/blocked/{ip}", h.UnblockClient).Methods(http.MethodDelete)

	router.HandleFunc(adminPrefix+"/whitelist", h.ListWhitelist).Methods(http.MethodGet)
	router.HandleFunc(adminPrefix+"/whitelist/{ip}", h.AddWhitelist).Methods(http.MethodPost)
	router.HandleFunc(adminPrefix+"/whitelist/{ip}", h.RemoveWhitelist).Methods(http.MethodDelete)

	router.HandleFunc(adminPrefix+"/trusted-networks", h.AddTrustedNetwork).Methods(http.MethodPost)
	router.HandleFunc(adminPrefix+"/trusted-networks", h.RemoveTrustedNetwork).Methods(http.MethodDelete)

	router.HandleFunc(adminPrefix+"/cleanup", h.Cleanup).Methods(http.MethodPost)

	return router
}

func (h *AdminHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("admin_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type PolicyResponse struct {
	WindowSeconds         int  `json:"window_seconds"`
	Limit                 int  `json:"limit"`
	NotFoundThreshold     int  `json:"not_found_threshold"`
	NotFoundBlockSeconds  int  `json:"not_found_block_seconds"`
	ErrorThreshold        int  `json:"error_threshold"`
	ErrorBlockSeconds     int  `json:"error_block_seconds"`
	CountNotFoundAsErrors bool `json:"count_not_found_as_errors"`
}

type StatsResponse struct {
	TotalRequests    int64          `json:"total_requests"`
	BlockedRequests  int64          `json:"blocked_requests"`
	ClientsBlocked   int64          `json:"clients_blocked"`
	BlocksTriggered  int64          `json:"blocks_triggered"`
	RateLimited      int64          `json:"rate_limited"`
	CurrentlyBlocked int            `json:"currently_blocked"`
	KnownClients     int            `json:"known_clients"`
	WhitelistSize    int            `json:"whitelist_size"`
	TrustedNetworks  int            `json:"trusted_networks"`
	Policy           PolicyResponse `json:"policy"`
	Pipeline         *PipelineStats `json:"pipeline,omitempty"`
}

// PipelineStats resume o StatsStore: desfechos, status de erro e rotas.
type PipelineStats struct {
	Outcomes map[string]int64            `json:"outcomes"`
	Statuses map[string]int64            `json:"statuses"`
	Routes   map[string]map[string]int64 `json:"routes"`
}

type BlockedEntry struct {
	IP               string    `json:"ip"`
	Reason           string    `json:"reason"`
	BlockedAt        time.Time `json:"blocked_at"`
	BlockedUntil     time.Time `json:"blocked_until"`
	DurationSeconds  int       `json:"duration_seconds"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type BlockedListResponse struct {
	Blocked []BlockedEntry `json:"blocked"`
	Count   int            `json:"count"`
}

type BlockRequest struct {
	Reason          string `json:"reason"`
	DurationSeconds int    `json:"duration_seconds"`
}

type AllowListResponse struct {
	Whitelist       []string `json:"whitelist"`
	TrustedNetworks []string `json:"trusted_networks"`
}

type TrustedNetworkRequest struct {
	Network string `json:"network"`
}

type ChangeResponse struct {
	Changed bool `json:"changed"`
}

type CleanupResponse struct {
	ExpiredBlocks  int `json:"expired_blocks"`
	DroppedClients int `json:"dropped_clients"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	rep := h.svc.Report(h.now())
	p := rep.Policy
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalRequests:    rep.TotalRequests,
		BlockedRequests:  rep.BlockedRequests,
		ClientsBlocked:   rep.ClientsBlocked,
		BlocksTriggered:  rep.BlocksTriggered,
		RateLimited:      rep.RateLimited,
		CurrentlyBlocked: rep.CurrentlyBlocked,
		KnownClients:     rep.KnownClients,
		WhitelistSize:    rep.WhitelistSize,
		TrustedNetworks:  rep.TrustedNetworks,
		Policy: PolicyResponse{
			WindowSeconds:         domain.Seconds(p.Window),
			Limit:                 p.Limit,
			NotFoundThreshold:     p.NotFoundThreshold,
			NotFoundBlockSeconds:  domain.Seconds(p.NotFoundBlockDuration),
			ErrorThreshold:        p.ErrorThreshold,
			ErrorBlockSeconds:     domain.Seconds(p.ErrorBlockDuration),
			CountNotFoundAsErrors: p.CountNotFoundAsErrors,
		},
		Pipeline: h.pipelineStats(r.Context()),
	})
}

func (h *AdminHandler) pipelineStats(ctx context.Context) *PipelineStats {
	reader, ok := h.stats.(domain.StatsReader)
	if !ok {
		return nil
	}
	sum, err := reader.Summary(ctx)
	if err != nil {
		h.logger.Warn("stats_summary_failed", "error", err)
		return nil
	}

	out := &PipelineStats{
		Outcomes: make(map[string]int64, len(sum.Outcomes)),
		Statuses: make(map[string]int64, len(sum.Statuses)),
		Routes:   make(map[string]map[string]int64, len(sum.Routes)),
	}
	for o, n := range sum.Outcomes {
		out.Outcomes[string(o)] = n
	}
	for code, n := range sum.Statuses {
		out.Statuses[strconv.Itoa(code)] = n
	}
	for route, counts := range sum.Routes {
		m := make(map[string]int64, len(counts))
		for o, n := range counts {
			m[string(o)] = n
		}
		out.Routes[route] = m
	}
	return out
}

func (h *AdminHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	clients := h.svc.BlockedClients(h.now())
	sort.Slice(clients, func(i, j int) bool { return clients[i].Key < clients[j].Key })

	out := make([]BlockedEntry, 0, len(clients))
	for _, c := range clients {
		out = append(out, BlockedEntry{
			IP:               string(c.Key),
			Reason:           c.Reason,
			BlockedAt:        c.BlockedAt.UTC(),
			BlockedUntil:     c.BlockedUntil.UTC(),
			DurationSeconds:  domain.Seconds(c.Duration),
			RemainingSeconds: domain.Seconds(c.Remaining),
		})
	}
	writeJSON(w, http.StatusOK, BlockedListResponse{Blocked: out, Count: len(out)})
}

func (h *AdminHandler) BlockClient(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]

	var req BlockRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON request"})
			return
		}
	}
	if req.DurationSeconds < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "duration_seconds must be positive"})
		return
	}
	if req.DurationSeconds > maxBlockSeconds {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "duration_seconds must be at most " + strconv.Itoa(maxBlockSeconds)})
		return
	}

	d := time.Duration(req.DurationSeconds) * time.Second
	if !h.svc.Block(domain.Key(ip), req.Reason, d, h.now()) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "client is whitelisted"})
		return
	}
	writeJSON(w, http.StatusOK, ChangeResponse{Changed: true})
}

func (h *AdminHandler) UnblockClient(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	writeJSON(w, http.StatusOK, ChangeResponse{Changed: h.svc.Unblock(domain.Key(ip))})
}

func (h *AdminHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AllowListResponse{
		Whitelist:       h.svc.State.Whitelist(),
		TrustedNetworks: h.svc.State.TrustedNetworks(),
	})
}

func (h *AdminHandler) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChangeResponse{Changed: h.svc.AddToWhitelist(mux.Vars(r)["ip"])})
}

func (h *AdminHandler) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChangeResponse{Changed: h.svc.RemoveFromWhitelist(mux.Vars(r)["ip"])})
}

func (h *AdminHandler) AddTrustedNetwork(w http.ResponseWriter, r *http.Request) {
	network, ok := h.decodeNetwork(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ChangeResponse{Changed: h.svc.AddTrustedNetwork(network)})
}

func (h *AdminHandler) RemoveTrustedNetwork(w http.ResponseWriter, r *http.Request) {
	network, ok := h.decodeNetwork(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ChangeResponse{Changed: h.svc.RemoveTrustedNetwork(network)})
}

func (h *AdminHandler) decodeNetwork(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TrustedNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON request"})
		return "", false
	}
	if req.Network == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "network cannot be empty"})
		return "", false
	}
	return req.Network, true
}

func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h.janitor == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "cleanup not configured"})
		return
	}
	res := h.janitor.Sweep(h.now())
	writeJSON(w, http.StatusOK, CleanupResponse{
		ExpiredBlocks:  res.ExpiredBlocks,
		DroppedClients: res.DroppedClients,
	})
}
