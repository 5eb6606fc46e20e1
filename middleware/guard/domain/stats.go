package domain

import (
	"context"
	"strings"
	"time"
)

// Outcome é o desfecho do pipeline para uma requisição.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeAdmitted    Outcome = "admitted"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeDenied      Outcome = "denied"
)

// StatsEvent representa um evento de decisão do pipeline.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de chaves em uma base como Redis).
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	Status  int

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// OtherRoute agrupa eventos cujo caminho não vira rótulo próprio.
const OtherRoute = "other"

// RouteLabel devolve o rótulo de rota usado nas estatísticas. Só requisições
// encaminhadas que não terminaram em 404 guardam o caminho: nos demais casos o
// caminho é escolhido pelo cliente e cada varredura criaria chaves novas.
func RouteLabel(ev StatsEvent) string {
	if ev.Path == "" {
		return ""
	}
	switch ev.Outcome {
	case OutcomeAdmitted, OutcomeSkipped:
		if ev.Status != 404 {
			return strings.TrimSpace(ev.Method + " " + ev.Path)
		}
	}
	return OtherRoute
}

// StatsSummary é a leitura agregada dos contadores de estatística.
type StatsSummary struct {
	Outcomes map[Outcome]int64
	// Statuses conta apenas respostas >= 400.
	Statuses map[int]int64
	Routes   map[string]map[Outcome]int64
}

// StatsReader é implementado pelos stores que sabem devolver um resumo.
type StatsReader interface {
	Summary(ctx context.Context) (StatsSummary, error)
}
