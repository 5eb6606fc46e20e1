package domain

import "time"

// ClientStateStore é a fonte de verdade em memória: janelas de requisições,
// janelas de erro, tabela de bloqueios e allow-list.
//
// Toda sequência ler-modificar-escrever de um método é atômica em relação às
// demais chamadas. Nenhum método faz I/O externo.
type ClientStateStore interface {
	// Admit poda a janela de requisições e admite (registrando now) se couber no limite.
	Admit(key Key, now time.Time, window time.Duration, limit int) RateDecision
	// RecordError registra um erro na janela indicada e retorna a contagem após a poda.
	RecordError(key Key, kind ErrorKind, now time.Time, window time.Duration) int

	Block(key Key, rec BlockRecord, mode BlockMode) BlockResult
	// Status consulta o bloqueio; um registro expirado é removido (evicted=true).
	Status(key Key, now time.Time) (rec BlockRecord, blocked bool, evicted bool)
	Unblock(key Key) bool
	// Blocked retorna uma cópia dos bloqueios ativos em now.
	Blocked(now time.Time) map[Key]BlockRecord

	IsAllowed(id string) bool
	AddToWhitelist(entry string) bool
	RemoveFromWhitelist(entry string) bool
	AddTrustedNetwork(network string) bool
	RemoveTrustedNetwork(network string) bool
	Whitelist() []string
	TrustedNetworks() []string

	// Sweep remove bloqueios expirados e entradas de janela mais antigas que now-retention.
	Sweep(now time.Time, retention time.Duration) SweepResult

	Export(now time.Time) Snapshot
	Import(s Snapshot)

	CountRequest()
	CountRejected()
	Counters() Counters
	KnownClients() int
}

type SweepResult struct {
	ExpiredBlocks  int
	DroppedClients int
}
