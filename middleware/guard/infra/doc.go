// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryState: estado por cliente em memória, protegido por um único mutex
//   - FileSnapshotStore / RedisSnapshotStore / BadgerSnapshotStore: backends do snapshot
//   - Persister: restauração na partida e gravação assíncrona com debounce (golang.org/x/time/rate)
//   - MemoryStatsStore / RedisStatsStore: contadores de decisão do pipeline
package infra
