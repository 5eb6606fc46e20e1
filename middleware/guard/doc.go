// Package guard fornece adapters HTTP (net/http e gin) para a proteção contra abuso por cliente.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (rate limit, bloqueio automático, allow-list, limpeza) sem net/http
//   - infra: implementações concretas (estado em memória, snapshots em arquivo/Redis/Badger, stats)
//   - guard (este pacote): pipeline HTTP + extração de IP + tradução para status/headers + API admin
//
// Fluxo por requisição:
//
//  1. Identifica o cliente (X-Forwarded-For, X-Real-IP, Forwarded, RemoteAddr)
//  2. Caminhos liberados pulam todas as checagens
//  3. Caminhos restritos exigem allow-list (403)
//  4. Cliente bloqueado recebe 444 vazio (modo silencioso) ou 429 com Retry-After
//  5. Cliente fora da allow-list passa pelo rate limit (429)
//  6. Headers de segurança, chamada do próximo handler e registro do status final
//
// A configuração do binário gateway (cmd/gateway) vem de YAML e variáveis GUARD_*.
package guard
