// Package application contém os casos de uso (regras de aplicação) da proteção
// por cliente: allow-list, rate limit por janela deslizante, bloqueio automático
// por rajadas de erro e a varredura periódica (Janitor).
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.CheckRate(key, now) retorna uma RateDecision; Service.RecordOutcome
// alimenta as janelas de erro com o status final da resposta.
package application
