// Package domain define contratos e tipos de domínio da proteção por cliente:
// janelas deslizantes, registros de bloqueio, allow-list e snapshot persistido.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
