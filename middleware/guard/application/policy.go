package application

import "time"

// Policy reúne limites e durações de bloqueio.
type Policy struct {
	Window time.Duration
	Limit  int

	NotFoundThreshold     int
	NotFoundBlockDuration time.Duration

	ErrorThreshold     int
	ErrorBlockDuration time.Duration

	// CountNotFoundAsErrors faz um 404 abaixo do limiar de 404 também contar
	// na janela geral de erros. Desligado por padrão: as janelas são disjuntas.
	CountNotFoundAsErrors bool
}

func DefaultPolicy() Policy {
	return Policy{
		Window:                60 * time.Second,
		Limit:                 120,
		NotFoundThreshold:     5,
		NotFoundBlockDuration: time.Hour,
		ErrorThreshold:        10,
		ErrorBlockDuration:    5 * time.Minute,
	}
}

// withDefaults preenche campos zerados com os valores padrão.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.Limit <= 0 {
		p.Limit = d.Limit
	}
	if p.NotFoundThreshold <= 0 {
		p.NotFoundThreshold = d.NotFoundThreshold
	}
	if p.NotFoundBlockDuration <= 0 {
		p.NotFoundBlockDuration = d.NotFoundBlockDuration
	}
	if p.ErrorThreshold <= 0 {
		p.ErrorThreshold = d.ErrorThreshold
	}
	if p.ErrorBlockDuration <= 0 {
		p.ErrorBlockDuration = d.ErrorBlockDuration
	}
	return p
}
