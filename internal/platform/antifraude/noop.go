package antifraude

import (
	"context"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// Noop aceita qualquer tentativa; útil em testes e quando o limiter está desligado.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) Validar(_ context.Context, _ domain.TentativaVoto) error { return nil }

var _ domain.Antifraude = Noop{}
