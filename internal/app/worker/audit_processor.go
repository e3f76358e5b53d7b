// Pacote worker contém o processamento assíncrono da trilha de auditoria
// vinda da fila Redis.
package worker

import (
	"context"
	"fmt"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/metrics"
)

// AuditProcessor drena a fila e grava os eventos no repositório durável.
type AuditProcessor struct {
	eventos domain.EventoRepository
	clock   domain.Clock
}

func NewAuditProcessor(eventos domain.EventoRepository, clock domain.Clock) *AuditProcessor {
	return &AuditProcessor{eventos: eventos, clock: clock}
}

func (p *AuditProcessor) Process(ctx context.Context, ev domain.EventoAuditoria) error {
	// Eventos antigos podem chegar sem carimbo; o worker registra a chegada.
	if ev.CriadoEm.IsZero() {
		ev.CriadoEm = p.clock.Agora()
	}

	if err := p.eventos.Registrar(ctx, ev); err != nil {
		return fmt.Errorf("worker: registrar evento %s: %w", ev.ID, err)
	}

	metrics.IncEventoAuditoria()
	return nil
}

// Run consome a fila até o contexto encerrar.
func (p *AuditProcessor) Run(ctx context.Context, fila domain.Fila) error {
	return fila.ConsumirEventos(ctx, p.Process)
}
