package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// EventoRepository persiste a trilha de auditoria (somente inserção).
type EventoRepository struct {
	db *gorm.DB
}

func NewEventoRepository(db *gorm.DB) *EventoRepository {
	return &EventoRepository{db: db}
}

func (r *EventoRepository) Registrar(ctx context.Context, ev domain.EventoAuditoria) error {
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("gorm evento: inserir: %w", err)
	}
	return nil
}

func (r *EventoRepository) ListarPorEleicao(ctx context.Context, id domain.EleicaoID) ([]domain.EventoAuditoria, error) {
	var eventos []domain.EventoAuditoria
	if err := r.db.WithContext(ctx).
		Where("eleicao_id = ?", string(id)).
		Order("criado_em ASC").
		Find(&eventos).Error; err != nil {
		return nil, fmt.Errorf("gorm evento: listar por eleicao: %w", err)
	}
	return eventos, nil
}

var _ domain.EventoRepository = (*EventoRepository)(nil)
