package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/ids"
)

func TestEventoRepository_RegistrarEListar_DeveDevolverEmOrdemCronologica(t *testing.T) {
	db := setupDB(t)
	repo := NewEventoRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	eleicaoID := domain.EleicaoID("eleicao-1")

	segundos := domain.EventoAuditoria{
		ID:        ids.NewComprovante(),
		EleicaoID: eleicaoID,
		Tipo:      "escrutinio_aberto",
		CriadoEm:  base.Add(time.Minute),
	}
	primeiro := domain.EventoAuditoria{
		ID:        ids.NewComprovante(),
		EleicaoID: eleicaoID,
		Tipo:      "eleicao_criada",
		CriadoEm:  base,
	}

	// Inserimos fora de ordem; a listagem deve ordenar pelo carimbo.
	require.NoError(t, repo.Registrar(ctx, segundos))
	require.NoError(t, repo.Registrar(ctx, primeiro))
	require.NoError(t, repo.Registrar(ctx, domain.EventoAuditoria{
		ID:        ids.NewComprovante(),
		EleicaoID: "outra-eleicao",
		Tipo:      "eleicao_criada",
		CriadoEm:  base,
	}))

	eventos, err := repo.ListarPorEleicao(ctx, eleicaoID)
	require.NoError(t, err)
	require.Len(t, eventos, 2)
	assert.Equal(t, "eleicao_criada", eventos[0].Tipo)
	assert.Equal(t, "escrutinio_aberto", eventos[1].Tipo)
}

func TestEventoRepository_ListarPorEleicao_QuandoVazio_DeveRetornarListaVazia(t *testing.T) {
	db := setupDB(t)
	repo := NewEventoRepository(db)

	eventos, err := repo.ListarPorEleicao(context.Background(), "sem-eventos")
	require.NoError(t, err)
	assert.Empty(t, eventos)
}
