package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

func TestNotificador_PublicarEAssinar_QuandoSnapshotConfirmado_DeveEntregarAoAssinante(t *testing.T) {
	client, _ := setupRedis(t)
	notificador := NewNotificador(client, "eleicoes")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snapshots, cancelar, err := notificador.Assinar(ctx, "eleicao-1")
	require.NoError(t, err)
	defer cancelar()

	eleicao := domain.Eleicao{
		ID:     "eleicao-1",
		Titulo: "Diretoria 2026",
		Status: domain.EleicaoEmAndamento,
	}
	require.NoError(t, notificador.PublicarSnapshot(ctx, eleicao))

	select {
	case recebida := <-snapshots:
		assert.Equal(t, eleicao.ID, recebida.ID)
		assert.Equal(t, eleicao.Status, recebida.Status)
	case <-ctx.Done():
		t.Fatal("snapshot nao chegou dentro do prazo")
	}
}

func TestNotificador_Assinar_QuandoOutraEleicao_NaoDeveReceber(t *testing.T) {
	client, _ := setupRedis(t)
	notificador := NewNotificador(client, "eleicoes")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snapshots, cancelar, err := notificador.Assinar(ctx, "eleicao-1")
	require.NoError(t, err)
	defer cancelar()

	require.NoError(t, notificador.PublicarSnapshot(ctx, domain.Eleicao{ID: "eleicao-2"}))

	select {
	case recebida := <-snapshots:
		t.Fatalf("recebeu snapshot de outra eleicao: %s", recebida.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNotificador_Cancelar_DeveFecharOCanal(t *testing.T) {
	client, _ := setupRedis(t)
	notificador := NewNotificador(client, "eleicoes")

	ctx := context.Background()
	snapshots, cancelar, err := notificador.Assinar(ctx, "eleicao-1")
	require.NoError(t, err)

	cancelar()

	select {
	case _, aberto := <-snapshots:
		assert.False(t, aberto, "canal deveria estar fechado apos cancelar")
	case <-time.After(2 * time.Second):
		t.Fatal("canal nao fechou apos cancelar")
	}
}
