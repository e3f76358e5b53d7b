// Pacote redis implementa fila de auditoria, contador de comparecimento e
// notificação de snapshots sobre uma mesma instância Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// Fila usa listas Redis para transportar eventos de auditoria até o worker.
type Fila struct {
	client *redis.Client
	key    string
}

func NewFila(client *redis.Client, key string) *Fila {
	return &Fila{
		client: client,
		key:    key,
	}
}

func (f *Fila) PublicarEvento(ctx context.Context, ev domain.EventoAuditoria) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis fila: falha serializando evento: %w", err)
	}
	if err := f.client.LPush(ctx, f.key, payload).Err(); err != nil {
		return fmt.Errorf("redis fila: falha ao enfileirar evento: %w", err)
	}
	return nil
}

func (f *Fila) ConsumirEventos(ctx context.Context, handler func(context.Context, domain.EventoAuditoria) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// BRPOP mantém o consumo bloqueado mas com timeout curto para respeitar o contexto.
		res, err := f.client.BRPop(ctx, 5*time.Second, f.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("redis fila: falha ao consumir evento: %w", err)
		}

		if len(res) != 2 {
			continue
		}

		var ev domain.EventoAuditoria
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			return fmt.Errorf("redis fila: payload invalido: %w", err)
		}

		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
}

var _ domain.Fila = (*Fila)(nil)
