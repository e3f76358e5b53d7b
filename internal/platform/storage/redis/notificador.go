package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// Notificador publica cada snapshot confirmado num canal pub/sub por eleição,
// permitindo que telas de acompanhamento reajam sem varrer o banco.
type Notificador struct {
	client *redis.Client
	prefix string
}

func NewNotificador(client *redis.Client, prefix string) *Notificador {
	if prefix == "" {
		prefix = "eleicoes"
	}
	return &Notificador{client: client, prefix: prefix}
}

func (n *Notificador) PublicarSnapshot(ctx context.Context, e domain.Eleicao) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis notificador: serializar snapshot: %w", err)
	}
	if err := n.client.Publish(ctx, n.canal(e.ID), payload).Err(); err != nil {
		return fmt.Errorf("redis notificador: publicar snapshot: %w", err)
	}
	return nil
}

// Assinar devolve um canal com os snapshots da eleição e a função de cancelamento.
// Payloads que não decodificam são descartados; o assinante sempre pode reler o
// documento completo pelo repositório.
func (n *Notificador) Assinar(ctx context.Context, id domain.EleicaoID) (<-chan domain.Eleicao, func(), error) {
	sub := n.client.Subscribe(ctx, n.canal(id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis notificador: assinar canal: %w", err)
	}

	out := make(chan domain.Eleicao)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var e domain.Eleicao
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancelar := func() { _ = sub.Close() }
	return out, cancelar, nil
}

func (n *Notificador) canal(id domain.EleicaoID) string {
	return fmt.Sprintf("%s:%s", n.prefix, id)
}

var _ domain.Notificador = (*Notificador)(nil)
