package domain

import (
	"context"
	"time"
)

// EleicaoRepository persiste o documento único de cada eleição.
//
// Transacionar implementa a disciplina read-modify-compare-and-swap: lê o
// snapshot com sua versão, aplica fn sobre uma cópia e grava condicionado à
// versão lida. Uma colisão concorrente devolve ErrConflito sem efeito; quem
// re-tenta (com limite) é o coordenador, nunca o repositório.
type EleicaoRepository interface {
	Criar(ctx context.Context, e Eleicao) error
	Buscar(ctx context.Context, id EleicaoID) (Eleicao, error)
	ListarDoAdmin(ctx context.Context, adminUid string) ([]Eleicao, error)
	Transacionar(ctx context.Context, id EleicaoID, fn func(*Eleicao) error) (Eleicao, error)
}

// EventoRepository guarda a trilha de auditoria em armazenamento durável.
type EventoRepository interface {
	Registrar(ctx context.Context, ev EventoAuditoria) error
	ListarPorEleicao(ctx context.Context, id EleicaoID) ([]EventoAuditoria, error)
}

// Fila transporta eventos de auditoria do commit até o worker.
type Fila interface {
	PublicarEvento(ctx context.Context, ev EventoAuditoria) error
	ConsumirEventos(ctx context.Context, handler func(context.Context, EventoAuditoria) error) error
}

// Contador mantém o comparecimento (cédulas depositadas) por escrutínio aberto,
// permitindo acompanhar participação sem deslacrar resultados.
type Contador interface {
	Incrementar(ctx context.Context, chave string, delta int64) (int64, error)
	Obter(ctx context.Context, chave string) (int64, error)
}

// Notificador propaga snapshots confirmados da eleição para assinantes,
// substituindo a sincronização em tempo real que o documento compartilhado exige.
type Notificador interface {
	PublicarSnapshot(ctx context.Context, e Eleicao) error
	Assinar(ctx context.Context, id EleicaoID) (<-chan Eleicao, func(), error)
}

// TentativaVoto carrega a origem de uma submissão para o controle antifraude.
type TentativaVoto struct {
	EleicaoID EleicaoID
	OrigemIP  string
	UserAgent string
}

type Antifraude interface {
	Validar(ctx context.Context, tentativa TentativaVoto) error
}

type Clock interface {
	Agora() time.Time
}
