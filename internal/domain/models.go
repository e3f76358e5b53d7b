// Pacote domain define o agregado de eleição interna (cargos, escrutínios e votos)
// e as portas consumidas pelos serviços de aplicação.
package domain

import (
	"time"
)

type (
	EleicaoID string
	CargoID   string
	MembroID  string
)

// Sentinelas de cédula: o eleitor escolhe um candidato ou um destes valores.
const (
	VotoBranco = "BRANCO"
	VotoNulo   = "NULO"
)

type StatusEleicao string

const (
	EleicaoAgendada    StatusEleicao = "agendada"
	EleicaoEmAndamento StatusEleicao = "em_andamento"
	EleicaoFinalizada  StatusEleicao = "finalizada"
)

type StatusEscrutinio string

const (
	EscrutinioNaoIniciado StatusEscrutinio = "nao_iniciado"
	EscrutinioAberto      StatusEscrutinio = "aberto"
	EscrutinioFechado     StatusEscrutinio = "fechado"
)

// TitulosDeCargo é o conjunto fechado de cargos eletivos da diretoria.
var TitulosDeCargo = []string{
	"Presidente",
	"Vice-Presidente",
	"1º Secretário",
	"2º Secretário",
	"Tesoureiro",
}

func TituloDeCargoValido(titulo string) bool {
	for _, t := range TitulosDeCargo {
		if t == titulo {
			return true
		}
	}
	return false
}

// Membro é um votante elegível da eleição.
type Membro struct {
	ID   MembroID `json:"id"`
	Nome string   `json:"nome"`
}

// Candidato sempre deriva do quadro de membros.
type Candidato struct {
	UserID MembroID `json:"userId"`
	Nome   string   `json:"nome"`
}

// Voto é uma cédula depositada: a escolha é um userId ou um sentinela BRANCO/NULO.
type Voto struct {
	EleitorID   MembroID `json:"eleitorId"`
	CandidatoID string   `json:"candidatoId"`
}

type Escrutinio struct {
	Numero        int              `json:"numero"`
	Candidatos    []Candidato      `json:"candidatos"`
	Votos         []Voto           `json:"votos"`
	Status        StatusEscrutinio `json:"status"`
	VotosEmBranco int              `json:"votosEmBranco,omitempty"`
	VotosNulos    int              `json:"votosNulos,omitempty"`
}

type Cargo struct {
	ID                 CargoID      `json:"id"`
	Titulo             string       `json:"titulo"`
	CandidatosIniciais []Candidato  `json:"candidatosIniciais"`
	Escrutinios        []Escrutinio `json:"escrutinios"`
	Vencedor           *Candidato   `json:"vencedor,omitempty"`
}

// CedulaRef aponta o único escrutínio aberto da eleição, se houver.
type CedulaRef struct {
	CargoID          CargoID `json:"cargoId"`
	EscrutinioNumero int     `json:"escrutinioNum"`
}

// Eleicao é o documento único compartilhado: toda mutação reescreve o agregado
// inteiro sob compare-and-swap de versão.
type Eleicao struct {
	ID                     EleicaoID     `json:"id"`
	Titulo                 string        `json:"titulo"`
	Status                 StatusEleicao `json:"status"`
	MembrosElegiveis       []Membro      `json:"membrosElegiveis"`
	Cargos                 []Cargo       `json:"cargos"`
	CargoAbertoParaVotacao *CedulaRef    `json:"cargoAbertoParaVotacao"`
	AdminUid               string        `json:"adminUid"`
}

// EventoAuditoria registra cada mutação confirmada; nada é apagado.
type EventoAuditoria struct {
	ID               string    `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	EleicaoID        EleicaoID `gorm:"column:eleicao_id;type:char(26);not null;index" json:"eleicaoId"`
	Tipo             string    `gorm:"column:tipo;type:text;not null" json:"tipo"`
	CargoID          CargoID   `gorm:"column:cargo_id;type:text" json:"cargoId,omitempty"`
	EscrutinioNumero int       `gorm:"column:escrutinio_numero" json:"escrutinioNumero,omitempty"`
	Detalhe          string    `gorm:"column:detalhe;type:text" json:"detalhe,omitempty"`
	CriadoEm         time.Time `gorm:"column:criado_em;index" json:"criadoEm"`
}

func (EventoAuditoria) TableName() string { return "eventos_auditoria" }

// Cargo retorna o cargo com o id informado, ou nil.
func (e *Eleicao) Cargo(id CargoID) *Cargo {
	for i := range e.Cargos {
		if e.Cargos[i].ID == id {
			return &e.Cargos[i]
		}
	}
	return nil
}

// Escrutinio retorna o escrutínio de número dado dentro do cargo, ou nil.
func (c *Cargo) Escrutinio(numero int) *Escrutinio {
	for i := range c.Escrutinios {
		if c.Escrutinios[i].Numero == numero {
			return &c.Escrutinios[i]
		}
	}
	return nil
}

// MembroElegivel busca o eleitor no quadro de membros da eleição.
func (e *Eleicao) MembroElegivel(id MembroID) (Membro, bool) {
	for _, m := range e.MembrosElegiveis {
		if m.ID == id {
			return m, true
		}
	}
	return Membro{}, false
}

// JaVotou informa se o eleitor já depositou cédula neste escrutínio.
func (esc *Escrutinio) JaVotou(eleitorID MembroID) bool {
	for _, v := range esc.Votos {
		if v.EleitorID == eleitorID {
			return true
		}
	}
	return false
}

// TodosCargosDecididos indica se cada cargo já possui vencedor declarado.
func (e *Eleicao) TodosCargosDecididos() bool {
	for i := range e.Cargos {
		if e.Cargos[i].Vencedor == nil {
			return false
		}
	}
	return len(e.Cargos) > 0
}

// Clone copia o agregado em profundidade. Toda transação muta uma cópia e só
// então grava, evitando aliasing com leitores do snapshot anterior.
func (e Eleicao) Clone() Eleicao {
	clone := e

	clone.MembrosElegiveis = append([]Membro(nil), e.MembrosElegiveis...)

	clone.Cargos = make([]Cargo, len(e.Cargos))
	for i, c := range e.Cargos {
		clone.Cargos[i] = c.Clone()
	}

	if e.CargoAbertoParaVotacao != nil {
		ref := *e.CargoAbertoParaVotacao
		clone.CargoAbertoParaVotacao = &ref
	}

	return clone
}

func (c Cargo) Clone() Cargo {
	clone := c
	clone.CandidatosIniciais = append([]Candidato(nil), c.CandidatosIniciais...)

	clone.Escrutinios = make([]Escrutinio, len(c.Escrutinios))
	for i, esc := range c.Escrutinios {
		clone.Escrutinios[i] = esc.Clone()
	}

	if c.Vencedor != nil {
		vencedor := *c.Vencedor
		clone.Vencedor = &vencedor
	}

	return clone
}

func (esc Escrutinio) Clone() Escrutinio {
	clone := esc
	clone.Candidatos = append([]Candidato(nil), esc.Candidatos...)
	clone.Votos = append([]Voto(nil), esc.Votos...)
	return clone
}
