// Pacote eleicao implementa o coordenador de estado da eleição: abertura e
// fechamento de escrutínios, registro de votos e preparação do 3º escrutínio,
// tudo como transações otimistas sobre o documento único.
package eleicao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelojr/eleicao-diretoria/internal/app/apuracao"
	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/ids"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/logger"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/metrics"
)

// Service concentra as regras da eleição e delega persistência, fila e antifraude.
type Service struct {
	eleicoes      domain.EleicaoRepository
	fila          domain.Fila
	contador      domain.Contador
	notificador   domain.Notificador
	antifraude    domain.Antifraude
	clock         domain.Clock
	ids           *ids.Generator
	maxTentativas int
}

func NewService(
	eleicoes domain.EleicaoRepository,
	fila domain.Fila,
	contador domain.Contador,
	notificador domain.Notificador,
	antifraude domain.Antifraude,
	clock domain.Clock,
	idsGen *ids.Generator,
	maxTentativas int,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if maxTentativas < 1 {
		maxTentativas = 5
	}
	return &Service{
		eleicoes:      eleicoes,
		fila:          fila,
		contador:      contador,
		notificador:   notificador,
		antifraude:    antifraude,
		clock:         clock,
		ids:           idsGen,
		maxTentativas: maxTentativas,
	}
}

// NovoCargo descreve um cargo na criação: título do conjunto fechado e os
// candidatos escolhidos dentre os membros elegíveis.
type NovoCargo struct {
	Titulo       string
	CandidatoIDs []domain.MembroID
}

// Cedula é o par (cargo, escrutínio) aberto para votação.
type Cedula struct {
	Eleicao    domain.Eleicao
	Cargo      domain.Cargo
	Escrutinio domain.Escrutinio
}

// RegistroVoto é a submissão de uma cédula pelo eleitor.
type RegistroVoto struct {
	EleicaoID        domain.EleicaoID
	CargoID          domain.CargoID
	EscrutinioNumero int
	EleitorID        domain.MembroID
	CandidatoID      string
	OrigemIP         string
	UserAgent        string
}

// Comprovante é o recibo devolvido ao eleitor após o commit.
type Comprovante struct {
	ID           string    `json:"id"`
	RegistradoEm time.Time `json:"registradoEm"`
}

// Apuracao é a projeção de leitura de um escrutínio, ordenada por votos.
type Apuracao struct {
	CargoID          domain.CargoID          `json:"cargoId"`
	EscrutinioNumero int                     `json:"escrutinioNumero"`
	Status           domain.StatusEscrutinio `json:"status"`
	Classificacao    []apuracao.Linha        `json:"classificacao"`
	Brancos          int                     `json:"brancos"`
	Nulos            int                     `json:"nulos"`
	TotalValidos     int                     `json:"totalValidos"`
}

// Fechamento é o desfecho de um escrutínio recém-fechado.
type Fechamento struct {
	Eleicao      domain.Eleicao    `json:"eleicao"`
	Apuracao     Apuracao          `json:"apuracao"`
	Vencedor     *domain.Candidato `json:"vencedor,omitempty"`
	EmpateNoTopo bool              `json:"empateNoTopo,omitempty"`
}

// CriarEleicao valida e registra a eleição com os escrutínios pré-semeados:
// 1º e 2º com o quadro completo de candidatos, 3º vazio até a preparação.
func (s *Service) CriarEleicao(ctx context.Context, adminUid, titulo string, membros []domain.Membro, cargos []NovoCargo) (domain.Eleicao, error) {
	if adminUid == "" {
		return domain.Eleicao{}, domain.ErrNaoAutenticado
	}
	if titulo == "" {
		return domain.Eleicao{}, fmt.Errorf("%w: titulo obrigatorio", domain.ErrEleicaoInvalida)
	}
	if len(membros) == 0 {
		return domain.Eleicao{}, fmt.Errorf("%w: ao menos um membro elegivel", domain.ErrEleicaoInvalida)
	}
	if len(cargos) == 0 {
		return domain.Eleicao{}, fmt.Errorf("%w: ao menos um cargo", domain.ErrEleicaoInvalida)
	}

	porID := make(map[domain.MembroID]domain.Membro, len(membros))
	for _, m := range membros {
		if m.ID == "" || m.Nome == "" {
			return domain.Eleicao{}, fmt.Errorf("%w: membro sem id ou nome", domain.ErrEleicaoInvalida)
		}
		if _, duplicado := porID[m.ID]; duplicado {
			return domain.Eleicao{}, fmt.Errorf("%w: membro duplicado %s", domain.ErrEleicaoInvalida, m.ID)
		}
		porID[m.ID] = m
	}

	eleicao := domain.Eleicao{
		ID:               domain.EleicaoID(s.ids.New()),
		Titulo:           titulo,
		Status:           domain.EleicaoAgendada,
		MembrosElegiveis: append([]domain.Membro(nil), membros...),
		AdminUid:         adminUid,
	}

	titulosVistos := make(map[string]bool, len(cargos))
	for _, nc := range cargos {
		if !domain.TituloDeCargoValido(nc.Titulo) {
			return domain.Eleicao{}, fmt.Errorf("%w: cargo desconhecido %q", domain.ErrEleicaoInvalida, nc.Titulo)
		}
		if titulosVistos[nc.Titulo] {
			return domain.Eleicao{}, fmt.Errorf("%w: cargo repetido %q", domain.ErrEleicaoInvalida, nc.Titulo)
		}
		titulosVistos[nc.Titulo] = true

		if len(nc.CandidatoIDs) == 0 {
			return domain.Eleicao{}, fmt.Errorf("%w: cargo %q sem candidatos", domain.ErrEleicaoInvalida, nc.Titulo)
		}

		candidatos := make([]domain.Candidato, 0, len(nc.CandidatoIDs))
		vistos := make(map[domain.MembroID]bool, len(nc.CandidatoIDs))
		for _, id := range nc.CandidatoIDs {
			membro, ok := porID[id]
			if !ok {
				return domain.Eleicao{}, fmt.Errorf("%w: candidato %s fora do quadro de membros", domain.ErrEleicaoInvalida, id)
			}
			if vistos[id] {
				return domain.Eleicao{}, fmt.Errorf("%w: candidato duplicado %s no cargo %q", domain.ErrEleicaoInvalida, id, nc.Titulo)
			}
			vistos[id] = true
			candidatos = append(candidatos, domain.Candidato{UserID: membro.ID, Nome: membro.Nome})
		}

		eleicao.Cargos = append(eleicao.Cargos, domain.Cargo{
			ID:                 domain.CargoID(s.ids.New()),
			Titulo:             nc.Titulo,
			CandidatosIniciais: candidatos,
			Escrutinios:        gerarEscrutiniosIniciais(candidatos),
		})
	}

	if err := s.eleicoes.Criar(ctx, eleicao); err != nil {
		return domain.Eleicao{}, err
	}

	s.registrarEvento(ctx, eleicao.ID, "eleicao_criada", "", 0, titulo)
	s.notificar(ctx, eleicao)

	return eleicao, nil
}

func gerarEscrutiniosIniciais(candidatos []domain.Candidato) []domain.Escrutinio {
	quadro := func() []domain.Candidato {
		return append([]domain.Candidato(nil), candidatos...)
	}
	return []domain.Escrutinio{
		{Numero: 1, Candidatos: quadro(), Votos: []domain.Voto{}, Status: domain.EscrutinioNaoIniciado},
		{Numero: 2, Candidatos: quadro(), Votos: []domain.Voto{}, Status: domain.EscrutinioNaoIniciado},
		// O 3º começa vazio: o quadro sai da apuração do 2º.
		{Numero: 3, Candidatos: []domain.Candidato{}, Votos: []domain.Voto{}, Status: domain.EscrutinioNaoIniciado},
	}
}

// AbrirEscrutinio coloca o escrutínio em votação. Só um escrutínio pode estar
// aberto por eleição; a eleição inteira passa a em_andamento.
func (s *Service) AbrirEscrutinio(ctx context.Context, eleicaoID domain.EleicaoID, cargoID domain.CargoID, numero int) (domain.Eleicao, error) {
	atualizada, err := s.transacionar(ctx, eleicaoID, func(e *domain.Eleicao) error {
		if e.CargoAbertoParaVotacao != nil {
			return domain.ErrOutroEscrutinioAberto
		}

		cargo := e.Cargo(cargoID)
		if cargo == nil {
			return fmt.Errorf("%w: cargo %s", domain.ErrNaoEncontrado, cargoID)
		}
		if cargo.Vencedor != nil {
			return domain.ErrCargoJaDecidido
		}

		esc := cargo.Escrutinio(numero)
		if esc == nil {
			return fmt.Errorf("%w: escrutinio %d", domain.ErrNaoEncontrado, numero)
		}
		if esc.Status != domain.EscrutinioNaoIniciado {
			return fmt.Errorf("%w: status atual %s", domain.ErrEscrutinioIndisponivel, esc.Status)
		}
		if numero == 3 && len(esc.Candidatos) == 0 {
			return fmt.Errorf("%w: terceiro escrutinio sem quadro preparado", domain.ErrEscrutinioIndisponivel)
		}

		esc.Status = domain.EscrutinioAberto
		e.CargoAbertoParaVotacao = &domain.CedulaRef{CargoID: cargoID, EscrutinioNumero: numero}
		e.Status = domain.EleicaoEmAndamento
		return nil
	})
	if err != nil {
		return domain.Eleicao{}, err
	}

	s.registrarEvento(ctx, eleicaoID, "escrutinio_aberto", cargoID, numero, "")
	s.notificar(ctx, atualizada)

	return atualizada, nil
}

// RegistrarVoto deposita a cédula dentro da transação: a checagem de "já votou"
// roda contra o snapshot lido, e o compare-and-swap fecha a corrida entre duas
// submissões quase simultâneas do mesmo eleitor.
func (s *Service) RegistrarVoto(ctx context.Context, reg RegistroVoto) (Comprovante, error) {
	if s.antifraude != nil {
		tentativa := domain.TentativaVoto{EleicaoID: reg.EleicaoID, OrigemIP: reg.OrigemIP, UserAgent: reg.UserAgent}
		if err := s.antifraude.Validar(ctx, tentativa); err != nil {
			return Comprovante{}, err
		}
	}
	if reg.EleitorID == "" || reg.CandidatoID == "" {
		return Comprovante{}, fmt.Errorf("%w: cedula incompleta", domain.ErrEleicaoInvalida)
	}

	atualizada, err := s.transacionar(ctx, reg.EleicaoID, func(e *domain.Eleicao) error {
		aberto := e.CargoAbertoParaVotacao
		if e.Status != domain.EleicaoEmAndamento || aberto == nil {
			return domain.ErrEscrutinioNaoAberto
		}
		if aberto.CargoID != reg.CargoID || aberto.EscrutinioNumero != reg.EscrutinioNumero {
			return domain.ErrEscrutinioNaoAberto
		}

		cargo := e.Cargo(reg.CargoID)
		if cargo == nil {
			return fmt.Errorf("%w: cargo %s", domain.ErrNaoEncontrado, reg.CargoID)
		}
		esc := cargo.Escrutinio(reg.EscrutinioNumero)
		if esc == nil || esc.Status != domain.EscrutinioAberto {
			return domain.ErrEscrutinioNaoAberto
		}

		if _, ok := e.MembroElegivel(reg.EleitorID); !ok {
			return domain.ErrEleitorNaoElegivel
		}
		if esc.JaVotou(reg.EleitorID) {
			return domain.ErrJaVotou
		}

		esc.Votos = append(esc.Votos, domain.Voto{EleitorID: reg.EleitorID, CandidatoID: reg.CandidatoID})
		return nil
	})
	if err != nil {
		return Comprovante{}, err
	}

	if s.contador != nil {
		chave := ChaveComparecimento(reg.EleicaoID, reg.CargoID, reg.EscrutinioNumero)
		if _, err := s.contador.Incrementar(ctx, chave, 1); err != nil {
			logger.Error("falha ao incrementar comparecimento", "eleicao", reg.EleicaoID, "err", err)
		}
	}
	s.registrarEvento(ctx, reg.EleicaoID, "voto_registrado", reg.CargoID, reg.EscrutinioNumero, "")
	s.notificar(ctx, atualizada)

	return Comprovante{ID: ids.NewComprovante(), RegistradoEm: s.clock.Agora()}, nil
}

// FecharEscrutinio encerra a votação, apura e decide. Se houver vencedor, o
// cargo é marcado e o eleito é podado dos demais cargos na mesma transação:
// nenhum leitor observa vencedor declarado num cargo e o mesmo candidato ainda
// listado em escrutínios não iniciados de outro.
func (s *Service) FecharEscrutinio(ctx context.Context, eleicaoID domain.EleicaoID, cargoID domain.CargoID, numero int) (Fechamento, error) {
	var fechamento Fechamento

	atualizada, err := s.transacionar(ctx, eleicaoID, func(e *domain.Eleicao) error {
		aberto := e.CargoAbertoParaVotacao
		if aberto == nil || aberto.CargoID != cargoID || aberto.EscrutinioNumero != numero {
			return domain.ErrEscrutinioNaoAberto
		}

		cargo := e.Cargo(cargoID)
		if cargo == nil {
			return fmt.Errorf("%w: cargo %s", domain.ErrNaoEncontrado, cargoID)
		}
		esc := cargo.Escrutinio(numero)
		if esc == nil || esc.Status != domain.EscrutinioAberto {
			return domain.ErrEscrutinioNaoAberto
		}

		esc.Status = domain.EscrutinioFechado
		e.CargoAbertoParaVotacao = nil

		res := apuracao.Apurar(*esc)
		esc.VotosEmBranco = res.Brancos
		esc.VotosNulos = res.Nulos

		fechamento = Fechamento{
			Apuracao: Apuracao{
				CargoID:          cargoID,
				EscrutinioNumero: numero,
				Status:           esc.Status,
				Classificacao:    res.Classificacao(esc.Candidatos),
				Brancos:          res.Brancos,
				Nulos:            res.Nulos,
				TotalValidos:     res.TotalValidos,
			},
		}

		decisao := apuracao.DecidirVencedor(numero, res, esc.Candidatos)
		if !decisao.Venceu {
			return nil
		}

		vencedor := localizarCandidato(cargo, decisao.VencedorID)
		if vencedor == nil {
			return fmt.Errorf("%w: vencedor %s fora do quadro", domain.ErrNaoEncontrado, decisao.VencedorID)
		}

		cargo.Vencedor = vencedor
		fechamento.Vencedor = vencedor
		fechamento.EmpateNoTopo = decisao.EmpateNoTopo

		removerEleitoDosDemaisCargos(e, vencedor.UserID, cargoID)

		if e.TodosCargosDecididos() {
			e.Status = domain.EleicaoFinalizada
		}
		return nil
	})
	if err != nil {
		return Fechamento{}, err
	}

	fechamento.Eleicao = atualizada

	resultado := "avanca"
	if fechamento.Vencedor != nil {
		resultado = "vencedor"
		s.registrarEvento(ctx, eleicaoID, "vencedor_declarado", cargoID, numero, string(fechamento.Vencedor.UserID))
	}
	metrics.IncEscrutinioFechado(resultado)
	s.registrarEvento(ctx, eleicaoID, "escrutinio_fechado", cargoID, numero, resultado)
	s.notificar(ctx, atualizada)

	return fechamento, nil
}

// PrepararTerceiroEscrutinio monta o quadro do 3º escrutínio a partir da
// apuração do 2º, na mesma transação em que o quadro é gravado: não há janela
// em que o 3º reflita dados defasados do 2º.
func (s *Service) PrepararTerceiroEscrutinio(ctx context.Context, eleicaoID domain.EleicaoID, cargoID domain.CargoID) (domain.Eleicao, error) {
	atualizada, err := s.transacionar(ctx, eleicaoID, func(e *domain.Eleicao) error {
		cargo := e.Cargo(cargoID)
		if cargo == nil {
			return fmt.Errorf("%w: cargo %s", domain.ErrNaoEncontrado, cargoID)
		}
		if cargo.Vencedor != nil {
			return domain.ErrCargoJaDecidido
		}

		esc2 := cargo.Escrutinio(2)
		if esc2 == nil || esc2.Status != domain.EscrutinioFechado {
			return domain.ErrSegundoEscrutinioNaoFechado
		}

		esc3 := cargo.Escrutinio(3)
		if esc3 == nil || esc3.Status != domain.EscrutinioNaoIniciado || len(esc3.Candidatos) > 0 {
			return domain.ErrTerceiroEscrutinioJaPreparado
		}

		eleitos := make(map[domain.MembroID]bool)
		for i := range e.Cargos {
			if e.Cargos[i].ID == cargoID {
				continue
			}
			if v := e.Cargos[i].Vencedor; v != nil {
				eleitos[v.UserID] = true
			}
		}

		res := apuracao.Apurar(*esc2)
		finalistas, err := apuracao.SelecionarFinalistas(res, esc2.Candidatos, eleitos)
		if err != nil {
			return err
		}

		esc3.Candidatos = finalistas
		return nil
	})
	if err != nil {
		return domain.Eleicao{}, err
	}

	s.registrarEvento(ctx, eleicaoID, "terceiro_escrutinio_preparado", cargoID, 3, "")
	s.notificar(ctx, atualizada)

	return atualizada, nil
}

// BuscarEleicao devolve o snapshot atual do documento.
func (s *Service) BuscarEleicao(ctx context.Context, id domain.EleicaoID) (domain.Eleicao, error) {
	return s.eleicoes.Buscar(ctx, id)
}

// ListarDoAdmin devolve as eleições administradas pelo uid autenticado.
func (s *Service) ListarDoAdmin(ctx context.Context, adminUid string) ([]domain.Eleicao, error) {
	if adminUid == "" {
		return nil, domain.ErrNaoAutenticado
	}
	return s.eleicoes.ListarDoAdmin(ctx, adminUid)
}

// CedulaAberta resolve a eleição para no máximo um par (cargo, escrutínio)
// aberto; qualquer outra situação é "nada aberto".
func (s *Service) CedulaAberta(ctx context.Context, id domain.EleicaoID) (Cedula, error) {
	eleicao, err := s.eleicoes.Buscar(ctx, id)
	if err != nil {
		return Cedula{}, err
	}

	aberto := eleicao.CargoAbertoParaVotacao
	if eleicao.Status != domain.EleicaoEmAndamento || aberto == nil {
		return Cedula{}, domain.ErrSemCedulaAberta
	}

	cargo := eleicao.Cargo(aberto.CargoID)
	if cargo == nil {
		return Cedula{}, domain.ErrSemCedulaAberta
	}
	esc := cargo.Escrutinio(aberto.EscrutinioNumero)
	if esc == nil || esc.Status != domain.EscrutinioAberto {
		return Cedula{}, domain.ErrSemCedulaAberta
	}

	return Cedula{Eleicao: eleicao, Cargo: *cargo, Escrutinio: *esc}, nil
}

// ValidarVotante confirma elegibilidade e ausência de voto prévio no escrutínio
// aberto. A resposta distingue os motivos para o eleitor saber a verdade.
func (s *Service) ValidarVotante(ctx context.Context, id domain.EleicaoID, eleitorID domain.MembroID) (domain.Membro, error) {
	cedula, err := s.CedulaAberta(ctx, id)
	if err != nil {
		return domain.Membro{}, err
	}

	membro, ok := cedula.Eleicao.MembroElegivel(eleitorID)
	if !ok {
		return domain.Membro{}, domain.ErrEleitorNaoElegivel
	}
	if cedula.Escrutinio.JaVotou(eleitorID) {
		return domain.Membro{}, domain.ErrJaVotou
	}

	return membro, nil
}

// Apurar recalcula a apuração de qualquer escrutínio, inclusive já fechado,
// para reexibição. A contagem é pura e idempotente.
func (s *Service) Apurar(ctx context.Context, id domain.EleicaoID, cargoID domain.CargoID, numero int) (Apuracao, error) {
	eleicao, err := s.eleicoes.Buscar(ctx, id)
	if err != nil {
		return Apuracao{}, err
	}

	cargo := eleicao.Cargo(cargoID)
	if cargo == nil {
		return Apuracao{}, fmt.Errorf("%w: cargo %s", domain.ErrNaoEncontrado, cargoID)
	}
	esc := cargo.Escrutinio(numero)
	if esc == nil {
		return Apuracao{}, fmt.Errorf("%w: escrutinio %d", domain.ErrNaoEncontrado, numero)
	}

	res := apuracao.Apurar(*esc)
	return Apuracao{
		CargoID:          cargoID,
		EscrutinioNumero: numero,
		Status:           esc.Status,
		Classificacao:    res.Classificacao(esc.Candidatos),
		Brancos:          res.Brancos,
		Nulos:            res.Nulos,
		TotalValidos:     res.TotalValidos,
	}, nil
}

// Comparecimento devolve quantas cédulas já entraram no escrutínio aberto.
// Usa o contador Redis quando disponível; sem ele, conta no próprio documento.
func (s *Service) Comparecimento(ctx context.Context, id domain.EleicaoID) (int64, error) {
	cedula, err := s.CedulaAberta(ctx, id)
	if err != nil {
		return 0, err
	}

	if s.contador != nil {
		chave := ChaveComparecimento(id, cedula.Cargo.ID, cedula.Escrutinio.Numero)
		return s.contador.Obter(ctx, chave)
	}
	return int64(len(cedula.Escrutinio.Votos)), nil
}

// AssinarSnapshots expõe o canal de snapshots confirmados da eleição.
func (s *Service) AssinarSnapshots(ctx context.Context, id domain.EleicaoID) (<-chan domain.Eleicao, func(), error) {
	if s.notificador == nil {
		return nil, nil, fmt.Errorf("notificador nao configurado")
	}
	return s.notificador.Assinar(ctx, id)
}

// transacionar aplica fn com re-tentativa limitada em caso de colisão de
// versão. É o único ponto do sistema que re-tenta ErrConflito.
func (s *Service) transacionar(ctx context.Context, id domain.EleicaoID, fn func(*domain.Eleicao) error) (domain.Eleicao, error) {
	inicio := time.Now()
	defer func() {
		metrics.ObserveTransacaoDuration(time.Since(inicio).Seconds())
	}()

	var ultimoErr error
	for tentativa := 1; tentativa <= s.maxTentativas; tentativa++ {
		atualizada, err := s.eleicoes.Transacionar(ctx, id, fn)
		if err == nil {
			return atualizada, nil
		}
		if !errors.Is(err, domain.ErrConflito) {
			return domain.Eleicao{}, err
		}

		metrics.IncConflitoTransacao()
		ultimoErr = err

		// Backoff curto e crescente; conflitos aqui são raros e passageiros.
		select {
		case <-ctx.Done():
			return domain.Eleicao{}, ctx.Err()
		case <-time.After(time.Duration(tentativa) * 10 * time.Millisecond):
		}
	}

	return domain.Eleicao{}, ultimoErr
}

// registrarEvento enfileira o evento de auditoria após o commit. Falha aqui não
// desfaz a transação: o documento é a fonte da verdade e o log apenas observa.
func (s *Service) registrarEvento(ctx context.Context, eleicaoID domain.EleicaoID, tipo string, cargoID domain.CargoID, numero int, detalhe string) {
	if s.fila == nil {
		return
	}
	ev := domain.EventoAuditoria{
		ID:               ids.NewComprovante(),
		EleicaoID:        eleicaoID,
		Tipo:             tipo,
		CargoID:          cargoID,
		EscrutinioNumero: numero,
		Detalhe:          detalhe,
		CriadoEm:         s.clock.Agora(),
	}
	if err := s.fila.PublicarEvento(ctx, ev); err != nil {
		logger.Error("falha ao enfileirar evento de auditoria", "eleicao", eleicaoID, "tipo", tipo, "err", err)
	}
}

func (s *Service) notificar(ctx context.Context, e domain.Eleicao) {
	if s.notificador == nil {
		return
	}
	if err := s.notificador.PublicarSnapshot(ctx, e); err != nil {
		logger.Error("falha ao publicar snapshot", "eleicao", e.ID, "err", err)
	}
}

func localizarCandidato(cargo *domain.Cargo, id domain.MembroID) *domain.Candidato {
	for _, esc := range cargo.Escrutinios {
		for _, c := range esc.Candidatos {
			if c.UserID == id {
				cand := c
				return &cand
			}
		}
	}
	for _, c := range cargo.CandidatosIniciais {
		if c.UserID == id {
			cand := c
			return &cand
		}
	}
	return nil
}
