// Pacote httpapi expõe os handlers REST e traduz requisições HTTP para o
// coordenador da eleição. Rotas administrativas exigem token JWT; as de
// eleitor são públicas e protegidas só pelo antifraude do serviço.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/marcelojr/eleicao-diretoria/internal/app/eleicao"
	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/antifraude"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/metrics"
)

// Servico é a fatia do coordenador consumida pelos handlers.
type Servico interface {
	CriarEleicao(ctx context.Context, adminUid, titulo string, membros []domain.Membro, cargos []eleicao.NovoCargo) (domain.Eleicao, error)
	ListarDoAdmin(ctx context.Context, adminUid string) ([]domain.Eleicao, error)
	BuscarEleicao(ctx context.Context, id domain.EleicaoID) (domain.Eleicao, error)
	AbrirEscrutinio(ctx context.Context, id domain.EleicaoID, cargoID domain.CargoID, numero int) (domain.Eleicao, error)
	FecharEscrutinio(ctx context.Context, id domain.EleicaoID, cargoID domain.CargoID, numero int) (eleicao.Fechamento, error)
	PrepararTerceiroEscrutinio(ctx context.Context, id domain.EleicaoID, cargoID domain.CargoID) (domain.Eleicao, error)
	RegistrarVoto(ctx context.Context, reg eleicao.RegistroVoto) (eleicao.Comprovante, error)
	CedulaAberta(ctx context.Context, id domain.EleicaoID) (eleicao.Cedula, error)
	ValidarVotante(ctx context.Context, id domain.EleicaoID, eleitorID domain.MembroID) (domain.Membro, error)
	Apurar(ctx context.Context, id domain.EleicaoID, cargoID domain.CargoID, numero int) (eleicao.Apuracao, error)
	Comparecimento(ctx context.Context, id domain.EleicaoID) (int64, error)
	AssinarSnapshots(ctx context.Context, id domain.EleicaoID) (<-chan domain.Eleicao, func(), error)
}

// Autenticador emite e valida os tokens dos administradores.
type Autenticador interface {
	Emitir(adminUid string) (string, error)
	Validar(token string) (string, error)
}

// API empacota handlers HTTP ligados ao coordenador, ao autenticador e ao logger.
type API struct {
	service    Servico
	eventos    domain.EventoRepository
	auth       Autenticador
	adminChave string
	logger     *slog.Logger
}

func New(service Servico, eventos domain.EventoRepository, auth Autenticador, adminChave string, logger *slog.Logger) *API {
	return &API{service: service, eventos: eventos, auth: auth, adminChave: adminChave, logger: logger}
}

func (a *API) Register(mux *http.ServeMux) {
	// Mantemos as rotas centralizadas para facilitar testes e reuso em servidores diferentes.
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("POST /auth/token", a.emitirToken)

	mux.HandleFunc("POST /admin/eleicoes", a.autenticado(a.criarEleicao))
	mux.HandleFunc("GET /admin/eleicoes", a.autenticado(a.listarEleicoes))
	mux.HandleFunc("POST /admin/eleicoes/{id}/cargos/{cargoId}/escrutinios/{numero}/abrir", a.autenticado(a.dono(a.abrirEscrutinio)))
	mux.HandleFunc("POST /admin/eleicoes/{id}/cargos/{cargoId}/escrutinios/{numero}/fechar", a.autenticado(a.dono(a.fecharEscrutinio)))
	mux.HandleFunc("POST /admin/eleicoes/{id}/cargos/{cargoId}/terceiro-escrutinio", a.autenticado(a.dono(a.prepararTerceiro)))
	mux.HandleFunc("GET /admin/eleicoes/{id}/eventos", a.autenticado(a.dono(a.listarEventos)))

	mux.HandleFunc("GET /eleicoes/{id}", a.obterEleicao)
	mux.HandleFunc("GET /eleicoes/{id}/cedula", a.obterCedula)
	mux.HandleFunc("GET /eleicoes/{id}/votantes/{eleitorId}", a.validarVotante)
	mux.HandleFunc("POST /eleicoes/{id}/votos", a.registrarVoto)
	mux.HandleFunc("GET /eleicoes/{id}/cargos/{cargoId}/escrutinios/{numero}/apuracao", a.obterApuracao)
	mux.HandleFunc("GET /eleicoes/{id}/comparecimento", a.obterComparecimento)
	mux.HandleFunc("GET /eleicoes/{id}/acompanhar", a.acompanhar)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type tokenRequest struct {
	Uid   string `json:"uid"`
	Chave string `json:"chave"`
}

func (a *API) emitirToken(w http.ResponseWriter, r *http.Request) {
	if a.adminChave == "" {
		http.Error(w, "emissao de token desabilitada", http.StatusNotFound)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "payload invalido", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Chave), []byte(a.adminChave)) != 1 {
		a.logger.Warn("chave de acesso invalida na emissao de token", "uid", req.Uid)
		responderErro(w, domain.ErrNaoAutenticado)
		return
	}

	token, err := a.auth.Emitir(req.Uid)
	if err != nil {
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, map[string]string{"token": token})
}

type handlerAutenticado func(w http.ResponseWriter, r *http.Request, adminUid string)

// autenticado extrai e valida o Bearer token antes de chamar o handler.
func (a *API) autenticado(next handlerAutenticado) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			responderErro(w, domain.ErrNaoAutenticado)
			return
		}

		adminUid, err := a.auth.Validar(token)
		if err != nil {
			responderErro(w, err)
			return
		}

		next(w, r, adminUid)
	}
}

// dono garante que o administrador autenticado é quem criou a eleição da rota.
func (a *API) dono(next handlerAutenticado) handlerAutenticado {
	return func(w http.ResponseWriter, r *http.Request, adminUid string) {
		id := domain.EleicaoID(r.PathValue("id"))
		e, err := a.service.BuscarEleicao(r.Context(), id)
		if err != nil {
			responderErro(w, err)
			return
		}
		if e.AdminUid != adminUid {
			responderJSON(w, http.StatusForbidden, map[string]string{"erro": "eleicao pertence a outro administrador"})
			return
		}
		next(w, r, adminUid)
	}
}

type novoCargoRequest struct {
	Titulo     string   `json:"titulo"`
	Candidatos []string `json:"candidatos"`
}

type criarEleicaoRequest struct {
	Titulo  string             `json:"titulo"`
	Membros []domain.Membro    `json:"membros"`
	Cargos  []novoCargoRequest `json:"cargos"`
}

func (a *API) criarEleicao(w http.ResponseWriter, r *http.Request, adminUid string) {
	var req criarEleicaoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "payload invalido", http.StatusBadRequest)
		return
	}

	cargos := make([]eleicao.NovoCargo, 0, len(req.Cargos))
	for _, c := range req.Cargos {
		nc := eleicao.NovoCargo{Titulo: c.Titulo}
		for _, id := range c.Candidatos {
			nc.CandidatoIDs = append(nc.CandidatoIDs, domain.MembroID(id))
		}
		cargos = append(cargos, nc)
	}

	criada, err := a.service.CriarEleicao(r.Context(), adminUid, req.Titulo, req.Membros, cargos)
	if err != nil {
		a.logger.Warn("falha ao criar eleicao", "err", err, "admin", adminUid)
		responderErro(w, err)
		return
	}

	a.logger.Info("eleicao criada", "eleicao", criada.ID, "admin", adminUid)
	responderJSON(w, http.StatusCreated, criada)
}

func (a *API) listarEleicoes(w http.ResponseWriter, r *http.Request, adminUid string) {
	eleicoes, err := a.service.ListarDoAdmin(r.Context(), adminUid)
	if err != nil {
		a.logger.Error("erro ao listar eleicoes", "err", err, "admin", adminUid)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, eleicoes)
}

func (a *API) abrirEscrutinio(w http.ResponseWriter, r *http.Request, adminUid string) {
	id, cargoID, numero, err := caminhoEscrutinio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	atualizada, err := a.service.AbrirEscrutinio(r.Context(), id, cargoID, numero)
	if err != nil {
		a.logger.Warn("falha ao abrir escrutinio", "err", err, "eleicao", id, "cargo", cargoID, "numero", numero)
		responderErro(w, err)
		return
	}

	a.logger.Info("escrutinio aberto", "eleicao", id, "cargo", cargoID, "numero", numero, "admin", adminUid)
	responderJSON(w, http.StatusOK, atualizada)
}

func (a *API) fecharEscrutinio(w http.ResponseWriter, r *http.Request, adminUid string) {
	id, cargoID, numero, err := caminhoEscrutinio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fechamento, err := a.service.FecharEscrutinio(r.Context(), id, cargoID, numero)
	if err != nil {
		a.logger.Warn("falha ao fechar escrutinio", "err", err, "eleicao", id, "cargo", cargoID, "numero", numero)
		responderErro(w, err)
		return
	}

	a.logger.Info("escrutinio fechado", "eleicao", id, "cargo", cargoID, "numero", numero, "admin", adminUid, "vencedor", fechamento.Vencedor != nil)
	responderJSON(w, http.StatusOK, fechamento)
}

func (a *API) prepararTerceiro(w http.ResponseWriter, r *http.Request, adminUid string) {
	id := domain.EleicaoID(r.PathValue("id"))
	cargoID := domain.CargoID(r.PathValue("cargoId"))

	atualizada, err := a.service.PrepararTerceiroEscrutinio(r.Context(), id, cargoID)
	if err != nil {
		a.logger.Warn("falha ao preparar terceiro escrutinio", "err", err, "eleicao", id, "cargo", cargoID)
		responderErro(w, err)
		return
	}

	a.logger.Info("terceiro escrutinio preparado", "eleicao", id, "cargo", cargoID, "admin", adminUid)
	responderJSON(w, http.StatusOK, atualizada)
}

// listarEventos devolve a trilha de auditoria persistida pelo worker, em ordem
// cronológica.
func (a *API) listarEventos(w http.ResponseWriter, r *http.Request, adminUid string) {
	id := domain.EleicaoID(r.PathValue("id"))

	eventos, err := a.eventos.ListarPorEleicao(r.Context(), id)
	if err != nil {
		a.logger.Error("erro ao listar eventos de auditoria", "err", err, "eleicao", id)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, eventos)
}

func (a *API) obterEleicao(w http.ResponseWriter, r *http.Request) {
	id := domain.EleicaoID(r.PathValue("id"))

	e, err := a.service.BuscarEleicao(r.Context(), id)
	if err != nil {
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, e)
}

func (a *API) obterCedula(w http.ResponseWriter, r *http.Request) {
	id := domain.EleicaoID(r.PathValue("id"))

	cedula, err := a.service.CedulaAberta(r.Context(), id)
	if err != nil {
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, map[string]any{
		"cargoId":          cedula.Cargo.ID,
		"cargoTitulo":      cedula.Cargo.Titulo,
		"escrutinioNumero": cedula.Escrutinio.Numero,
		"candidatos":       cedula.Escrutinio.Candidatos,
	})
}

func (a *API) validarVotante(w http.ResponseWriter, r *http.Request) {
	id := domain.EleicaoID(r.PathValue("id"))
	eleitorID := domain.MembroID(r.PathValue("eleitorId"))

	membro, err := a.service.ValidarVotante(r.Context(), id, eleitorID)
	if err != nil {
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, membro)
}

type votoRequest struct {
	EleitorID        string `json:"eleitorId"`
	CargoID          string `json:"cargoId"`
	EscrutinioNumero int    `json:"escrutinioNumero"`
	CandidatoID      string `json:"candidatoId"`
}

func (a *API) registrarVoto(w http.ResponseWriter, r *http.Request) {
	var req votoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveVoto("invalid_payload")
		a.logger.Warn("payload invalido ao registrar voto", "err", err)
		http.Error(w, "payload invalido", http.StatusBadRequest)
		return
	}

	reg := eleicao.RegistroVoto{
		EleicaoID:        domain.EleicaoID(r.PathValue("id")),
		CargoID:          domain.CargoID(req.CargoID),
		EscrutinioNumero: req.EscrutinioNumero,
		EleitorID:        domain.MembroID(req.EleitorID),
		CandidatoID:      req.CandidatoID,
		OrigemIP:         r.Header.Get("X-Forwarded-For"),
		UserAgent:        r.UserAgent(),
	}
	if reg.OrigemIP == "" {
		reg.OrigemIP = strings.Split(r.RemoteAddr, ":")[0]
	}

	comprovante, err := a.service.RegistrarVoto(r.Context(), reg)
	if err != nil {
		status := statusFromError(err)
		metrics.ObserveVoto(status)
		a.logger.Warn("falha ao registrar voto", "err", err, "eleicao", reg.EleicaoID, "eleitor", req.EleitorID, "status", status)
		responderErro(w, err)
		return
	}

	metrics.ObserveVoto("accepted")
	a.logger.Info("cedula registrada", "eleicao", reg.EleicaoID, "comprovante", comprovante.ID)
	responderJSON(w, http.StatusCreated, comprovante)
}

func (a *API) obterApuracao(w http.ResponseWriter, r *http.Request) {
	id, cargoID, numero, err := caminhoEscrutinio(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	apuracao, err := a.service.Apurar(r.Context(), id, cargoID, numero)
	if err != nil {
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, apuracao)
}

func (a *API) obterComparecimento(w http.ResponseWriter, r *http.Request) {
	id := domain.EleicaoID(r.PathValue("id"))

	total, err := a.service.Comparecimento(r.Context(), id)
	if err != nil {
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, map[string]int64{"comparecimento": total})
}

// acompanhar transmite snapshots confirmados da eleição como server-sent
// events: o estado atual primeiro, depois cada commit publicado.
func (a *API) acompanhar(w http.ResponseWriter, r *http.Request) {
	id := domain.EleicaoID(r.PathValue("id"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming nao suportado", http.StatusInternalServerError)
		return
	}

	snapshots, cancelar, err := a.service.AssinarSnapshots(r.Context(), id)
	if err != nil {
		responderErro(w, err)
		return
	}
	defer cancelar()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if atual, err := a.service.BuscarEleicao(r.Context(), id); err == nil {
		escreverEventoSSE(w, atual)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, aberto := <-snapshots:
			if !aberto {
				return
			}
			escreverEventoSSE(w, e)
			flusher.Flush()
		}
	}
}

func escreverEventoSSE(w http.ResponseWriter, e domain.Eleicao) {
	corpo, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: eleicao\ndata: %s\n\n", corpo)
}

func caminhoEscrutinio(r *http.Request) (domain.EleicaoID, domain.CargoID, int, error) {
	numero, err := strconv.Atoi(r.PathValue("numero"))
	if err != nil || numero < 1 || numero > 3 {
		return "", "", 0, fmt.Errorf("numero de escrutinio invalido")
	}
	return domain.EleicaoID(r.PathValue("id")), domain.CargoID(r.PathValue("cargoId")), numero, nil
}

func responderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func responderErro(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrEleicaoInvalida):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNaoAutenticado):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrEleitorNaoElegivel):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNaoEncontrado), errors.Is(err, domain.ErrSemCedulaAberta):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEscrutinioNaoAberto),
		errors.Is(err, domain.ErrOutroEscrutinioAberto),
		errors.Is(err, domain.ErrEscrutinioIndisponivel),
		errors.Is(err, domain.ErrCargoJaDecidido),
		errors.Is(err, domain.ErrJaVotou),
		errors.Is(err, domain.ErrSegundoEscrutinioNaoFechado),
		errors.Is(err, domain.ErrTerceiroEscrutinioJaPreparado),
		errors.Is(err, domain.ErrSemFinalistas):
		status = http.StatusConflict
	case errors.Is(err, antifraude.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConflito):
		// Re-tentativas esgotadas sob alta contenção: o cliente pode repetir.
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	}

	responderJSON(w, status, map[string]string{"erro": err.Error()})
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, antifraude.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, domain.ErrJaVotou):
		return "duplicado"
	case errors.Is(err, domain.ErrEleitorNaoElegivel):
		return "nao_elegivel"
	case errors.Is(err, domain.ErrEscrutinioNaoAberto):
		return "fora_de_periodo"
	case errors.Is(err, domain.ErrConflito):
		return "conflito"
	case errors.Is(err, domain.ErrEleicaoInvalida):
		return "invalid"
	case errors.Is(err, domain.ErrNaoEncontrado):
		return "not_found"
	default:
		return "error"
	}
}
