package eleicao

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/ids"
)

type memEleicaoRepo struct {
	mu       sync.Mutex
	eleicoes map[domain.EleicaoID]domain.Eleicao
}

func newMemEleicaoRepo() *memEleicaoRepo {
	return &memEleicaoRepo{eleicoes: make(map[domain.EleicaoID]domain.Eleicao)}
}

func (r *memEleicaoRepo) Criar(_ context.Context, e domain.Eleicao) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, existe := r.eleicoes[e.ID]; existe {
		return fmt.Errorf("eleicao %s ja existe", e.ID)
	}
	r.eleicoes[e.ID] = e.Clone()
	return nil
}

func (r *memEleicaoRepo) Buscar(_ context.Context, id domain.EleicaoID) (domain.Eleicao, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.eleicoes[id]
	if !ok {
		return domain.Eleicao{}, domain.ErrNaoEncontrado
	}
	return e.Clone(), nil
}

func (r *memEleicaoRepo) ListarDoAdmin(_ context.Context, adminUid string) ([]domain.Eleicao, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Eleicao
	for _, e := range r.eleicoes {
		if e.AdminUid == adminUid {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *memEleicaoRepo) Transacionar(_ context.Context, id domain.EleicaoID, fn func(*domain.Eleicao) error) (domain.Eleicao, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	atual, ok := r.eleicoes[id]
	if !ok {
		return domain.Eleicao{}, domain.ErrNaoEncontrado
	}
	copia := atual.Clone()
	if err := fn(&copia); err != nil {
		return domain.Eleicao{}, err
	}
	r.eleicoes[id] = copia.Clone()
	return copia, nil
}

// conflitoRepo injeta ErrConflito nas primeiras N transações para exercitar
// a re-tentativa do coordenador.
type conflitoRepo struct {
	domain.EleicaoRepository
	mu        sync.Mutex
	restantes int
	tentadas  int
}

func (r *conflitoRepo) Transacionar(ctx context.Context, id domain.EleicaoID, fn func(*domain.Eleicao) error) (domain.Eleicao, error) {
	r.mu.Lock()
	r.tentadas++
	if r.restantes > 0 {
		r.restantes--
		r.mu.Unlock()
		return domain.Eleicao{}, domain.ErrConflito
	}
	r.mu.Unlock()
	return r.EleicaoRepository.Transacionar(ctx, id, fn)
}

type memFila struct {
	mu      sync.Mutex
	eventos []domain.EventoAuditoria
}

func (f *memFila) PublicarEvento(_ context.Context, ev domain.EventoAuditoria) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventos = append(f.eventos, ev)
	return nil
}

func (f *memFila) ConsumirEventos(context.Context, func(context.Context, domain.EventoAuditoria) error) error {
	return nil
}

func (f *memFila) tipos() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.eventos))
	for i, ev := range f.eventos {
		out[i] = ev.Tipo
	}
	return out
}

type memContador struct {
	mu      sync.Mutex
	valores map[string]int64
}

func newMemContador() *memContador {
	return &memContador{valores: make(map[string]int64)}
}

func (c *memContador) Incrementar(_ context.Context, chave string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valores[chave] += delta
	return c.valores[chave], nil
}

func (c *memContador) Obter(_ context.Context, chave string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valores[chave], nil
}

type relogioFixo struct{ t time.Time }

func (r relogioFixo) Agora() time.Time { return r.t }

type antifraudeBloqueante struct{ err error }

func (a antifraudeBloqueante) Validar(context.Context, domain.TentativaVoto) error { return a.err }

type ambiente struct {
	service  *Service
	repo     *memEleicaoRepo
	fila     *memFila
	contador *memContador
}

func novoAmbiente(t *testing.T) *ambiente {
	t.Helper()
	repo := newMemEleicaoRepo()
	fila := &memFila{}
	contador := newMemContador()
	clock := relogioFixo{t: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)}
	svc := NewService(repo, fila, contador, nil, nil, clock, ids.NewGenerator(), 5)
	return &ambiente{service: svc, repo: repo, fila: fila, contador: contador}
}

func membrosDeTeste() []domain.Membro {
	return []domain.Membro{
		{ID: "m1", Nome: "Ana"},
		{ID: "m2", Nome: "Bruno"},
		{ID: "m3", Nome: "Clara"},
		{ID: "m4", Nome: "Davi"},
		{ID: "m5", Nome: "Elisa"},
	}
}

func criarEleicaoDeTeste(t *testing.T, env *ambiente, cargos ...NovoCargo) domain.Eleicao {
	t.Helper()
	if len(cargos) == 0 {
		cargos = []NovoCargo{{Titulo: "Presidente", CandidatoIDs: []domain.MembroID{"m1", "m2", "m3"}}}
	}
	eleicao, err := env.service.CriarEleicao(context.Background(), "admin-1", "Eleição da Diretoria 2026", membrosDeTeste(), cargos)
	if err != nil {
		t.Fatalf("CriarEleicao: %v", err)
	}
	return eleicao
}

func abrir(t *testing.T, env *ambiente, e domain.Eleicao, cargoID domain.CargoID, numero int) domain.Eleicao {
	t.Helper()
	atualizada, err := env.service.AbrirEscrutinio(context.Background(), e.ID, cargoID, numero)
	if err != nil {
		t.Fatalf("AbrirEscrutinio(%s, %d): %v", cargoID, numero, err)
	}
	return atualizada
}

func votar(t *testing.T, env *ambiente, e domain.Eleicao, cargoID domain.CargoID, numero int, eleitor domain.MembroID, escolha string) {
	t.Helper()
	_, err := env.service.RegistrarVoto(context.Background(), RegistroVoto{
		EleicaoID:        e.ID,
		CargoID:          cargoID,
		EscrutinioNumero: numero,
		EleitorID:        eleitor,
		CandidatoID:      escolha,
	})
	if err != nil {
		t.Fatalf("RegistrarVoto(%s -> %s): %v", eleitor, escolha, err)
	}
}

func TestCriarEleicaoSemeiaEscrutinios(t *testing.T) {
	env := novoAmbiente(t)

	eleicao := criarEleicaoDeTeste(t, env)

	if eleicao.Status != domain.EleicaoAgendada {
		t.Fatalf("status = %s, esperava agendada", eleicao.Status)
	}
	if eleicao.CargoAbertoParaVotacao != nil {
		t.Fatalf("eleicao recem-criada nao pode ter cedula aberta")
	}

	cargo := eleicao.Cargos[0]
	if len(cargo.Escrutinios) != 3 {
		t.Fatalf("escrutinios = %d, esperava 3", len(cargo.Escrutinios))
	}
	for _, numero := range []int{1, 2} {
		esc := cargo.Escrutinio(numero)
		if len(esc.Candidatos) != 3 {
			t.Fatalf("escrutinio %d com %d candidatos, esperava o quadro completo", numero, len(esc.Candidatos))
		}
		if esc.Status != domain.EscrutinioNaoIniciado {
			t.Fatalf("escrutinio %d status = %s", numero, esc.Status)
		}
	}
	if esc3 := cargo.Escrutinio(3); len(esc3.Candidatos) != 0 {
		t.Fatalf("terceiro escrutinio deveria comecar sem candidatos, tem %d", len(esc3.Candidatos))
	}

	tipos := env.fila.tipos()
	if len(tipos) != 1 || tipos[0] != "eleicao_criada" {
		t.Fatalf("eventos = %v, esperava [eleicao_criada]", tipos)
	}
}

func TestCriarEleicaoValidacao(t *testing.T) {
	env := novoAmbiente(t)
	membros := membrosDeTeste()
	presidente := NovoCargo{Titulo: "Presidente", CandidatoIDs: []domain.MembroID{"m1", "m2"}}

	casos := []struct {
		nome    string
		admin   string
		titulo  string
		membros []domain.Membro
		cargos  []NovoCargo
		querErr error
	}{
		{"sem admin", "", "Eleição", membros, []NovoCargo{presidente}, domain.ErrNaoAutenticado},
		{"sem titulo", "admin-1", "", membros, []NovoCargo{presidente}, domain.ErrEleicaoInvalida},
		{"sem membros", "admin-1", "Eleição", nil, []NovoCargo{presidente}, domain.ErrEleicaoInvalida},
		{"sem cargos", "admin-1", "Eleição", membros, nil, domain.ErrEleicaoInvalida},
		{"membro duplicado", "admin-1", "Eleição", append(membrosDeTeste(), domain.Membro{ID: "m1", Nome: "Ana"}), []NovoCargo{presidente}, domain.ErrEleicaoInvalida},
		{"cargo desconhecido", "admin-1", "Eleição", membros, []NovoCargo{{Titulo: "Diretor de Marketing", CandidatoIDs: []domain.MembroID{"m1"}}}, domain.ErrEleicaoInvalida},
		{"cargo repetido", "admin-1", "Eleição", membros, []NovoCargo{presidente, presidente}, domain.ErrEleicaoInvalida},
		{"cargo sem candidatos", "admin-1", "Eleição", membros, []NovoCargo{{Titulo: "Tesoureiro"}}, domain.ErrEleicaoInvalida},
		{"candidato fora do quadro", "admin-1", "Eleição", membros, []NovoCargo{{Titulo: "Tesoureiro", CandidatoIDs: []domain.MembroID{"desconhecido"}}}, domain.ErrEleicaoInvalida},
		{"candidato duplicado", "admin-1", "Eleição", membros, []NovoCargo{{Titulo: "Tesoureiro", CandidatoIDs: []domain.MembroID{"m1", "m1"}}}, domain.ErrEleicaoInvalida},
	}

	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			_, err := env.service.CriarEleicao(context.Background(), caso.admin, caso.titulo, caso.membros, caso.cargos)
			if !errors.Is(err, caso.querErr) {
				t.Fatalf("err = %v, esperava %v", err, caso.querErr)
			}
		})
	}
}

func TestAbrirEscrutinio(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env,
		NovoCargo{Titulo: "Presidente", CandidatoIDs: []domain.MembroID{"m1", "m2"}},
		NovoCargo{Titulo: "Tesoureiro", CandidatoIDs: []domain.MembroID{"m3", "m4"}},
	)
	presidente := eleicao.Cargos[0].ID
	tesoureiro := eleicao.Cargos[1].ID

	atualizada := abrir(t, env, eleicao, presidente, 1)
	if atualizada.Status != domain.EleicaoEmAndamento {
		t.Fatalf("status = %s, esperava em_andamento", atualizada.Status)
	}
	aberto := atualizada.CargoAbertoParaVotacao
	if aberto == nil || aberto.CargoID != presidente || aberto.EscrutinioNumero != 1 {
		t.Fatalf("cedula aberta = %+v, esperava presidente/1", aberto)
	}

	// Um escrutínio aberto bloqueia qualquer outra abertura, mesmo em outro cargo.
	if _, err := env.service.AbrirEscrutinio(context.Background(), eleicao.ID, tesoureiro, 1); !errors.Is(err, domain.ErrOutroEscrutinioAberto) {
		t.Fatalf("err = %v, esperava ErrOutroEscrutinioAberto", err)
	}
}

func TestAbrirEscrutinioIndisponivel(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	// Terceiro sem quadro preparado.
	if _, err := env.service.AbrirEscrutinio(context.Background(), eleicao.ID, cargoID, 3); !errors.Is(err, domain.ErrEscrutinioIndisponivel) {
		t.Fatalf("err = %v, esperava ErrEscrutinioIndisponivel", err)
	}

	abrir(t, env, eleicao, cargoID, 1)
	votar(t, env, eleicao, cargoID, 1, "m1", domain.VotoBranco)
	if _, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 1); err != nil {
		t.Fatalf("FecharEscrutinio: %v", err)
	}

	// Fechado nunca reabre.
	if _, err := env.service.AbrirEscrutinio(context.Background(), eleicao.ID, cargoID, 1); !errors.Is(err, domain.ErrEscrutinioIndisponivel) {
		t.Fatalf("reabertura: err = %v, esperava ErrEscrutinioIndisponivel", err)
	}

	if _, err := env.service.AbrirEscrutinio(context.Background(), eleicao.ID, "inexistente", 1); !errors.Is(err, domain.ErrNaoEncontrado) {
		t.Fatalf("cargo inexistente: err = %v, esperava ErrNaoEncontrado", err)
	}
}

func TestRegistrarVoto(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID
	abrir(t, env, eleicao, cargoID, 1)

	comprovante, err := env.service.RegistrarVoto(context.Background(), RegistroVoto{
		EleicaoID:        eleicao.ID,
		CargoID:          cargoID,
		EscrutinioNumero: 1,
		EleitorID:        "m1",
		CandidatoID:      "m2",
	})
	if err != nil {
		t.Fatalf("RegistrarVoto: %v", err)
	}
	if comprovante.ID == "" || comprovante.RegistradoEm.IsZero() {
		t.Fatalf("comprovante incompleto: %+v", comprovante)
	}

	depois, err := env.service.BuscarEleicao(context.Background(), eleicao.ID)
	if err != nil {
		t.Fatalf("BuscarEleicao: %v", err)
	}
	esc := depois.Cargo(cargoID).Escrutinio(1)
	if len(esc.Votos) != 1 || esc.Votos[0].EleitorID != "m1" || esc.Votos[0].CandidatoID != "m2" {
		t.Fatalf("votos = %+v", esc.Votos)
	}

	chave := ChaveComparecimento(eleicao.ID, cargoID, 1)
	if n, _ := env.contador.Obter(context.Background(), chave); n != 1 {
		t.Fatalf("comparecimento = %d, esperava 1", n)
	}

	// Segunda cédula do mesmo eleitor no mesmo escrutínio.
	_, err = env.service.RegistrarVoto(context.Background(), RegistroVoto{
		EleicaoID:        eleicao.ID,
		CargoID:          cargoID,
		EscrutinioNumero: 1,
		EleitorID:        "m1",
		CandidatoID:      "m3",
	})
	if !errors.Is(err, domain.ErrJaVotou) {
		t.Fatalf("err = %v, esperava ErrJaVotou", err)
	}
}

func TestRegistrarVotoRejeicoes(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	base := RegistroVoto{EleicaoID: eleicao.ID, CargoID: cargoID, EscrutinioNumero: 1, EleitorID: "m1", CandidatoID: "m2"}

	// Nada aberto ainda.
	if _, err := env.service.RegistrarVoto(context.Background(), base); !errors.Is(err, domain.ErrEscrutinioNaoAberto) {
		t.Fatalf("sem cedula aberta: err = %v", err)
	}

	abrir(t, env, eleicao, cargoID, 1)

	casos := []struct {
		nome    string
		mutar   func(*RegistroVoto)
		querErr error
	}{
		{"escrutinio errado", func(r *RegistroVoto) { r.EscrutinioNumero = 2 }, domain.ErrEscrutinioNaoAberto},
		{"cargo errado", func(r *RegistroVoto) { r.CargoID = "outro" }, domain.ErrEscrutinioNaoAberto},
		{"eleitor fora do quadro", func(r *RegistroVoto) { r.EleitorID = "intruso" }, domain.ErrEleitorNaoElegivel},
		{"cedula sem escolha", func(r *RegistroVoto) { r.CandidatoID = "" }, domain.ErrEleicaoInvalida},
		{"cedula sem eleitor", func(r *RegistroVoto) { r.EleitorID = "" }, domain.ErrEleicaoInvalida},
	}
	for _, caso := range casos {
		t.Run(caso.nome, func(t *testing.T) {
			reg := base
			caso.mutar(&reg)
			if _, err := env.service.RegistrarVoto(context.Background(), reg); !errors.Is(err, caso.querErr) {
				t.Fatalf("err = %v, esperava %v", err, caso.querErr)
			}
		})
	}
}

func TestRegistrarVotoAntifraudeBloqueia(t *testing.T) {
	repo := newMemEleicaoRepo()
	bloqueio := fmt.Errorf("origem barrada")
	clock := relogioFixo{t: time.Now().UTC()}
	svc := NewService(repo, nil, nil, nil, antifraudeBloqueante{err: bloqueio}, clock, ids.NewGenerator(), 5)

	_, err := svc.RegistrarVoto(context.Background(), RegistroVoto{
		EleicaoID:        "qualquer",
		CargoID:          "cargo",
		EscrutinioNumero: 1,
		EleitorID:        "m1",
		CandidatoID:      "m2",
	})
	if !errors.Is(err, bloqueio) {
		t.Fatalf("err = %v, esperava o erro do antifraude antes de tocar o documento", err)
	}
}

func TestRegistrarVotoConcorrente(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID
	abrir(t, env, eleicao, cargoID, 1)

	const submissoes = 16
	var wg sync.WaitGroup
	erros := make([]error, submissoes)

	for i := 0; i < submissoes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.service.RegistrarVoto(context.Background(), RegistroVoto{
				EleicaoID:        eleicao.ID,
				CargoID:          cargoID,
				EscrutinioNumero: 1,
				EleitorID:        "m1",
				CandidatoID:      "m2",
			})
			erros[i] = err
		}(i)
	}
	wg.Wait()

	sucessos := 0
	for _, err := range erros {
		switch {
		case err == nil:
			sucessos++
		case errors.Is(err, domain.ErrJaVotou):
		default:
			t.Fatalf("erro inesperado: %v", err)
		}
	}
	if sucessos != 1 {
		t.Fatalf("sucessos = %d, exatamente uma cedula deveria entrar", sucessos)
	}

	depois, _ := env.service.BuscarEleicao(context.Background(), eleicao.ID)
	if votos := depois.Cargo(cargoID).Escrutinio(1).Votos; len(votos) != 1 {
		t.Fatalf("votos = %d, esperava 1", len(votos))
	}
}

func TestFecharEscrutinioComMaioria(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID
	abrir(t, env, eleicao, cargoID, 1)

	// 3 votos em m2 num total de 5 válidos: maioria absoluta (3*2 > 5).
	votar(t, env, eleicao, cargoID, 1, "m1", "m2")
	votar(t, env, eleicao, cargoID, 1, "m2", "m2")
	votar(t, env, eleicao, cargoID, 1, "m3", "m2")
	votar(t, env, eleicao, cargoID, 1, "m4", "m1")
	votar(t, env, eleicao, cargoID, 1, "m5", "m3")

	fechamento, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 1)
	if err != nil {
		t.Fatalf("FecharEscrutinio: %v", err)
	}

	if fechamento.Vencedor == nil || fechamento.Vencedor.UserID != "m2" {
		t.Fatalf("vencedor = %+v, esperava m2", fechamento.Vencedor)
	}
	if fechamento.Eleicao.CargoAbertoParaVotacao != nil {
		t.Fatalf("cedula deveria estar limpa apos o fechamento")
	}
	// Cargo único decidido: eleição encerra.
	if fechamento.Eleicao.Status != domain.EleicaoFinalizada {
		t.Fatalf("status = %s, esperava finalizada", fechamento.Eleicao.Status)
	}
	if got := fechamento.Apuracao.TotalValidos; got != 5 {
		t.Fatalf("validos = %d", got)
	}
}

func TestFecharEscrutinioSemMaioria(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID
	abrir(t, env, eleicao, cargoID, 1)

	// 2 x 2 com um nulo: ninguem passa de metade dos 4 válidos.
	votar(t, env, eleicao, cargoID, 1, "m1", "m2")
	votar(t, env, eleicao, cargoID, 1, "m2", "m2")
	votar(t, env, eleicao, cargoID, 1, "m3", "m1")
	votar(t, env, eleicao, cargoID, 1, "m4", "m1")
	votar(t, env, eleicao, cargoID, 1, "m5", domain.VotoNulo)

	fechamento, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 1)
	if err != nil {
		t.Fatalf("FecharEscrutinio: %v", err)
	}

	if fechamento.Vencedor != nil {
		t.Fatalf("vencedor inesperado: %+v", fechamento.Vencedor)
	}
	if fechamento.Apuracao.Nulos != 1 {
		t.Fatalf("nulos = %d", fechamento.Apuracao.Nulos)
	}

	depois, _ := env.service.BuscarEleicao(context.Background(), eleicao.ID)
	esc := depois.Cargo(cargoID).Escrutinio(1)
	if esc.Status != domain.EscrutinioFechado {
		t.Fatalf("status = %s", esc.Status)
	}
	if esc.VotosNulos != 1 || esc.VotosEmBranco != 0 {
		t.Fatalf("contagens persistidas: brancos=%d nulos=%d", esc.VotosEmBranco, esc.VotosNulos)
	}
	if depois.Status != domain.EleicaoEmAndamento {
		t.Fatalf("eleicao deveria seguir em andamento, status = %s", depois.Status)
	}
}

func TestFecharEscrutinioPodaOutrosCargos(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env,
		NovoCargo{Titulo: "Presidente", CandidatoIDs: []domain.MembroID{"m1", "m2"}},
		NovoCargo{Titulo: "Tesoureiro", CandidatoIDs: []domain.MembroID{"m1", "m3"}},
	)
	presidente := eleicao.Cargos[0].ID
	tesoureiro := eleicao.Cargos[1].ID

	abrir(t, env, eleicao, presidente, 1)
	votar(t, env, eleicao, presidente, 1, "m1", "m1")
	votar(t, env, eleicao, presidente, 1, "m2", "m1")
	votar(t, env, eleicao, presidente, 1, "m3", "m1")

	fechamento, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, presidente, 1)
	if err != nil {
		t.Fatalf("FecharEscrutinio: %v", err)
	}
	if fechamento.Vencedor == nil || fechamento.Vencedor.UserID != "m1" {
		t.Fatalf("vencedor = %+v", fechamento.Vencedor)
	}

	// O mesmo snapshot devolvido já mostra o eleito fora do outro cargo.
	outro := fechamento.Eleicao.Cargo(tesoureiro)
	for _, c := range outro.CandidatosIniciais {
		if c.UserID == "m1" {
			t.Fatalf("eleito continua nos candidatos iniciais do tesoureiro")
		}
	}
	for _, numero := range []int{1, 2} {
		for _, c := range outro.Escrutinio(numero).Candidatos {
			if c.UserID == "m1" {
				t.Fatalf("eleito continua no escrutinio %d do tesoureiro", numero)
			}
		}
	}
	if fechamento.Eleicao.Status == domain.EleicaoFinalizada {
		t.Fatalf("tesoureiro ainda nao foi decidido, eleicao nao pode finalizar")
	}
}

func TestFecharEscrutinioExigeCedulaAberta(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	if _, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 1); !errors.Is(err, domain.ErrEscrutinioNaoAberto) {
		t.Fatalf("err = %v, esperava ErrEscrutinioNaoAberto", err)
	}

	abrir(t, env, eleicao, cargoID, 1)
	if _, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 2); !errors.Is(err, domain.ErrEscrutinioNaoAberto) {
		t.Fatalf("numero divergente: err = %v", err)
	}
}

func TestPrepararTerceiroEscrutinio(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	// Antes do 2º fechar, a preparação é prematura.
	if _, err := env.service.PrepararTerceiroEscrutinio(context.Background(), eleicao.ID, cargoID); !errors.Is(err, domain.ErrSegundoEscrutinioNaoFechado) {
		t.Fatalf("err = %v, esperava ErrSegundoEscrutinioNaoFechado", err)
	}

	// 1º escrutínio sem maioria.
	abrir(t, env, eleicao, cargoID, 1)
	votar(t, env, eleicao, cargoID, 1, "m1", "m1")
	votar(t, env, eleicao, cargoID, 1, "m2", "m2")
	if _, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 1); err != nil {
		t.Fatalf("fechar 1: %v", err)
	}

	// 2º também sem maioria: m1 e m2 com 2 votos, m3 com 1.
	abrir(t, env, eleicao, cargoID, 2)
	votar(t, env, eleicao, cargoID, 2, "m1", "m1")
	votar(t, env, eleicao, cargoID, 2, "m2", "m1")
	votar(t, env, eleicao, cargoID, 2, "m3", "m2")
	votar(t, env, eleicao, cargoID, 2, "m4", "m2")
	votar(t, env, eleicao, cargoID, 2, "m5", "m3")
	if _, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 2); err != nil {
		t.Fatalf("fechar 2: %v", err)
	}

	atualizada, err := env.service.PrepararTerceiroEscrutinio(context.Background(), eleicao.ID, cargoID)
	if err != nil {
		t.Fatalf("PrepararTerceiroEscrutinio: %v", err)
	}

	finalistas := atualizada.Cargo(cargoID).Escrutinio(3).Candidatos
	if len(finalistas) != 2 {
		t.Fatalf("finalistas = %d, esperava os 2 mais votados", len(finalistas))
	}
	ids := map[domain.MembroID]bool{finalistas[0].UserID: true, finalistas[1].UserID: true}
	if !ids["m1"] || !ids["m2"] {
		t.Fatalf("finalistas = %+v, esperava m1 e m2", finalistas)
	}

	// Preparar de novo é rejeitado.
	if _, err := env.service.PrepararTerceiroEscrutinio(context.Background(), eleicao.ID, cargoID); !errors.Is(err, domain.ErrTerceiroEscrutinioJaPreparado) {
		t.Fatalf("repreparo: err = %v", err)
	}

	// Agora o 3º pode abrir e decide por pluralidade.
	abrir(t, env, eleicao, cargoID, 3)
	votar(t, env, eleicao, cargoID, 3, "m1", "m1")
	votar(t, env, eleicao, cargoID, 3, "m2", "m1")
	votar(t, env, eleicao, cargoID, 3, "m3", "m2")
	fechamento, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 3)
	if err != nil {
		t.Fatalf("fechar 3: %v", err)
	}
	if fechamento.Vencedor == nil || fechamento.Vencedor.UserID != "m1" {
		t.Fatalf("vencedor no 3o = %+v, esperava m1 por pluralidade", fechamento.Vencedor)
	}
}

func TestTransacionarRetentaConflitos(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	repo := &conflitoRepo{EleicaoRepository: env.repo, restantes: 2}
	clock := relogioFixo{t: time.Now().UTC()}
	svc := NewService(repo, nil, nil, nil, nil, clock, ids.NewGenerator(), 5)

	if _, err := svc.AbrirEscrutinio(context.Background(), eleicao.ID, cargoID, 1); err != nil {
		t.Fatalf("esperava sucesso apos re-tentativas, veio %v", err)
	}
	if repo.tentadas != 3 {
		t.Fatalf("tentativas = %d, esperava 3", repo.tentadas)
	}
}

func TestTransacionarEsgotaTentativas(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	repo := &conflitoRepo{EleicaoRepository: env.repo, restantes: 100}
	clock := relogioFixo{t: time.Now().UTC()}
	svc := NewService(repo, nil, nil, nil, nil, clock, ids.NewGenerator(), 3)

	_, err := svc.AbrirEscrutinio(context.Background(), eleicao.ID, cargoID, 1)
	if !errors.Is(err, domain.ErrConflito) {
		t.Fatalf("err = %v, esperava ErrConflito apos esgotar o limite", err)
	}
	if repo.tentadas != 3 {
		t.Fatalf("tentativas = %d, esperava exatamente o limite", repo.tentadas)
	}
}

func TestCedulaAbertaEValidacaoDeVotante(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID

	if _, err := env.service.CedulaAberta(context.Background(), eleicao.ID); !errors.Is(err, domain.ErrSemCedulaAberta) {
		t.Fatalf("err = %v, esperava ErrSemCedulaAberta", err)
	}

	abrir(t, env, eleicao, cargoID, 1)

	cedula, err := env.service.CedulaAberta(context.Background(), eleicao.ID)
	if err != nil {
		t.Fatalf("CedulaAberta: %v", err)
	}
	if cedula.Cargo.ID != cargoID || cedula.Escrutinio.Numero != 1 {
		t.Fatalf("cedula = %s/%d", cedula.Cargo.ID, cedula.Escrutinio.Numero)
	}

	membro, err := env.service.ValidarVotante(context.Background(), eleicao.ID, "m1")
	if err != nil {
		t.Fatalf("ValidarVotante: %v", err)
	}
	if membro.Nome != "Ana" {
		t.Fatalf("membro = %+v", membro)
	}

	if _, err := env.service.ValidarVotante(context.Background(), eleicao.ID, "intruso"); !errors.Is(err, domain.ErrEleitorNaoElegivel) {
		t.Fatalf("intruso: err = %v", err)
	}

	votar(t, env, eleicao, cargoID, 1, "m1", domain.VotoBranco)
	if _, err := env.service.ValidarVotante(context.Background(), eleicao.ID, "m1"); !errors.Is(err, domain.ErrJaVotou) {
		t.Fatalf("repetente: err = %v", err)
	}
}

func TestComparecimento(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID
	abrir(t, env, eleicao, cargoID, 1)

	votar(t, env, eleicao, cargoID, 1, "m1", "m2")
	votar(t, env, eleicao, cargoID, 1, "m2", domain.VotoBranco)

	total, err := env.service.Comparecimento(context.Background(), eleicao.ID)
	if err != nil {
		t.Fatalf("Comparecimento: %v", err)
	}
	if total != 2 {
		t.Fatalf("comparecimento = %d, esperava 2", total)
	}
}

func TestApurarReexibicao(t *testing.T) {
	env := novoAmbiente(t)
	eleicao := criarEleicaoDeTeste(t, env)
	cargoID := eleicao.Cargos[0].ID
	abrir(t, env, eleicao, cargoID, 1)
	votar(t, env, eleicao, cargoID, 1, "m1", "m2")
	votar(t, env, eleicao, cargoID, 1, "m2", "m2")
	votar(t, env, eleicao, cargoID, 1, "m3", domain.VotoBranco)
	if _, err := env.service.FecharEscrutinio(context.Background(), eleicao.ID, cargoID, 1); err != nil {
		t.Fatalf("FecharEscrutinio: %v", err)
	}

	primeira, err := env.service.Apurar(context.Background(), eleicao.ID, cargoID, 1)
	if err != nil {
		t.Fatalf("Apurar: %v", err)
	}
	segunda, err := env.service.Apurar(context.Background(), eleicao.ID, cargoID, 1)
	if err != nil {
		t.Fatalf("Apurar (segunda): %v", err)
	}

	if primeira.TotalValidos != 2 || primeira.Brancos != 1 {
		t.Fatalf("apuracao = %+v", primeira)
	}
	if len(primeira.Classificacao) != len(segunda.Classificacao) || primeira.TotalValidos != segunda.TotalValidos {
		t.Fatalf("reapuracao divergente: %+v vs %+v", primeira, segunda)
	}
	if primeira.Classificacao[0].CandidatoID != "m2" {
		t.Fatalf("classificacao = %+v", primeira.Classificacao)
	}
}
