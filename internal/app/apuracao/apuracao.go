// Pacote apuracao concentra a contagem de votos e as regras de avanço entre
// escrutínios. Tudo aqui é puro: recebe um snapshot, devolve números.
package apuracao

import (
	"sort"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// Resultado é a apuração de um escrutínio.
type Resultado struct {
	VotosPorCandidato map[domain.MembroID]int
	Brancos           int
	Nulos             int
	// TotalValidos soma apenas votos em candidatos do quadro; brancos e nulos ficam fora.
	TotalValidos int
}

// Linha é a projeção ordenada consumida pela camada de apresentação.
type Linha struct {
	CandidatoID domain.MembroID `json:"candidatoId"`
	Nome        string          `json:"nome"`
	Votos       int             `json:"votos"`
}

// Apurar conta as cédulas de um escrutínio. Todo candidato do quadro aparece no
// mapa mesmo com zero votos. Escolhas que não batem com o quadro nem com os
// sentinelas são descartadas dos válidos: um candidato podado no meio de um
// escrutínio aberto não invalida a cédula inteira.
func Apurar(esc domain.Escrutinio) Resultado {
	res := Resultado{
		VotosPorCandidato: make(map[domain.MembroID]int, len(esc.Candidatos)),
	}

	for _, c := range esc.Candidatos {
		res.VotosPorCandidato[c.UserID] = 0
	}

	for _, voto := range esc.Votos {
		switch voto.CandidatoID {
		case domain.VotoBranco:
			res.Brancos++
		case domain.VotoNulo:
			res.Nulos++
		default:
			if _, ok := res.VotosPorCandidato[domain.MembroID(voto.CandidatoID)]; ok {
				res.VotosPorCandidato[domain.MembroID(voto.CandidatoID)]++
			}
		}
	}

	for _, total := range res.VotosPorCandidato {
		res.TotalValidos += total
	}

	return res
}

// Classificacao devolve as linhas ordenadas por votos decrescentes; empates
// ficam em ordem de id para que a saída seja estável entre chamadas.
func (r Resultado) Classificacao(candidatos []domain.Candidato) []Linha {
	nomes := make(map[domain.MembroID]string, len(candidatos))
	for _, c := range candidatos {
		nomes[c.UserID] = c.Nome
	}

	linhas := make([]Linha, 0, len(r.VotosPorCandidato))
	for id, votos := range r.VotosPorCandidato {
		linhas = append(linhas, Linha{CandidatoID: id, Nome: nomes[id], Votos: votos})
	}

	sort.Slice(linhas, func(i, j int) bool {
		if linhas[i].Votos != linhas[j].Votos {
			return linhas[i].Votos > linhas[j].Votos
		}
		return linhas[i].CandidatoID < linhas[j].CandidatoID
	})

	return linhas
}
