package apuracao

import (
	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// Decisao é o veredicto de um escrutínio fechado.
type Decisao struct {
	VencedorID domain.MembroID
	Venceu     bool
	// EmpateNoTopo sinaliza que o vencedor do 3º escrutínio saiu de um empate
	// resolvido apenas pela ordenação estável da classificação. A regra de
	// desempate é uma decisão de política ainda em aberto; o chamador deve
	// expor o sinal em vez de escondê-lo.
	EmpateNoTopo bool
}

// DecidirVencedor aplica a regra do escrutínio: maioria absoluta (estritamente
// mais da metade dos válidos) no 1º e 2º, maioria simples no 3º. Empate exato
// na metade não elege ninguém.
func DecidirVencedor(numero int, res Resultado, candidatos []domain.Candidato) Decisao {
	if res.TotalValidos == 0 {
		return Decisao{}
	}

	if numero == 1 || numero == 2 {
		for id, votos := range res.VotosPorCandidato {
			if votos*2 > res.TotalValidos {
				return Decisao{VencedorID: id, Venceu: true}
			}
		}
		return Decisao{}
	}

	linhas := res.Classificacao(candidatos)
	if len(linhas) == 0 {
		return Decisao{}
	}

	empate := len(linhas) > 1 && linhas[1].Votos == linhas[0].Votos
	return Decisao{VencedorID: linhas[0].CandidatoID, Venceu: true, EmpateNoTopo: empate}
}

// SelecionarFinalistas monta o quadro do 3º escrutínio a partir da apuração do
// 2º: os dois mais votados avançam, com expansão em caso de empate.
//
//   - Quadro com até 2 candidatos: todos avançam.
//   - Empate no 1º lugar: todos os empatados avançam e o 2º lugar é descartado.
//   - 1º lugar único com empate no 2º: o líder e todos os empatados avançam.
//   - Caso contrário: exatamente os dois primeiros.
//
// Candidatos já eleitos para outro cargo saem do conjunto mesmo que a
// classificação os tenha escolhido. Se a exclusão esvaziar o conjunto, a
// operação falha com ErrSemFinalistas em vez de deixar o cargo sem disputa.
func SelecionarFinalistas(res Resultado, candidatos []domain.Candidato, eleitosEmOutrosCargos map[domain.MembroID]bool) ([]domain.Candidato, error) {
	linhas := res.Classificacao(candidatos)

	var selecionados []Linha
	if len(linhas) <= 2 {
		selecionados = linhas
	} else {
		primeiro := linhas[0].Votos
		segundo := -1
		for _, l := range linhas[1:] {
			if l.Votos < primeiro {
				segundo = l.Votos
				break
			}
		}

		switch {
		case linhas[1].Votos == primeiro:
			// Empate no topo: avançam só os empatados em 1º.
			for _, l := range linhas {
				if l.Votos == primeiro {
					selecionados = append(selecionados, l)
				}
			}
		case contagem(linhas, segundo) > 1:
			// 1º claro, empate no 2º: líder mais todos os empatados.
			selecionados = append(selecionados, linhas[0])
			for _, l := range linhas[1:] {
				if l.Votos == segundo {
					selecionados = append(selecionados, l)
				}
			}
		default:
			selecionados = linhas[:2]
		}
	}

	porID := make(map[domain.MembroID]domain.Candidato, len(candidatos))
	for _, c := range candidatos {
		porID[c.UserID] = c
	}

	finalistas := make([]domain.Candidato, 0, len(selecionados))
	for _, l := range selecionados {
		if eleitosEmOutrosCargos[l.CandidatoID] {
			continue
		}
		if c, ok := porID[l.CandidatoID]; ok {
			finalistas = append(finalistas, c)
		}
	}

	if len(finalistas) == 0 {
		return nil, domain.ErrSemFinalistas
	}

	return finalistas, nil
}

func contagem(linhas []Linha, votos int) int {
	n := 0
	for _, l := range linhas {
		if l.Votos == votos {
			n++
		}
	}
	return n
}
