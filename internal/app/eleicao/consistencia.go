package eleicao

import "github.com/marcelojr/eleicao-diretoria/internal/domain"

// removerEleitoDosDemaisCargos poda o eleito do quadro dos outros cargos:
// sai dos candidatos iniciais e dos escrutínios ainda não iniciados. Escrutínios
// abertos ou fechados ficam intactos, assim como cargos já decididos.
func removerEleitoDosDemaisCargos(e *domain.Eleicao, eleito domain.MembroID, cargoDecidido domain.CargoID) {
	for i := range e.Cargos {
		cargo := &e.Cargos[i]
		if cargo.ID == cargoDecidido || cargo.Vencedor != nil {
			continue
		}

		cargo.CandidatosIniciais = semCandidato(cargo.CandidatosIniciais, eleito)
		for j := range cargo.Escrutinios {
			esc := &cargo.Escrutinios[j]
			if esc.Status != domain.EscrutinioNaoIniciado {
				continue
			}
			esc.Candidatos = semCandidato(esc.Candidatos, eleito)
		}
	}
}

func semCandidato(candidatos []domain.Candidato, id domain.MembroID) []domain.Candidato {
	filtrados := candidatos[:0]
	for _, c := range candidatos {
		if c.UserID != id {
			filtrados = append(filtrados, c)
		}
	}
	return filtrados
}
