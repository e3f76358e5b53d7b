package eleicao

import (
	"fmt"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

// ChaveComparecimento identifica o contador de cédulas de um escrutínio.
// A chave muda a cada escrutínio, então cada votação começa do zero.
func ChaveComparecimento(eleicaoID domain.EleicaoID, cargoID domain.CargoID, numero int) string {
	return fmt.Sprintf("%s:cargo:%s:escrutinio:%d", eleicaoID, cargoID, numero)
}
