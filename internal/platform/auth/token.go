// Pacote auth resolve a identidade do administrador via tokens JWT assinados
// com HMAC. O núcleo só precisa de um uid estável para checagens de posse.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/marcelojr/eleicao-diretoria/internal/domain"
)

type Emissor struct {
	segredo  []byte
	validade time.Duration
}

func NewEmissor(segredo string, validade time.Duration) (*Emissor, error) {
	if segredo == "" {
		return nil, fmt.Errorf("auth: segredo JWT vazio")
	}
	if validade <= 0 {
		validade = 8 * time.Hour
	}
	return &Emissor{segredo: []byte(segredo), validade: validade}, nil
}

// Emitir assina um token cujo subject é o uid do administrador.
func (e *Emissor) Emitir(adminUid string) (string, error) {
	if adminUid == "" {
		return "", fmt.Errorf("%w: uid vazio", domain.ErrNaoAutenticado)
	}

	agora := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": adminUid,
		"iat": agora.Unix(),
		"exp": agora.Add(e.validade).Unix(),
	})

	assinado, err := token.SignedString(e.segredo)
	if err != nil {
		return "", fmt.Errorf("auth: assinar token: %w", err)
	}
	return assinado, nil
}

// Validar verifica assinatura e expiração e devolve o uid do administrador.
// Qualquer falha vira ErrNaoAutenticado: o chamador não distingue motivos.
func (e *Emissor) Validar(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("metodo de assinatura inesperado: %v", t.Header["alg"])
		}
		return e.segredo, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: token invalido", domain.ErrNaoAutenticado)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: claims ilegiveis", domain.ErrNaoAutenticado)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: subject ausente", domain.ErrNaoAutenticado)
	}

	return sub, nil
}
