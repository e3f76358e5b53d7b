package domain

import "errors"

// Taxonomia de erros do coordenador. ErrConflito é o único transitório:
// o serviço de eleição o re-tenta com limite antes de propagar.
var (
	ErrNaoEncontrado  = errors.New("registro nao encontrado")
	ErrConflito       = errors.New("conflito de versao na escrita")
	ErrNaoAutenticado = errors.New("administrador nao autenticado")
	ErrEleicaoInvalida = errors.New("eleicao invalida")

	// Violações de precondição: a operação foi chamada num estado que a proíbe.
	ErrEscrutinioNaoAberto          = errors.New("escrutinio nao esta aberto para votacao")
	ErrOutroEscrutinioAberto        = errors.New("ja existe outro escrutinio aberto nesta eleicao")
	ErrEscrutinioIndisponivel       = errors.New("escrutinio nao pode ser aberto neste estado")
	ErrCargoJaDecidido              = errors.New("cargo ja possui vencedor")
	ErrJaVotou                      = errors.New("eleitor ja votou neste escrutinio")
	ErrEleitorNaoElegivel           = errors.New("eleitor nao esta na lista de votantes")
	ErrSegundoEscrutinioNaoFechado  = errors.New("segundo escrutinio precisa estar fechado")
	ErrTerceiroEscrutinioJaPreparado = errors.New("terceiro escrutinio ja foi preparado ou iniciado")
	ErrSemFinalistas                = errors.New("nenhum finalista valido para o terceiro escrutinio")
	ErrSemCedulaAberta              = errors.New("nenhuma votacao aberta no momento")
)
