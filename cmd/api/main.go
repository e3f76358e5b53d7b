// Executável principal da API: carrega a configuração, inicializa dependências e sobe o servidor HTTP.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelojr/eleicao-diretoria/internal/app/eleicao"
	"github.com/marcelojr/eleicao-diretoria/internal/app/httpapi"
	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/antifraude"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/auth"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/clock"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/config"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/health"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/ids"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/logger"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/migrations"
	postgresstorage "github.com/marcelojr/eleicao-diretoria/internal/platform/storage/postgres"
	redisstorage "github.com/marcelojr/eleicao-diretoria/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuracao invalida", "err", err)
	}

	// Mantemos a conexão compartilhada em todo o ciclo para reaproveitar pool e checar readiness.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("falha ao conectar no postgres", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("falha ao resgatar sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		// Rodamos migrations automáticas apenas se habilitado para evitar surpresas em produção.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// Redis centraliza fila de auditoria, comparecimento, notificações e antifraude.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("falha ao conectar no redis", "err", err)
	}
	defer redisClient.Close()

	eleicoes := postgresstorage.NewEleicaoRepository(db)
	eventos := postgresstorage.NewEventoRepository(db)
	fila := redisstorage.NewFila(redisClient, cfg.AuditoriaKeyPrefix)
	contador := redisstorage.NewContador(redisClient, cfg.ContadorKeyPrefix)
	notificador := redisstorage.NewNotificador(redisClient, cfg.NotificadorKeyPrefix)
	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	var antifraudeSvc domain.Antifraude = antifraude.NewNoop()
	if cfg.RateLimitEnabled {
		window := time.Duration(cfg.RateLimitWindowSeconds) * time.Second
		antifraudeSvc = antifraude.NewRedisRateLimiter(redisClient, cfg.RateLimitMaxActions, window, cfg.RateLimitKeyPrefix)
	}

	emissor, err := auth.NewEmissor(cfg.JWTSegredo, time.Duration(cfg.JWTValidadeMinutos)*time.Minute)
	if err != nil {
		logger.Fatal("falha ao configurar autenticacao", "err", err)
	}

	// O coordenador agrega repositório, fila, contador, notificador e antifraude.
	servico := eleicao.NewService(
		eleicoes,
		fila,
		contador,
		notificador,
		antifraudeSvc,
		clockSystem,
		idGen,
		cfg.TxMaxTentativas,
	)

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	// HTTP expõe API, health check e métricas que o Prometheus coleta.
	api := httpapi.New(servico, eventos, emissor, cfg.AdminChaveAcesso, logger.L())
	api.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("api ouvindo", "addr", cfg.HTTPAddress)
	if err := http.ListenAndServe(cfg.HTTPAddress, mux); err != nil {
		logger.Fatal("erro no servidor", "err", err)
	}
}
