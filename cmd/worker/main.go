// Worker assíncrono que consome eventos de auditoria da fila, persiste no Postgres e expõe métricas.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelojr/eleicao-diretoria/internal/app/worker"
	"github.com/marcelojr/eleicao-diretoria/internal/domain"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/clock"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/config"
	"github.com/marcelojr/eleicao-diretoria/internal/platform/health"
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

	// Worker usa a mesma conexão GORM da API para compartilhar migrations e modelos.
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
		// Evitamos divergência de schema rodando a mesma migração condicional da API.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// Redis é obrigatório aqui porque a fila de auditoria vive sobre a mesma instância.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("falha ao conectar no redis", "err", err)
	}
	defer redisClient.Close()

	fila := redisstorage.NewFila(redisClient, cfg.AuditoriaKeyPrefix)
	clockSystem := clock.NewSystemClock()
	checker := health.NewChecker(sqlDB, redisClient)

	if cfg.WorkerMetricsAddress != "" {
		go func() {
			// Metrics expõe observabilidade enquanto a goroutine principal consome a fila.
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
			logger.Info("worker metrics ouvindo", "addr", cfg.WorkerMetricsAddress)
			if err := http.ListenAndServe(cfg.WorkerMetricsAddress, mux); err != nil {
				logger.Error("erro no servidor de metrics do worker", "err", err)
			}
		}()
	}

	eventoRepo := postgresstorage.NewEventoRepository(db)
	processor := worker.NewAuditProcessor(eventoRepo, clockSystem)

	logger.Info("worker iniciado, aguardando eventos de auditoria")
	err = fila.ConsumirEventos(ctx, func(ctx context.Context, ev domain.EventoAuditoria) error {
		// Processamos evento a evento para manter a semântica de uma fila simples.
		if err := processor.Process(ctx, ev); err != nil {
			logger.Error("erro ao processar evento", "evento", ev.ID, "err", err)
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatal("worker finalizado com erro", "err", err)
	}

	logger.Info("worker finalizado")
}
