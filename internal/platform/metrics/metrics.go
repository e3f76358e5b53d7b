package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eleicao_votos_total",
		Help: "Total de submissoes de voto por desfecho",
	}, []string{"status"})

	conflitosTransacaoTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eleicao_conflitos_transacao_total",
		Help: "Colisoes de versao detectadas no compare-and-swap",
	})

	escrutiniosFechadosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eleicao_escrutinios_fechados_total",
		Help: "Escrutinios fechados por resultado (vencedor ou avanca)",
	}, []string{"resultado"})

	eventosAuditoriaTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eleicao_eventos_auditoria_total",
		Help: "Eventos de auditoria persistidos pelo worker",
	})

	transacaoDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eleicao_transacao_duration_seconds",
		Help:    "Duracao das transacoes do coordenador (incluindo re-tentativas)",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveVoto(status string) {
	votoRequestsTotal.WithLabelValues(status).Inc()
}

func IncConflitoTransacao() {
	conflitosTransacaoTotal.Inc()
}

func IncEscrutinioFechado(resultado string) {
	escrutiniosFechadosTotal.WithLabelValues(resultado).Inc()
}

func IncEventoAuditoria() {
	eventosAuditoriaTotal.Inc()
}

func ObserveTransacaoDuration(seconds float64) {
	transacaoDuration.Observe(seconds)
}
