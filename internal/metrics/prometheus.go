package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bn_basis_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	cyclesOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "open_cycles_total",
		Help:      "Total number of completed position-opening cycles.",
	})
	cyclesClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "close_cycles_total",
		Help:      "Total number of completed position-closing cycles.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	retriesExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "retries_exhausted_total",
		Help:      "Total number of operations that ran out of retry attempts.",
	})
	alertsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "alerts_sent_total",
		Help:      "Total number of terminal-failure alerts sent.",
	})

	registry.MustRegister(cyclesOpened, cyclesClosed, ordersPlaced, ordersFailed, retriesExhausted, alertsSent)

	m := &Metrics{
		CyclesOpened:     promCounter{cyclesOpened},
		CyclesClosed:     promCounter{cyclesClosed},
		OrdersPlaced:     promCounter{ordersPlaced},
		OrdersFailed:     promCounter{ordersFailed},
		RetriesExhausted: promCounter{retriesExhausted},
		AlertsSent:       promCounter{alertsSent},
	}

	return &Prometheus{
		Metrics:  m,
		registry: registry,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
