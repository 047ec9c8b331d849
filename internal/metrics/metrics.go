package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xtrntr/poolshare/internal/exchange"
	"github.com/xtrntr/poolshare/internal/models"
)

// Metrics exports engine activity to Prometheus. It implements exchange.Observer.
type Metrics struct {
	registry      *prometheus.Registry
	orders        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	trades        *prometheus.CounterVec
	tradedAmount  *prometheus.CounterVec
	cancellations *prometheus.CounterVec
}

var _ exchange.Observer = (*Metrics)(nil)

// New registers the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolshare",
			Name:      "orders_total",
			Help:      "Orders admitted to the book.",
		}, []string{"pool", "side", "type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolshare",
			Name:      "order_rejections_total",
			Help:      "Orders rejected at admission, by error kind.",
		}, []string{"kind"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolshare",
			Name:      "trades_total",
			Help:      "Trades executed.",
		}, []string{"pool"}),
		tradedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolshare",
			Name:      "traded_amount_total",
			Help:      "Pool shares exchanged.",
		}, []string{"pool"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolshare",
			Name:      "cancellations_total",
			Help:      "Orders withdrawn by their owner.",
		}, []string{"pool"}),
	}
	m.registry.MustRegister(m.orders, m.rejections, m.trades, m.tradedAmount, m.cancellations)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OrderAdmitted(o models.Order) {
	m.orders.WithLabelValues(o.PoolID, string(o.Side), string(o.Type)).Inc()
}

func (m *Metrics) OrderRejected(err error) {
	m.rejections.WithLabelValues(kindLabel(err)).Inc()
}

func (m *Metrics) OrderCancelled(o models.Order) {
	m.cancellations.WithLabelValues(o.PoolID).Inc()
}

func (m *Metrics) TradeExecuted(t models.Trade) {
	m.trades.WithLabelValues(t.PoolID).Inc()
	m.tradedAmount.WithLabelValues(t.PoolID).Add(t.Amount.InexactFloat64())
}

func kindLabel(err error) string {
	switch {
	case errors.Is(err, exchange.ErrValidation):
		return "validation"
	case errors.Is(err, exchange.ErrNotFound):
		return "not_found"
	case errors.Is(err, exchange.ErrAuthorization):
		return "authorization"
	case errors.Is(err, exchange.ErrState):
		return "state"
	default:
		return "other"
	}
}
