// Package metrics exposes Prometheus collectors updated by the trading loop:
//   - kis_bot_ticks_total{outcome}          ticks by outcome
//   - kis_bot_orders_total{side,result}     order submissions (filled|rejected|error)
//   - kis_bot_token_exchanges_total{result} credential exchanges (ok|error)
//   - kis_bot_last_price                    last quoted price of the tracked symbol
//   - kis_bot_running                       1 while the bot is RUNNING
//   - kis_bot_position_long                 1 while the believed position is LONG
//
// Collectors are registered in init() and served at /metrics by the API server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_bot_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"outcome"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_bot_orders_total",
			Help: "Orders submitted to the brokerage",
		},
		[]string{"side", "result"},
	)

	mtxTokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_bot_token_exchanges_total",
			Help: "Credential exchanges against the token endpoint",
		},
		[]string{"result"},
	)

	mtxLastPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kis_bot_last_price",
			Help: "Last quoted price of the tracked symbol",
		},
	)

	mtxRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kis_bot_running",
			Help: "1 while the bot is running",
		},
	)

	// believed position, never reconciled with the broker
	mtxPositionLong = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kis_bot_position_long",
			Help: "1 while the believed position is LONG",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTicks, mtxOrders, mtxTokenExchanges)
	prometheus.MustRegister(mtxLastPrice, mtxRunning, mtxPositionLong)
}

func IncTick(outcome string) { mtxTicks.WithLabelValues(outcome).Inc() }

func IncOrder(side, result string) { mtxOrders.WithLabelValues(side, result).Inc() }

func IncTokenExchange(result string) { mtxTokenExchanges.WithLabelValues(result).Inc() }

func SetLastPrice(price int64) { mtxLastPrice.Set(float64(price)) }

func SetRunning(running bool) { mtxRunning.Set(boolToFloat(running)) }

func SetPositionLong(long bool) { mtxPositionLong.Set(boolToFloat(long)) }

// Handler отдает метрики в текстовом формате Prometheus
func Handler() http.Handler { return promhttp.Handler() }

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
