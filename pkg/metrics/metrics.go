// Package metrics 提供 Prometheus helper，包含风险引擎常用 counter/gauge/histogram
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/creditrisk/pkg/logger"
)

// Metrics 风险引擎指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal prometheus.Counter
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 蒙特卡洛模拟次数
	SimulationsTotal prometheus.Counter
	// 单次模拟耗时（秒）
	SimulationDuration prometheus.Histogram
	// 单次模拟 trial 数
	SimulationTrials prometheus.Histogram
	// 当前组合贷款数
	LoansActive prometheus.Gauge
	// 触发追加保证金的贷款数
	MarginCallsActive prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}),
		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}),
		SimulationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "simulations_total",
			Help:      "Total Monte Carlo simulations run",
		}),
		SimulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "simulation_duration_seconds",
			Help:      "Monte Carlo simulation duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SimulationTrials: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "simulation_trials",
			Help:      "Number of trials per simulation",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		}),
		LoansActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "loans_active",
			Help:      "Number of loans in the portfolio",
		}),
		MarginCallsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "creditrisk",
			Subsystem: serviceName,
			Name:      "margin_calls_active",
			Help:      "Number of loans at or beyond margin call",
		}),
	}
}

// ObserveDBQuery 记录一次数据库查询的计数与耗时
func (m *Metrics) ObserveDBQuery(seconds float64) {
	m.DBQueriesTotal.Inc()
	m.DBQueryDuration.Observe(seconds)
}

// SetPortfolioState 更新组合贷款数与保证金告警 gauge
func (m *Metrics) SetPortfolioState(loans, marginCalls int) {
	m.LoansActive.Set(float64(loans))
	m.MarginCallsActive.Set(float64(marginCalls))
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.SimulationsTotal,
		m.SimulationDuration,
		m.SimulationTrials,
		m.LoansActive,
		m.MarginCallsActive,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "failed to register metric", "error", err)
			return err
		}
	}

	return nil
}

// Handler 返回 Prometheus 指标的 HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
