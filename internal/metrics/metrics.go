// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、着信照合、ライブチャネルから利用する。
type MetricsCollector interface {
	RecordNodeCreated(nodeType string)
	RecordNodeDeleted(nodeType string)
	RecordEdgeCreated()
	RecordCallIdentified(outcome string)
	ObserveIdentifyDuration(seconds float64)
	SetLiveConnections(count int)
	RecordBroadcast()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	nodesCreated     *prometheus.CounterVec
	nodesDeleted     *prometheus.CounterVec
	edgesCreated     prometheus.Counter
	callsIdentified  *prometheus.CounterVec
	identifyDuration prometheus.Histogram
	liveConnections  prometheus.Gauge
	broadcasts       prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		nodesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purplecrm_nodes_created_total",
			Help: "作成されたノードのノード種別ごとの合計数",
		}, []string{"node_type"}),
		nodesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purplecrm_nodes_deleted_total",
			Help: "削除されたノードのノード種別ごとの合計数",
		}, []string{"node_type"}),
		edgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "purplecrm_edges_created_total",
			Help: "作成されたエッジの合計数",
		}),
		callsIdentified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purplecrm_calls_identified_total",
			Help: "着信番号照合の結果別合計数 (matched, unmatched, invalid, error)",
		}, []string{"outcome"}),
		identifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "purplecrm_identify_duration_seconds",
			Help:    "着信番号照合のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "purplecrm_live_connections",
			Help: "現在のWebSocket接続数",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "purplecrm_live_broadcasts_total",
			Help: "ライブチャネルへ配信されたイベントの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purplecrm_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.nodesCreated,
		c.nodesDeleted,
		c.edgesCreated,
		c.callsIdentified,
		c.identifyDuration,
		c.liveConnections,
		c.broadcasts,
		c.httpStatus,
	)

	return c
}

// RecordNodeCreated はノード作成を記録する。
func (c *Collector) RecordNodeCreated(nodeType string) {
	c.nodesCreated.WithLabelValues(nodeType).Inc()
}

// RecordNodeDeleted はノード削除を記録する。
func (c *Collector) RecordNodeDeleted(nodeType string) {
	c.nodesDeleted.WithLabelValues(nodeType).Inc()
}

// RecordEdgeCreated はエッジ作成を記録する。
func (c *Collector) RecordEdgeCreated() {
	c.edgesCreated.Inc()
}

// RecordCallIdentified は着信番号照合の結果を記録する。
func (c *Collector) RecordCallIdentified(outcome string) {
	c.callsIdentified.WithLabelValues(outcome).Inc()
}

// ObserveIdentifyDuration は着信番号照合のレイテンシを記録する。
func (c *Collector) ObserveIdentifyDuration(seconds float64) {
	c.identifyDuration.Observe(seconds)
}

// SetLiveConnections は現在のWebSocket接続数を記録する。
func (c *Collector) SetLiveConnections(count int) {
	c.liveConnections.Set(float64(count))
}

// RecordBroadcast はライブチャネルへの配信を記録する。
func (c *Collector) RecordBroadcast() {
	c.broadcasts.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
