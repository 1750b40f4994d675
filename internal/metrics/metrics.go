package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efiling_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
		},
		[]string{"method", "path"},
	)

	// APIRequestSize API 请求体大小（字节）
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efiling_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efiling_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)
)

// 审批指标
var (
	// ApprovalActionsTotal 审批动作处理总数
	ApprovalActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_approval_actions_total",
			Help: "审批动作处理总数",
		},
		[]string{"action", "status"}, // status: success, rejected_by_rule, conflict, error
	)

	// ApprovalsInitiatedTotal 发起审批总数
	ApprovalsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_approvals_initiated_total",
			Help: "发起审批总数",
		},
		[]string{"workflow_code", "status"},
	)

	// ApprovalsPendingGauge 当前进行中的审批数量
	ApprovalsPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "efiling_approvals_pending",
			Help: "当前进行中的审批数量",
		},
	)

	// ApprovalCompletionDuration 审批从发起到完结的耗时（秒）
	ApprovalCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "efiling_approval_completion_duration_seconds",
			Help:    "审批完结耗时分布",
			Buckets: []float64{60, 600, 3600, 14400, 86400, 259200, 604800},
		},
		[]string{"workflow_code", "final_status"},
	)
)

// 通知指标
var (
	// NotificationsTotal 通知发送总数
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_notifications_total",
			Help: "通知发送总数",
		},
		[]string{"channel", "type", "status"}, // status: sent, failed
	)

	// NotificationEnqueueTotal 通知任务入队总数
	NotificationEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_notification_enqueue_total",
			Help: "通知任务入队总数",
		},
		[]string{"status"}, // status: ok, error
	)
)

// 缓存指标
var (
	// CacheHitsTotal 缓存命中数
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_cache_hits_total",
			Help: "缓存命中总数",
		},
		[]string{"cache_type"},
	)

	// CacheMissesTotal 缓存未命中数
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "efiling_cache_misses_total",
			Help: "缓存未命中总数",
		},
		[]string{"cache_type"},
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "efiling_build_info",
			Help: "eFiling 构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}
