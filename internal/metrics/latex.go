package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "latex",
			Name:      "documents_rendered_total",
			Help:      "渲染完成的 LaTeX 文档总数。",
		},
		[]string{"source"},
	)

	blocksSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "latex",
			Name:      "blocks_skipped_total",
			Help:      "渲染时因缺少类型或重复 Header 被跳过的块数量。",
		},
		[]string{"source"},
	)
)

// ObserveRender 记录一次文档渲染。source 区分调用方，例如 http、worker。
func ObserveRender(source string, skipped int) {
	documentsRenderedTotal.WithLabelValues(source).Inc()
	if skipped > 0 {
		blocksSkippedTotal.WithLabelValues(source).Add(float64(skipped))
	}
}
