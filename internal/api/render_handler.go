package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"texResume/internal/latex"
	"texResume/internal/metrics"
	"texResume/internal/resume"
)

const texContentType = "application/x-tex; charset=utf-8"

// RenderHandler 渲染请求体中的任意块列表，不读写数据库。
type RenderHandler struct {
	renderer *latex.Renderer
	logger   *slog.Logger
}

// NewRenderHandler 构造 RenderHandler。
func NewRenderHandler(renderer *latex.Renderer, logger *slog.Logger) *RenderHandler {
	return &RenderHandler{renderer: renderer, logger: logger}
}

type renderRequest struct {
	Blocks []resume.Block `json:"blocks"`
}

// Render 返回块列表对应的完整 .tex 文档。
func (h *RenderHandler) Render(c *gin.Context) {
	logger := requestLogger(c, h.logger)

	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, err)
		return
	}

	doc, stats := h.renderer.RenderWithStats(req.Blocks)
	metrics.ObserveRender("http", stats.Skipped)
	if stats.Skipped > 0 {
		logger.Info("render skipped blocks", slog.Int("skipped", stats.Skipped))
	}
	c.Data(http.StatusOK, texContentType, []byte(doc))
}
