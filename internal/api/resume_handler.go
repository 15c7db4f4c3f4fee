package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"texResume/internal/api/middleware"
	"texResume/internal/latex"
	"texResume/internal/metrics"
	"texResume/internal/resume"
	"texResume/internal/tasks"
)

// TaskEnqueuer 投递异步任务，*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExportStorage 是下载链接与导出清理需要的对象存储能力，*storage.Client 满足该接口。
type ExportStorage interface {
	PresignedDownloadURL(ctx context.Context, objectKey, filename string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

const downloadLinkTTL = 5 * time.Minute

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	service     *resume.Service
	renderer    *latex.Renderer
	asynqClient TaskEnqueuer
	storage     ExportStorage
	logger      *slog.Logger
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(service *resume.Service, renderer *latex.Renderer, asynqClient TaskEnqueuer, storageClient ExportStorage, logger *slog.Logger) *ResumeHandler {
	return &ResumeHandler{
		service:     service,
		renderer:    renderer,
		asynqClient: asynqClient,
		storage:     storageClient,
		logger:      logger,
	}
}

var errInvalidResumeID = errors.New("invalid resume id")

type resumeRequest struct {
	Name           string   `json:"name" binding:"required"`
	MemberBlockIDs []string `json:"member_block_ids"`
}

type resumeResponse struct {
	ID             uint      `json:"id"`
	Name           string    `json:"name"`
	MemberBlockIDs []string  `json:"member_block_ids"`
	ExportStatus   string    `json:"export_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newResumeResponse(r resume.Resume) resumeResponse {
	ids := r.MemberBlockIDs
	if ids == nil {
		ids = []string{}
	}
	return resumeResponse{
		ID:             r.ID,
		Name:           r.Name,
		MemberBlockIDs: ids,
		ExportStatus:   r.ExportStatus,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ListResumes 列出用户全部简历。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumes, err := h.service.ListResumes(c.Request.Context(), userID)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}

	items := make([]resumeResponse, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, newResumeResponse(r))
	}
	c.JSON(http.StatusOK, items)
}

// CreateResume 以给定的有序成员列表创建简历。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	r, err := h.service.CreateResume(c.Request.Context(), userID, req.Name, req.MemberBlockIDs)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusCreated, newResumeResponse(r))
}

// GetResume 返回指定 ID 的简历。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}

	r, err := h.service.GetResume(c.Request.Context(), userID, resumeID)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(r))
}

// UpdateResume 覆盖简历名称与成员列表。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}

	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	r, err := h.service.ReplaceResumeMembership(c.Request.Context(), userID, resumeID, req.Name, req.MemberBlockIDs)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(r))
}

// DeleteResume 删除简历，块集合不受影响；已导出的文件一并清理。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	r, err := h.service.GetResume(ctx, userID, resumeID)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	if err := h.service.DeleteResume(ctx, userID, resumeID); err != nil {
		domainError(c, logger, err)
		return
	}
	if r.ExportKey != "" {
		if err := h.storage.DeleteObject(ctx, r.ExportKey); err != nil {
			logger.Warn("delete export object failed", slog.String("object_key", r.ExportKey), slog.Any("error", err))
		}
	}
	c.Status(http.StatusNoContent)
}

// ResumeBlocks 按成员顺序返回简历引用的块，已删除的成员被跳过。
func (h *ResumeHandler) ResumeBlocks(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}

	blocks, err := h.service.ResolveResumeBlocks(c.Request.Context(), userID, resumeID)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, blockListResponse{Blocks: blocks})
}

// AppendBlockToResume 新建一个块并追加到简历成员列表末尾。
func (h *ResumeHandler) AppendBlockToResume(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}
	logger := h.loggerFromContext(c)

	var block resume.Block
	if err := c.ShouldBindJSON(&block); err != nil {
		bindError(c, logger, err)
		return
	}

	stored, err := h.service.AppendBlockToResume(c.Request.Context(), userID, resumeID, block)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// ResumeLatex 同步渲染简历并以 .tex 文本返回。
func (h *ResumeHandler) ResumeLatex(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}
	h.writeLatex(c, userID, resumeID)
}

func (h *ResumeHandler) writeLatex(c *gin.Context, userID, resumeID uint) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	r, err := h.service.GetResume(ctx, userID, resumeID)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	blocks, err := h.service.ResolveResumeBlocks(ctx, userID, resumeID)
	if err != nil {
		domainError(c, logger, err)
		return
	}

	doc, stats := h.renderer.RenderWithStats(blocks)
	metrics.ObserveRender("http", stats.Skipped)

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", texFilename(r)))
	c.Data(http.StatusOK, texContentType, []byte(doc))
}

// ExportResume 将导出任务入队并立即返回 202。
func (h *ResumeHandler) ExportResume(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	r, err := h.service.GetResume(ctx, userID, resumeID)
	if err != nil {
		domainError(c, logger, err)
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewLatexExportTask(userID, r.ID, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	info, err := h.asynqClient.Enqueue(task)
	if err != nil {
		logger.Error("enqueue export task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue export")
		return
	}

	if err := h.service.SetExportResult(ctx, userID, r.ID, r.ExportKey, resume.ExportPending); err != nil {
		logger.Warn("mark export pending failed", slog.Any("error", err))
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "export request accepted",
		"task_id": info.ID,
	})
}

// GetDownloadLink 生成最近一次导出文件的预签名下载链接。
func (h *ResumeHandler) GetDownloadLink(c *gin.Context) {
	userID, resumeID, ok := h.resumeParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)

	r, err := h.service.GetResume(ctx, userID, resumeID)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	if r.ExportKey == "" {
		Conflict(c, "export not ready")
		return
	}

	signedURL, err := h.storage.PresignedDownloadURL(ctx, r.ExportKey, texFilename(r), downloadLinkTTL)
	if err != nil {
		logger.Error("generate download link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// resumeParams 解析 userID 与路径中的简历 ID，失败时已写入响应。
func (h *ResumeHandler) resumeParams(c *gin.Context) (uint, uint, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, 0, false
	}
	resumeID, err := parseResumeID(c.Param("id"))
	if err != nil {
		BadRequest(c, err.Error())
		return 0, 0, false
	}
	return userID, resumeID, true
}

func (h *ResumeHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return requestLogger(c, h.logger)
}

func parseResumeID(idParam string) (uint, error) {
	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidResumeID
	}
	return uint(id), nil
}

func texFilename(r resume.Resume) string {
	return fmt.Sprintf("resume-%d.tex", r.ID)
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
