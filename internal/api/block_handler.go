package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"texResume/internal/resume"
)

// BlockHandler 负责用户块集合（画布）相关的 API 请求。
type BlockHandler struct {
	service *resume.Service
	logger  *slog.Logger
}

// NewBlockHandler 构造 BlockHandler。
func NewBlockHandler(service *resume.Service, logger *slog.Logger) *BlockHandler {
	return &BlockHandler{service: service, logger: logger}
}

type blockListResponse struct {
	Blocks []resume.Block `json:"blocks"`
}

type reorderRequest struct {
	StorageIDs []string `json:"storage_ids" binding:"required"`
}

type syncRequest struct {
	Blocks []resume.SyncItem `json:"blocks"`
}

// ListBlocks 返回用户全部块，按 Order 排序。
func (h *BlockHandler) ListBlocks(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	blocks, err := h.service.ListBlocks(c.Request.Context(), userID)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, blockListResponse{Blocks: blocks})
}

// AppendBlock 新增一个块，由服务端分配 storage_id。
func (h *BlockHandler) AppendBlock(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	logger := h.loggerFromContext(c)

	var block resume.Block
	if err := c.ShouldBindJSON(&block); err != nil {
		bindError(c, logger, err)
		return
	}

	stored, err := h.service.AppendBlock(c.Request.Context(), userID, block)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	logger.Info("block appended",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("storage_id", stored.StorageID),
		slog.String("section_kind", string(stored.Kind)),
	)
	c.JSON(http.StatusCreated, stored)
}

// UpdateBlock 将请求体中的字段合并到块上，未出现的字段保持不变。
// 默认按 storage_id 定位；?ref=client 时路径参数视为 client_id。
func (h *BlockHandler) UpdateBlock(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	logger := h.loggerFromContext(c)

	var patch resume.FieldPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ref := resume.BlockRef{StorageID: c.Param("id")}
	if c.Query("ref") == "client" {
		ref = resume.BlockRef{ClientID: c.Param("id")}
	}

	updated, err := h.service.UpdateBlockFields(c.Request.Context(), userID, ref, patch)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteBlock 删除块，并从用户所有简历的成员列表中移除它。
func (h *BlockHandler) DeleteBlock(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	logger := h.loggerFromContext(c)

	storageID := c.Param("id")
	if err := h.service.DeleteBlock(c.Request.Context(), userID, storageID); err != nil {
		domainError(c, logger, err)
		return
	}
	logger.Info("block deleted", slog.Uint64("user_id", uint64(userID)), slog.String("storage_id", storageID))
	c.Status(http.StatusNoContent)
}

// ReorderBlocks 按给定顺序重排块。
func (h *BlockHandler) ReorderBlocks(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	blocks, err := h.service.ReorderBlocks(c.Request.Context(), userID, req.StorageIDs)
	if err != nil {
		domainError(c, h.loggerFromContext(c), err)
		return
	}
	c.JSON(http.StatusOK, blockListResponse{Blocks: blocks})
}

// SyncCanvas 保存整块画布，按 client_id 与已存储的块对齐；已有块只覆盖请求中出现的字段。
func (h *BlockHandler) SyncCanvas(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	logger := h.loggerFromContext(c)

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, logger, err)
		return
	}

	blocks, err := h.service.SyncCanvas(c.Request.Context(), userID, req.Blocks)
	if err != nil {
		domainError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, blockListResponse{Blocks: blocks})
}

// Library 返回每种类型的空白模板块。
func (h *BlockHandler) Library(c *gin.Context) {
	c.JSON(http.StatusOK, blockListResponse{Blocks: resume.Library()})
}

func (h *BlockHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return requestLogger(c, h.logger)
}
