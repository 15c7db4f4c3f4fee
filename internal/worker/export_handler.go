package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"texResume/internal/errcode"
	"texResume/internal/latex"
	"texResume/internal/metrics"
	"texResume/internal/resume"
	"texResume/internal/storage"
	"texResume/internal/tasks"
)

// ResumeStore 是导出任务需要的简历读写能力，由 *resume.Service 实现。
type ResumeStore interface {
	GetResume(ctx context.Context, userID, resumeID uint) (resume.Resume, error)
	ResolveResumeBlocks(ctx context.Context, userID, resumeID uint) ([]resume.Block, error)
	SetExportResult(ctx context.Context, userID, resumeID uint, objectKey, status string) error
}

// ObjectUploader 上传导出文件，由 *storage.Client 实现。
type ObjectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

const texContentType = "application/x-tex"

// ExportTaskHandler 负责消费 latex:export 任务。
type ExportTaskHandler struct {
	store     ResumeStore
	uploader  ObjectUploader
	publisher Publisher
	renderer  *latex.Renderer
	logger    *slog.Logger
	newID     func() string
}

// NewExportTaskHandler 创建任务处理器。
func NewExportTaskHandler(store ResumeStore, uploader ObjectUploader, publisher Publisher, renderer *latex.Renderer, logger *slog.Logger) *ExportTaskHandler {
	return &ExportTaskHandler{
		store:     store,
		uploader:  uploader,
		publisher: publisher,
		renderer:  renderer,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.LatexExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
		slog.Uint64("resume_id", uint64(payload.ResumeID)),
	)
	log.Info("starting latex export task")

	r, err := h.store.GetResume(ctx, payload.UserID, payload.ResumeID)
	if err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			log.Warn("resume not found, skipping task")
			return nil
		}
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		if err := h.store.SetExportResult(ctx, payload.UserID, r.ID, r.ExportKey, resume.ExportFailed); err != nil {
			log.Error("mark export failed", slog.Any("error", err))
		}
		notify := ExportNotifyMessage{
			Status:        "error",
			ResumeID:      r.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := publishNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
			log.Error("publish export error notification failed", slog.Any("error", err))
		}
	}()

	blocks, err := h.store.ResolveResumeBlocks(ctx, payload.UserID, r.ID)
	if err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			log.Warn("resume deleted during export, skipping task")
			return nil
		}
		log.Error("resolve resume blocks failed", slog.Any("error", err))
		return err
	}

	doc, stats := h.renderer.RenderWithStats(blocks)
	metrics.ObserveRender("worker", stats.Skipped)

	objectName := storage.ExportObjectKey(payload.UserID, h.newID())
	data := []byte(doc)
	if err := h.uploader.UploadFile(ctx, objectName, bytes.NewReader(data), int64(len(data)), texContentType); err != nil {
		log.Error("upload tex to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.store.SetExportResult(ctx, payload.UserID, r.ID, objectName, resume.ExportCompleted); err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			log.Warn("resume deleted after upload, skipping task", slog.String("object_key", objectName))
			return nil
		}
		log.Error("update resume export result failed", slog.Any("error", err))
		return err
	}

	notify := ExportNotifyMessage{
		Status:        "completed",
		ResumeID:      r.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if missing := missingMembers(r.MemberBlockIDs, blocks); len(missing) > 0 {
		notify.ErrorCode = errcode.ResourceMissing
		notify.ErrorMessage = "部分块已被删除，已自动跳过并继续导出"
		notify.MissingIDs = missing
		log.Warn("resume exported with missing blocks", slog.Any("missing_ids", missing))
	}
	if err := publishNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("latex export task completed", slog.String("object_key", objectName), slog.Int("blocks", stats.Rendered))
	return nil
}

// missingMembers 返回成员列表中未能解析到块的 id，保持原顺序。
func missingMembers(memberIDs []string, resolved []resume.Block) []string {
	found := make(map[string]struct{}, len(resolved))
	for _, b := range resolved {
		found[b.StorageID] = struct{}{}
	}
	var missing []string
	for _, id := range memberIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
