package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeLatexExport = "latex:export"
)

// ExportMaxRetry 是导出任务的最大重试次数。
const ExportMaxRetry = 5

// LatexExportPayload 描述导出简历 .tex 文件所需的最小信息。
type LatexExportPayload struct {
	UserID        uint   `json:"user_id"`
	ResumeID      uint   `json:"resume_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewLatexExportTask 构造一个新的简历导出任务。
func NewLatexExportTask(userID, resumeID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(LatexExportPayload{
		UserID:        userID,
		ResumeID:      resumeID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLatexExport, payload, asynq.MaxRetry(ExportMaxRetry)), nil
}
