package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"texResume/internal/database"
)

// Resume 是用户块集合上的一个有序命名视图。
type Resume struct {
	ID             uint
	Name           string
	MemberBlockIDs []string
	ExportKey      string
	ExportStatus   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// 导出状态。
const (
	ExportPending   = "pending"
	ExportCompleted = "completed"
	ExportFailed    = "failed"
)

// BlockRef 定位一个块：优先使用 StorageID，尚未持久化的流程可使用 ClientID。
type BlockRef struct {
	StorageID string
	ClientID  string
}

func (r BlockRef) String() string {
	if r.StorageID != "" {
		return "storage_id=" + r.StorageID
	}
	return "client_id=" + r.ClientID
}

// Service 以单个用户为范围读写块集合与简历，每次操作都直接读写数据库。
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	newID  func() string
}

// NewService 构造 Service。logger 为 nil 时使用 slog.Default()。
func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger, newID: uuid.NewString}
}

// transaction 执行 fn，非领域错误统一包装为 ErrStorageUnavailable；出错时事务整体回滚。
func (s *Service) transaction(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil || isDomainError(err) {
		return err
	}
	return storageErr(op, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrDuplicateClientID,
		ErrNotFound,
		ErrInvalidSectionKind,
		ErrMalformedBlock,
		ErrInvalidResume,
		ErrCorruptBlock,
		ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// blockFromModel 解码存储行。解码失败返回 ErrCorruptBlock，不保留解码错误的哨兵。
func blockFromModel(m database.Block) (Block, error) {
	kind, err := ParseSectionKind(m.SectionKind)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %s: %v", ErrCorruptBlock, m.StorageID, err)
	}
	fields, err := DecodeFields(kind, json.RawMessage(m.Fields))
	if err != nil {
		return Block{}, fmt.Errorf("%w: %s: %v", ErrCorruptBlock, m.StorageID, err)
	}
	return Block{
		ClientID:  m.ClientID,
		StorageID: m.StorageID,
		Kind:      kind,
		Order:     m.SortOrder,
		Fields:    fields,
	}, nil
}

// blocksFromModels 解码一组存储行，无法解码的行记录日志后跳过。
func (s *Service) blocksFromModels(models []database.Block) []Block {
	blocks := make([]Block, 0, len(models))
	for _, m := range models {
		b, err := blockFromModel(m)
		if err != nil {
			s.logger.Warn("skipping corrupt block",
				slog.Uint64("user_id", uint64(m.UserID)),
				slog.Any("error", err),
			)
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func encodeFields(fields Fields) (datatypes.JSON, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func resumeFromModel(m database.Resume) Resume {
	ids := make([]string, len(m.MemberBlockIDs))
	copy(ids, m.MemberBlockIDs)
	return Resume{
		ID:             m.ID,
		Name:           m.Name,
		MemberBlockIDs: ids,
		ExportKey:      m.ExportKey,
		ExportStatus:   m.ExportStatus,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// normalizeIDs 去掉空白与重复项，保留首次出现的位置。
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
