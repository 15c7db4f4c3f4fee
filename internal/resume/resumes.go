package resume

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"texResume/internal/database"
)

func validateResumeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidResume)
	}
	return trimmed, nil
}

func lockResume(tx *gorm.DB, userID, resumeID uint) (database.Resume, error) {
	var model database.Resume
	if err := forUpdate(tx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Resume{}, fmt.Errorf("%w: resume %d", ErrNotFound, resumeID)
		}
		return database.Resume{}, err
	}
	return model, nil
}

// CreateResume 创建简历视图，initialIDs 可为空。
func (s *Service) CreateResume(ctx context.Context, userID uint, name string, initialIDs []string) (Resume, error) {
	name, err := validateResumeName(name)
	if err != nil {
		return Resume{}, err
	}

	model := database.Resume{
		Name:           name,
		MemberBlockIDs: datatypes.JSONSlice[string](normalizeIDs(initialIDs)),
		UserID:         userID,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return Resume{}, storageErr("create resume", err)
	}
	return resumeFromModel(model), nil
}

// ReplaceResumeMembership 整体替换简历名称与成员列表（最后写入者为准，不做合并）。
func (s *Service) ReplaceResumeMembership(ctx context.Context, userID, resumeID uint, name string, orderedIDs []string) (Resume, error) {
	name, err := validateResumeName(name)
	if err != nil {
		return Resume{}, err
	}

	var updated Resume
	err = s.transaction(ctx, "replace resume membership", func(tx *gorm.DB) error {
		model, err := lockResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		ids := datatypes.JSONSlice[string](normalizeIDs(orderedIDs))
		if err := tx.Model(&model).Updates(map[string]any{
			"name":             name,
			"member_block_ids": ids,
		}).Error; err != nil {
			return err
		}
		if err := tx.First(&model, model.ID).Error; err != nil {
			return err
		}
		updated = resumeFromModel(model)
		return nil
	})
	if err != nil {
		return Resume{}, err
	}
	return updated, nil
}

// GetResume 读取单个简历。
func (s *Service) GetResume(ctx context.Context, userID, resumeID uint) (Resume, error) {
	var model database.Resume
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Resume{}, fmt.Errorf("%w: resume %d", ErrNotFound, resumeID)
		}
		return Resume{}, storageErr("get resume", err)
	}
	return resumeFromModel(model), nil
}

// ListResumes 按创建顺序列出用户全部简历。
func (s *Service) ListResumes(ctx context.Context, userID uint) ([]Resume, error) {
	var models []database.Resume
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, storageErr("list resumes", err)
	}
	resumes := make([]Resume, 0, len(models))
	for _, m := range models {
		resumes = append(resumes, resumeFromModel(m))
	}
	return resumes, nil
}

// DeleteResume 删除简历，不会删除其引用的块。
func (s *Service) DeleteResume(ctx context.Context, userID, resumeID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		Delete(&database.Resume{})
	if result.Error != nil {
		return storageErr("delete resume", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: resume %d", ErrNotFound, resumeID)
	}
	return nil
}

// ResolveResumeBlocks 按成员列表顺序返回简历引用的块，悬空引用被静默跳过，无法解码的块记录日志后跳过。
func (s *Service) ResolveResumeBlocks(ctx context.Context, userID, resumeID uint) ([]Block, error) {
	var blocks []Block
	err := s.transaction(ctx, "resolve resume blocks", func(tx *gorm.DB) error {
		var model database.Resume
		if err := tx.Where("id = ? AND user_id = ?", resumeID, userID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: resume %d", ErrNotFound, resumeID)
			}
			return err
		}

		blocks = make([]Block, 0, len(model.MemberBlockIDs))
		if len(model.MemberBlockIDs) == 0 {
			return nil
		}

		var models []database.Block
		if err := tx.Where("user_id = ? AND storage_id IN ?", userID, []string(model.MemberBlockIDs)).
			Find(&models).Error; err != nil {
			return err
		}
		byID := make(map[string]database.Block, len(models))
		for _, m := range models {
			byID[m.StorageID] = m
		}
		ordered := make([]database.Block, 0, len(models))
		for _, id := range model.MemberBlockIDs {
			if m, ok := byID[id]; ok {
				ordered = append(ordered, m)
			}
		}
		blocks = s.blocksFromModels(ordered)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// AppendBlockToResume 保存新块并在同一事务中将其追加到简历成员列表末尾。
func (s *Service) AppendBlockToResume(ctx context.Context, userID, resumeID uint, b Block) (Block, error) {
	var stored Block
	err := s.transaction(ctx, "append block to resume", func(tx *gorm.DB) error {
		model, err := lockResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		stored, err = s.insertBlock(tx, userID, b)
		if err != nil {
			return err
		}
		members := append([]string(nil), model.MemberBlockIDs...)
		members = normalizeIDs(append(members, stored.StorageID))
		return tx.Model(&model).
			Update("member_block_ids", datatypes.JSONSlice[string](members)).Error
	})
	if err != nil {
		return Block{}, err
	}
	return stored, nil
}

// SetExportResult 记录导出任务生成的对象键与状态。
func (s *Service) SetExportResult(ctx context.Context, userID, resumeID uint, objectKey, status string) error {
	result := s.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("id = ? AND user_id = ?", resumeID, userID).
		Updates(map[string]any{
			"export_key":    objectKey,
			"export_status": status,
		})
	if result.Error != nil {
		return storageErr("set export result", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: resume %d", ErrNotFound, resumeID)
	}
	return nil
}
