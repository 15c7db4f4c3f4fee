package resume

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"texResume/internal/database"
)

// AppendBlock 保存一个新块并分配 StorageID。
// 同一用户下 ClientID 已存在时返回 ErrDuplicateClientID，且不写入任何记录。
func (s *Service) AppendBlock(ctx context.Context, userID uint, b Block) (Block, error) {
	var stored Block
	err := s.transaction(ctx, "append block", func(tx *gorm.DB) error {
		var err error
		stored, err = s.insertBlock(tx, userID, b)
		return err
	})
	if err != nil {
		return Block{}, err
	}
	return stored, nil
}

func (s *Service) insertBlock(tx *gorm.DB, userID uint, b Block) (Block, error) {
	if err := b.Validate(); err != nil {
		return Block{}, err
	}
	if b.StorageID != "" {
		return Block{}, fmt.Errorf("%w: storage id is assigned by the server", ErrMalformedBlock)
	}
	if b.Fields == nil {
		fields, err := NewFields(b.Kind)
		if err != nil {
			return Block{}, err
		}
		b.Fields = fields
	}

	var count int64
	if err := tx.Model(&database.Block{}).
		Where("user_id = ? AND client_id = ?", userID, b.ClientID).
		Count(&count).Error; err != nil {
		return Block{}, err
	}
	if count > 0 {
		return Block{}, fmt.Errorf("%w: %q", ErrDuplicateClientID, b.ClientID)
	}

	fields, err := encodeFields(b.Fields)
	if err != nil {
		return Block{}, err
	}
	model := database.Block{
		StorageID:   s.newID(),
		UserID:      userID,
		ClientID:    b.ClientID,
		SectionKind: string(b.Kind),
		SortOrder:   b.Order,
		Fields:      fields,
	}
	if err := tx.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Block{}, fmt.Errorf("%w: %q", ErrDuplicateClientID, b.ClientID)
		}
		return Block{}, err
	}

	b.StorageID = model.StorageID
	return b, nil
}

// UpdateBlockFields 对块做字段级合并：补丁中出现的字段被覆盖，其余字段保持不变。
// 同一块的并发更新以最后写入者为准。
func (s *Service) UpdateBlockFields(ctx context.Context, userID uint, ref BlockRef, patch FieldPatch) (Block, error) {
	if ref.StorageID == "" && ref.ClientID == "" {
		return Block{}, fmt.Errorf("%w: block reference is empty", ErrMalformedBlock)
	}

	var updated Block
	err := s.transaction(ctx, "update block", func(tx *gorm.DB) error {
		query := forUpdate(tx).Where("user_id = ?", userID)
		if ref.StorageID != "" {
			query = query.Where("storage_id = ?", ref.StorageID)
		} else {
			query = query.Where("client_id = ?", ref.ClientID)
		}

		var model database.Block
		if err := query.First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: block %s", ErrNotFound, ref)
			}
			return err
		}

		current, err := blockFromModel(model)
		if err != nil {
			return err
		}
		merged, err := patch.Apply(current.Fields)
		if err != nil {
			return err
		}
		encoded, err := encodeFields(merged)
		if err != nil {
			return err
		}
		if err := tx.Model(&model).Update("fields", encoded).Error; err != nil {
			return err
		}

		current.Fields = merged
		updated = current
		return nil
	})
	if err != nil {
		return Block{}, err
	}
	return updated, nil
}

// DeleteBlock 删除块，并在同一事务内把它从所有引用它的简历中移除。
func (s *Service) DeleteBlock(ctx context.Context, userID uint, storageID string) error {
	return s.transaction(ctx, "delete block", func(tx *gorm.DB) error {
		var model database.Block
		if err := forUpdate(tx).
			Where("user_id = ? AND storage_id = ?", userID, storageID).
			First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: block storage_id=%s", ErrNotFound, storageID)
			}
			return err
		}

		if err := tx.Delete(&database.Block{}, model.ID).Error; err != nil {
			return err
		}

		var resumes []database.Resume
		if err := forUpdate(tx).Where("user_id = ?", userID).Find(&resumes).Error; err != nil {
			return err
		}
		for i := range resumes {
			members := resumes[i].MemberBlockIDs
			kept := make([]string, 0, len(members))
			for _, id := range members {
				if id != storageID {
					kept = append(kept, id)
				}
			}
			if len(kept) == len(members) {
				continue
			}
			if err := tx.Model(&resumes[i]).
				Update("member_block_ids", datatypes.JSONSlice[string](kept)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBlocks 按 Order 升序返回用户全部块，Order 相同时按创建先后。
func (s *Service) ListBlocks(ctx context.Context, userID uint) ([]Block, error) {
	var models []database.Block
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sort_order ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, storageErr("list blocks", err)
	}
	return s.blocksFromModels(models), nil
}

// GetBlock 按 StorageID 读取单个块。
func (s *Service) GetBlock(ctx context.Context, userID uint, storageID string) (Block, error) {
	var model database.Block
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND storage_id = ?", userID, storageID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Block{}, fmt.Errorf("%w: block storage_id=%s", ErrNotFound, storageID)
		}
		return Block{}, storageErr("get block", err)
	}
	return blockFromModel(model)
}
