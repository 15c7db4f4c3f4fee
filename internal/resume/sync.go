package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"texResume/internal/database"
)

// ReorderBlocks 将 storageIDs 中每个块的 Order 设为其下标；未列出的块保持原值。
// 任一 id 不存在时返回 ErrNotFound，且不做任何修改。
func (s *Service) ReorderBlocks(ctx context.Context, userID uint, storageIDs []string) ([]Block, error) {
	seen := make(map[string]struct{}, len(storageIDs))
	for _, id := range storageIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty storage id in order list", ErrMalformedBlock)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: storage id %q listed twice", ErrMalformedBlock, id)
		}
		seen[id] = struct{}{}
	}

	var blocks []Block
	err := s.transaction(ctx, "reorder blocks", func(tx *gorm.DB) error {
		if len(storageIDs) > 0 {
			var models []database.Block
			if err := forUpdate(tx).
				Where("user_id = ? AND storage_id IN ?", userID, storageIDs).
				Find(&models).Error; err != nil {
				return err
			}
			if len(models) != len(storageIDs) {
				found := make(map[string]struct{}, len(models))
				for _, m := range models {
					found[m.StorageID] = struct{}{}
				}
				var missing []string
				for _, id := range storageIDs {
					if _, ok := found[id]; !ok {
						missing = append(missing, id)
					}
				}
				return fmt.Errorf("%w: blocks %s", ErrNotFound, strings.Join(missing, ","))
			}
			for i, id := range storageIDs {
				if err := tx.Model(&database.Block{}).
					Where("user_id = ? AND storage_id = ?", userID, id).
					Update("sort_order", i).Error; err != nil {
					return err
				}
			}
		}

		var models []database.Block
		if err := tx.Where("user_id = ?", userID).
			Order("sort_order ASC").
			Order("id ASC").
			Find(&models).Error; err != nil {
			return err
		}
		blocks = s.blocksFromModels(models)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// SyncItem 是画布同步中的一项。Block 给出身份、类型与新建时使用的完整字段；
// Patch 只包含客户端实际发送的字段键，用于与已存储的块合并。
type SyncItem struct {
	Block Block
	Patch FieldPatch
}

// UnmarshalJSON 解码块的线上格式，同时保留 fields 中出现的原始键。
func (it *SyncItem) UnmarshalJSON(data []byte) error {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return err
	}
	var wire struct {
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	patch, err := decodePatch(wire.Fields)
	if err != nil {
		return err
	}
	*it = SyncItem{Block: block, Patch: patch}
	return nil
}

// SyncCanvas 将画布上的块按 ClientID 与已存储的集合对齐：
// 已存在的块只覆盖 Patch 中出现的字段并把 Order 设为其下标，其余字段保持原值；
// 新块以 Block.Fields 插入，Order 为其下标。
// 请求中未出现的块保持不变。返回结果与请求顺序一致。
func (s *Service) SyncCanvas(ctx context.Context, userID uint, canvas []SyncItem) ([]Block, error) {
	clientIDs := make([]string, 0, len(canvas))
	seen := make(map[string]struct{}, len(canvas))
	for i, item := range canvas {
		id := strings.TrimSpace(item.Block.ClientID)
		if id == "" {
			return nil, fmt.Errorf("%w: block %d has no client id", ErrMalformedBlock, i)
		}
		if err := item.Block.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: client id %q appears more than once", ErrMalformedBlock, id)
		}
		seen[id] = struct{}{}
		clientIDs = append(clientIDs, id)
	}

	result := make([]Block, 0, len(canvas))
	err := s.transaction(ctx, "sync canvas", func(tx *gorm.DB) error {
		existing := make(map[string]database.Block, len(canvas))
		if len(clientIDs) > 0 {
			var models []database.Block
			if err := forUpdate(tx).
				Where("user_id = ? AND client_id IN ?", userID, clientIDs).
				Find(&models).Error; err != nil {
				return err
			}
			for _, m := range models {
				existing[m.ClientID] = m
			}
		}

		for i, item := range canvas {
			b := item.Block
			b.ClientID = clientIDs[i]
			b.Order = i
			model, ok := existing[b.ClientID]
			if !ok {
				b.StorageID = ""
				stored, err := s.insertBlock(tx, userID, b)
				if err != nil {
					return err
				}
				result = append(result, stored)
				continue
			}

			current, err := blockFromModel(model)
			if err != nil {
				return err
			}
			if current.Kind != b.Kind {
				return fmt.Errorf("%w: block %q is %s and cannot become %s", ErrInvalidSectionKind, b.ClientID, current.Kind, b.Kind)
			}
			merged, err := item.Patch.Apply(current.Fields)
			if err != nil {
				return err
			}
			encoded, err := encodeFields(merged)
			if err != nil {
				return err
			}
			if err := tx.Model(&model).Updates(map[string]any{
				"fields":     encoded,
				"sort_order": i,
			}).Error; err != nil {
				return err
			}
			current.Fields = merged
			current.Order = i
			result = append(result, current)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
