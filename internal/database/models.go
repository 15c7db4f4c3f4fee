package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息，独占其全部简历块与简历。
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64"`
	PasswordHash string `gorm:"size:255"`
	// MustChangePassword 为 true 时，账号只能访问改密接口（管理员创建的账号默认如此）。
	MustChangePassword bool     `gorm:"not null;default:false"`
	Blocks             []Block  `gorm:"constraint:OnDelete:CASCADE"`
	Resumes            []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// Block 是用户块集合中的一条记录。
// 删除为硬删除，保证同一 client_id 在删除后可以被重新使用。
type Block struct {
	ID          uint           `gorm:"primaryKey"`
	StorageID   string         `gorm:"size:36;uniqueIndex;not null"`
	UserID      uint           `gorm:"not null;uniqueIndex:idx_blocks_user_client,priority:1"`
	ClientID    string         `gorm:"size:128;not null;uniqueIndex:idx_blocks_user_client,priority:2"`
	SectionKind string         `gorm:"size:32;not null"`
	SortOrder   int            `gorm:"not null;default:0"`
	Fields      datatypes.JSON `gorm:"type:jsonb"` // 按 section_kind 区分的字段对象
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resume 是对用户块集合的有序引用视图，不内嵌块数据。
type Resume struct {
	gorm.Model
	Name           string                      `gorm:"size:255;not null"`
	MemberBlockIDs datatypes.JSONSlice[string] `gorm:"type:jsonb"` // 有序的 Block.StorageID 列表
	UserID         uint                        `gorm:"index;not null"`
	ExportKey      string                      `gorm:"size:512"`
	ExportStatus   string                      `gorm:"size:32"`
}

// Migrate 创建或更新全部表结构。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Block{}, &Resume{})
}
