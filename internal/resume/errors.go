package resume

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateClientID  = errors.New("duplicate client id")
	ErrNotFound           = errors.New("not found")
	ErrInvalidSectionKind = errors.New("invalid section kind")
	ErrMalformedBlock     = errors.New("malformed block")
	ErrInvalidResume      = errors.New("invalid resume")
	// ErrCorruptBlock 表示数据库中的块无法解码，属于服务端数据问题。
	ErrCorruptBlock       = errors.New("corrupt stored block")
	// ErrStorageUnavailable 包装所有存储层故障，调用方只能整体放弃本次操作。
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// storageErr 将驱动错误包装为 ErrStorageUnavailable，保留原始错误链。
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
