package services

import (
	"fmt"

	"github.com/google/uuid"
)

// IDProvider 生成时间有序的全局唯一 ID。
// 以依赖注入的方式提供，测试可替换为确定性实现。
type IDProvider interface {
	NewID() (uuid.UUID, error)
}

type uuidV7Provider struct{}

// NewIDProvider 返回基于 UUID v7 的 IDProvider。
func NewIDProvider() IDProvider {
	return uuidV7Provider{}
}

func (uuidV7Provider) NewID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid v7: %w", err)
	}
	return id, nil
}
