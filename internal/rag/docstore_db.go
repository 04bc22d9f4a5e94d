package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aihub/rag-go/internal/apperrors"
)

// ParentSegmentRecord 父块数据库记录
type ParentSegmentRecord struct {
	ID       string `gorm:"primaryKey;column:id;size:64"`
	SourceID string `gorm:"column:source_id;size:512;index"`
	Text     string `gorm:"type:text;column:text"`
	Metadata string `gorm:"type:jsonb;column:metadata"`
}

func (ParentSegmentRecord) TableName() string {
	return "parent_segments"
}

// DatabaseDocumentStore 基于PostgreSQL的父块存储。
// 每次Put即落库，Persist/Load 因此是空操作（数据天然持久）。
type DatabaseDocumentStore struct {
	db *gorm.DB
}

// NewDatabaseDocumentStore 创建数据库文档库并迁移表结构
func NewDatabaseDocumentStore(db *gorm.DB) (*DatabaseDocumentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is nil")
	}
	if err := db.AutoMigrate(&ParentSegmentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate parent_segments: %w", err)
	}
	return &DatabaseDocumentStore{db: db}, nil
}

func (s *DatabaseDocumentStore) Put(ctx context.Context, parent ParentSegment) error {
	if parent.ID == "" {
		return apperrors.NewValidationFault("parent segment id is empty")
	}

	metadataJSON := "{}"
	if parent.Metadata != nil {
		data, err := json.Marshal(parent.Metadata)
		if err != nil {
			return apperrors.NewStorageFault("failed to encode parent metadata").WithCause(err)
		}
		metadataJSON = string(data)
	}

	record := ParentSegmentRecord{
		ID:       parent.ID,
		SourceID: parent.SourceID,
		Text:     parent.Text,
		Metadata: metadataJSON,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return apperrors.NewStorageFault("failed to upsert parent segment").WithCause(err)
	}
	return nil
}

func (s *DatabaseDocumentStore) Get(ctx context.Context, id string) (*ParentSegment, error) {
	var record ParentSegmentRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound(fmt.Sprintf("parent segment %s not found", id))
		}
		return nil, apperrors.NewStorageFault("failed to query parent segment").WithCause(err)
	}
	return recordToParent(record), nil
}

func (s *DatabaseDocumentStore) GetMany(ctx context.Context, ids []string) ([]*ParentSegment, error) {
	result := make([]*ParentSegment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var records []ParentSegmentRecord
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error
	if err != nil {
		return nil, apperrors.NewStorageFault("failed to query parent segments").WithCause(err)
	}

	byID := make(map[string]*ParentSegment, len(records))
	for _, record := range records {
		byID[record.ID] = recordToParent(record)
	}
	// 保持输入顺序，缺失的位置留nil
	for i, id := range ids {
		result[i] = byID[id]
	}
	return result, nil
}

// Persist 空操作：写入即持久
func (s *DatabaseDocumentStore) Persist(ctx context.Context) error {
	return nil
}

// Load 空操作：读取总是直达数据库
func (s *DatabaseDocumentStore) Load(ctx context.Context) error {
	return nil
}

func (s *DatabaseDocumentStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("1 = 1").Delete(&ParentSegmentRecord{}).Error
	if err != nil {
		return apperrors.NewStorageFault("failed to clear parent segments").WithCause(err)
	}
	return nil
}

func (s *DatabaseDocumentStore) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ParentSegmentRecord{}).Count(&count).Error
	if err != nil {
		return 0, apperrors.NewStorageFault("failed to count parent segments").WithCause(err)
	}
	return int(count), nil
}

func recordToParent(record ParentSegmentRecord) *ParentSegment {
	var metadata map[string]interface{}
	if record.Metadata != "" {
		_ = json.Unmarshal([]byte(record.Metadata), &metadata)
	}
	return &ParentSegment{
		ID:       record.ID,
		SourceID: record.SourceID,
		Text:     record.Text,
		Metadata: metadata,
	}
}
