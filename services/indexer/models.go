package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed node event. Sequence is the node's log
// sequence and makes indexing idempotent.
type EventRecord struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Sequence   uint64            `gorm:"uniqueIndex;not null"`
	Type       string            `gorm:"index;not null"`
	Ref        string            `gorm:"index"`
	TxRef      string            `gorm:"index"`
	Owner      string            `gorm:"index"`
	Attributes map[string]string `gorm:"serializer:json"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
