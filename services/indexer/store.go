// Package indexer mirrors committed node events into a SQL database so they
// can be queried by reference, owner or transaction.
package indexer

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"ecomchain/core/types"
)

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ecomchain/indexer"))

// Store persists events through gorm.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the configured database and migrates the schema. Driver is
// "postgres" or "sqlite"; sqlite is the default.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func recordID(seq uint64) uuid.UUID {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return uuid.NewSHA1(recordNamespace, buf)
}

// Index stores events, skipping sequences already present.
func (s *Store) Index(ctx context.Context, events []*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]EventRecord, 0, len(events))
	for _, evt := range events {
		if evt == nil || evt.Sequence == 0 {
			continue
		}
		attrs := make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			attrs[k] = v
		}
		owner := attrs["owner"]
		if owner == "" {
			owner = attrs["placer"]
		}
		records = append(records, EventRecord{
			ID:         recordID(evt.Sequence),
			Sequence:   evt.Sequence,
			Type:       evt.Type,
			Ref:        attrs["ref"],
			TxRef:      attrs["txRef"],
			Owner:      owner,
			Attributes: attrs,
			CreatedAt:  s.now().UTC(),
		})
	}
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sequence"}}, DoNothing: true}).
		Create(&records).Error
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Type     string
	Ref      string
	TxRef    string
	Owner    string
	AfterSeq uint64
	Limit    int
}

// List returns matching events ordered by sequence.
func (s *Store) List(ctx context.Context, filter Filter) ([]EventRecord, error) {
	query := s.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", filter.AfterSeq)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Ref != "" {
		query = query.Where("ref = ?", filter.Ref)
	}
	if filter.TxRef != "" {
		query = query.Where("tx_ref = ?", filter.TxRef)
	}
	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []EventRecord
	if err := query.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LastSequence returns the highest indexed sequence, or zero.
func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	var record EventRecord
	err := s.db.WithContext(ctx).Order("sequence desc").Limit(1).Find(&record).Error
	if err != nil {
		return 0, err
	}
	return record.Sequence, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
