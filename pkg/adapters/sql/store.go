// Package sql implements the tracking store on top of GORM, so records can
// live in SQLite, PostgreSQL or MySQL.
package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported dialects for Open.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// recordRow is the table layout of one record.
type recordRow struct {
	AppID          string    `gorm:"column:app_id;primaryKey;size:191"`
	Seq            int       `gorm:"column:seq;primaryKey;autoIncrement:false"`
	PartitionKey   string    `gorm:"column:partition_key;size:191;index"`
	Action         string    `gorm:"column:action;size:191"`
	Next           string    `gorm:"column:next_action;size:191"`
	State          string    `gorm:"column:state;type:text;not null"`
	ParentAppID    *string   `gorm:"column:parent_app_id;size:191"`
	ParentSequence *int      `gorm:"column:parent_seq"`
	RecordedAt     time.Time `gorm:"column:recorded_at;not null"`
}

func (recordRow) TableName() string { return "arbor_records" }

// Store implements ports.TrackingStore with GORM.
type Store struct {
	db *gorm.DB
}

// Open connects to a database and migrates the records table.
func Open(dialect, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite, "":
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite || dialect == "" {
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an existing connection and migrates the records table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the record; the last writer wins.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	if record.AppID == "" {
		return fmt.Errorf("appID cannot be empty")
	}
	state, err := record.State.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	row := recordRow{
		AppID:        record.AppID,
		Seq:          record.Position.Sequence,
		PartitionKey: record.PartitionKey,
		Action:       record.Position.Action,
		Next:         record.Next,
		State:        string(state),
		RecordedAt:   record.CreatedAt,
	}
	if record.Parent != nil {
		parentID, parentSeq := record.Parent.AppID, record.Parent.Sequence
		row.ParentAppID, row.ParentSequence = &parentID, &parentSeq
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_id"}, {Name: "seq"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save record %s@%d: %w", record.AppID, record.Position.Sequence, err)
	}
	return nil
}

// Load retrieves a record.
func (s *Store) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	q := s.db.WithContext(ctx).Where("app_id = ?", appID)
	if sequence == domain.LatestSequence {
		q = q.Order("seq DESC")
	} else {
		q = q.Where("seq = ?", sequence)
	}

	var rows []recordRow
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load record %s@%d: %w", appID, sequence, err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return rows[0].toRecord()
}

func (r recordRow) toRecord() (*domain.Record, error) {
	var state domain.State
	if err := state.UnmarshalJSON([]byte(r.State)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state of %s@%d: %w", r.AppID, r.Seq, err)
	}
	record := &domain.Record{
		AppID:        r.AppID,
		PartitionKey: r.PartitionKey,
		Position:     domain.Position{Action: r.Action, Sequence: r.Seq},
		Next:         r.Next,
		State:        state,
		CreatedAt:    r.RecordedAt,
	}
	if r.ParentAppID != nil {
		record.Parent = &domain.Lineage{AppID: *r.ParentAppID}
		if r.ParentSequence != nil {
			record.Parent.Sequence = *r.ParentSequence
		}
	}
	return record, nil
}

// Delete removes every record of an application.
func (s *Store) Delete(ctx context.Context, appID string) error {
	return s.db.WithContext(ctx).Where("app_id = ?", appID).Delete(&recordRow{}).Error
}

// ListApplications returns every tracked application id, sorted.
func (s *Store) ListApplications(ctx context.Context) ([]string, error) {
	apps := []string{}
	err := s.db.WithContext(ctx).Model(&recordRow{}).Distinct("app_id").Order("app_id").Pluck("app_id", &apps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// ListSequences returns the recorded sequences of appID in ascending order.
func (s *Store) ListSequences(ctx context.Context, appID string) ([]int, error) {
	seqs := []int{}
	err := s.db.WithContext(ctx).Model(&recordRow{}).Where("app_id = ?", appID).Order("seq").Pluck("seq", &seqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}
	return seqs, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
