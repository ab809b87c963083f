package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finsightai/finsight/types"
)

// IngestionRecord is one document's ledger row. DocumentID is the natural key
// so a repeated ingest updates the existing row instead of duplicating it.
type IngestionRecord struct {
	ID            uint   `gorm:"primaryKey"`
	DocumentID    string `gorm:"uniqueIndex;size:191"`
	ChunkCount    int
	BoundaryCount int
	TokenizerName string
	IngestedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ledger records what has been ingested, backed by SQLite through GORM.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedger opens (or creates) the ledger database at path. Use ":memory:"
// for an ephemeral ledger in tests.
func NewLedger(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrLedgerConflict, "failed to open ingestion ledger").WithCause(err)
	}
	if err := db.AutoMigrate(&IngestionRecord{}); err != nil {
		return nil, types.NewError(types.ErrLedgerConflict, "failed to migrate ingestion ledger").WithCause(err)
	}
	return &Ledger{db: db, logger: logger.With(zap.String("component", "ledger"))}, nil
}

// Record upserts one document's ingestion outcome.
func (l *Ledger) Record(ctx context.Context, rec IngestionRecord) error {
	rec.IngestedAt = time.Now().UTC()

	var existing IngestionRecord
	err := l.db.WithContext(ctx).Where("document_id = ?", rec.DocumentID).First(&existing).Error
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		if err := l.db.WithContext(ctx).Save(&rec).Error; err != nil {
			return types.NewError(types.ErrLedgerConflict, "failed to update ledger record").WithCause(err)
		}
		l.logger.Info("ledger record replaced",
			zap.String("document_id", rec.DocumentID),
			zap.Int("chunks", rec.ChunkCount))
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return types.NewError(types.ErrLedgerConflict, "failed to create ledger record").WithCause(err)
		}
		return nil
	default:
		return types.NewError(types.ErrLedgerConflict, "failed to read ledger").WithCause(err)
	}
}

// Lookup returns the record for a document, or nil when never ingested.
func (l *Ledger) Lookup(ctx context.Context, documentID string) (*IngestionRecord, error) {
	var rec IngestionRecord
	err := l.db.WithContext(ctx).Where("document_id = ?", documentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrLedgerConflict, "failed to read ledger").WithCause(err)
	}
	return &rec, nil
}

// Documents lists all ledger rows, newest first.
func (l *Ledger) Documents(ctx context.Context) ([]IngestionRecord, error) {
	var recs []IngestionRecord
	if err := l.db.WithContext(ctx).Order("ingested_at desc").Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrLedgerConflict, "failed to list ledger").WithCause(err)
	}
	return recs, nil
}
