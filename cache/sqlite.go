package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hupe1980/evalmesh/core"
)

// verdictRecord is the on-disk row shape for a cached verdict. Sources are
// stored JSON encoded to keep the table to a single row per fingerprint.
type verdictRecord struct {
	Fingerprint string    `gorm:"primaryKey;size:64"`
	Verdict     string    `gorm:"size:16;not null"`
	Confidence  float64   `gorm:"not null"`
	Sources     string    `gorm:"type:text"`
	ComputedAt  time.Time `gorm:"not null"`
	TTLSeconds  int64     `gorm:"not null"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (verdictRecord) TableName() string { return "fact_check_verdicts" }

// SQLiteCache persists verdicts in a local SQLite database.
type SQLiteCache struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLiteCache opens (creating if needed) the database at path and migrates
// the verdict table.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if err := db.AutoMigrate(&verdictRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite cache: %w", err)
	}
	return &SQLiteCache{db: db, now: time.Now}, nil
}

// Get implements core.VerificationCache. Expired rows are deleted and
// reported as misses.
func (c *SQLiteCache) Get(ctx context.Context, fingerprint string) (*core.VerificationVerdict, error) {
	var rec verdictRecord
	err := c.db.WithContext(ctx).First(&rec, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite cache get: %w", err)
	}

	verdict := rec.toVerdict()
	if verdict.Expired(c.now()) {
		c.db.WithContext(ctx).Delete(&verdictRecord{}, "fingerprint = ?", fingerprint)
		return nil, core.ErrCacheMiss
	}
	return verdict, nil
}

// Put implements core.VerificationCache via an upsert on the fingerprint.
func (c *SQLiteCache) Put(ctx context.Context, verdict *core.VerificationVerdict) error {
	sources := ""
	if len(verdict.Sources) > 0 {
		data, err := json.Marshal(verdict.Sources)
		if err != nil {
			return fmt.Errorf("sqlite cache put: encode sources: %w", err)
		}
		sources = string(data)
	}

	rec := verdictRecord{
		Fingerprint: verdict.Fingerprint,
		Verdict:     string(verdict.Verdict),
		Confidence:  verdict.Confidence,
		Sources:     sources,
		ComputedAt:  verdict.ComputedAt,
		TTLSeconds:  int64(verdict.TTL / time.Second),
	}

	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sqlite cache put: %w", err)
	}
	return nil
}

// Count returns the number of stored verdicts.
func (c *SQLiteCache) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&verdictRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("sqlite cache count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *verdictRecord) toVerdict() *core.VerificationVerdict {
	var sources []string
	if r.Sources != "" {
		// Corrupt rows lose their sources but keep the verdict usable.
		_ = json.Unmarshal([]byte(r.Sources), &sources)
	}
	return &core.VerificationVerdict{
		Fingerprint: r.Fingerprint,
		Verdict:     core.Verdict(r.Verdict),
		Confidence:  r.Confidence,
		Sources:     sources,
		ComputedAt:  r.ComputedAt,
		TTL:         time.Duration(r.TTLSeconds) * time.Second,
	}
}
