package cacheinfra

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
)

type kvEntry struct {
	bun.BaseModel `bun:"table:kv_entries,alias:kv"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLStore persists entries in a single sqlite table through bun.
type SQLStore struct {
	db       *bun.DB
	maxBytes int
	logger   *zap.Logger

	mu sync.Mutex
}

// NewSQLStore opens the sqlite database named by cfg.DSN and ensures the kv_entries table exists.
func NewSQLStore(cfg Config, logger *zap.Logger) (*SQLStore, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if cfg.DSN == "" {
		cfg.DSN = DefaultDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqldb, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection also keeps ":memory:" databases alive.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	store := &SQLStore{db: db, maxBytes: cfg.MaxBytes, logger: logger}

	if _, err := db.NewCreateTable().Model((*kvEntry)(nil)).IfNotExists().Exec(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("sqlite store ready", zap.String("dsn", cfg.DSN), zap.Int("max_bytes", cfg.MaxBytes))
	return store, nil
}

// DB exposes the bun handle, mainly for tooling.
func (s *SQLStore) DB() *bun.DB {
	return s.db
}

// Close releases the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Get implements cache.Store.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry := new(kvEntry)
	err := s.db.NewSelect().Model(entry).Where(`"key" = ?`, key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// usedBytesExpr sums entry sizes in bytes. LENGTH over TEXT counts characters, so both
// columns are measured as blobs to match entrySize.
const usedBytesExpr = `COALESCE(SUM(LENGTH(CAST("key" AS BLOB)) + LENGTH(CAST("value" AS BLOB))), 0)`

// Set implements cache.Store. The budget check and the upsert run in one transaction.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var used int
		if err := tx.NewSelect().
			Model((*kvEntry)(nil)).
			ColumnExpr(usedBytesExpr).
			Where(`"key" != ?`, key).
			Scan(ctx, &used); err != nil {
			return err
		}
		if used+entrySize(key, value) > s.maxBytes {
			s.logger.Debug("sqlite store budget exceeded", zap.String("key", key), zap.Int("used", used), zap.Int("max_bytes", s.maxBytes))
			return ErrQuotaExceeded
		}

		entry := &kvEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
		_, err := tx.NewInsert().
			Model(entry).
			On(`CONFLICT ("key") DO UPDATE`).
			Set("value = EXCLUDED.value").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
}

// Delete implements cache.Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().Model((*kvEntry)(nil)).Where(`"key" = ?`, key).Exec(ctx)
	return err
}

// Keys implements cache.Store. Keys are returned sorted.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	q := s.db.NewSelect().Model((*kvEntry)(nil)).Column("key").OrderExpr(`"key" ASC`)
	if prefix != "" {
		q = q.Where(`substr(CAST("key" AS BLOB), 1, ?) = CAST(? AS BLOB)`, len(prefix), prefix)
	}
	if err := q.Scan(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Clear implements cache.Store.
func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*kvEntry)(nil)).Where("1 = 1").Exec(ctx)
	return err
}

// Size implements cache.Store.
func (s *SQLStore) Size(ctx context.Context) (int, error) {
	var used int
	err := s.db.NewSelect().
		Model((*kvEntry)(nil)).
		ColumnExpr(usedBytesExpr).
		Scan(ctx, &used)
	return used, err
}
