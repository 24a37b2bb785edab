package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

const backendPostgres = "postgres"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresConfig configures the pgvector backend.
type PostgresConfig struct {
	DSN          string
	Table        string
	MaxOpenConns int

	// Migrate creates the vector extension and chunk table on startup.
	Migrate bool
}

// chunkRow is the persisted form of a Record.
type chunkRow struct {
	ID          string          `gorm:"primaryKey;type:text"`
	Namespace   string          `gorm:"type:text;not null;index"`
	DocumentID  string          `gorm:"type:text;index"`
	FileName    string          `gorm:"type:text"`
	SourceType  string          `gorm:"type:text;not null;index"`
	RequesterID string          `gorm:"type:text;index"`
	Text        string          `gorm:"type:text"`
	Embedding   pgvector.Vector `gorm:"type:vector"`
	UpdatedAt   time.Time
}

type scoredRow struct {
	chunkRow
	Score float64
}

// PostgresStore serves vector and keyword queries from one pgvector table.
// Partitions are isolated by the namespace column.
type PostgresStore struct {
	db     *gorm.DB
	table  string
	owned  bool
	logger *zap.Logger
}

// NewPostgresStore opens a gorm connection and optionally migrates the schema.
func NewPostgresStore(ctx context.Context, config PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn required", ErrInvalidConfig)
	}
	db, err := gorm.Open(postgres.Open(config.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s, err := NewPostgresStoreFromDB(db, config.Table, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.owned = true

	if config.Migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing gorm handle. Close does not
// close a handle it did not open.
func NewPostgresStoreFromDB(db *gorm.DB, table string, logger *zap.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil gorm db", ErrInvalidConfig)
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrInvalidConfig, table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, table: table, logger: logger}, nil
}

// Migrate creates the vector extension and the chunk table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}
	if err := db.Table(s.table).AutoMigrate(&chunkRow{}); err != nil {
		return fmt.Errorf("migrating %s: %w", s.table, err)
	}
	s.logger.Info("postgres schema migrated", zap.String("table", s.table))
	return nil
}

// Upsert inserts records, replacing rows with the same id.
func (s *PostgresStore) Upsert(ctx context.Context, namespace string, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendPostgres, "upsert", start, err) }()

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(records))
	for i, r := range records {
		if err := r.validate(0); err != nil {
			return err
		}
		rows[i] = chunkRow{
			ID:          r.ID,
			Namespace:   namespace,
			DocumentID:  r.DocumentID,
			FileName:    r.FileName,
			SourceType:  r.SourceType,
			RequesterID: r.RequesterID,
			Text:        r.Text,
			Embedding:   pgvector.NewVector(r.Vector),
		}
	}
	err = s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", s.table, err)
	}
	return nil
}

// scoped applies the namespace and filter conditions. Filter keys are
// column names; ValidateFilter restricts them to the allowlist.
func (s *PostgresStore) scoped(q *gorm.DB, filter map[string]string) *gorm.DB {
	for _, k := range sortedKeys(filter) {
		q = q.Where(clause.Eq{Column: clause.Column{Name: k}, Value: filter[k]})
	}
	return q
}

// VectorQuery orders rows in namespace by cosine distance to vector.
// Score is 1 - distance, clamped at 0.
func (s *PostgresStore) VectorQuery(ctx context.Context, vector []float32, topK int, filter map[string]string, namespace string) (matches []retrieval.RawMatch, err error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.VectorQuery")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("top_k", topK))
	start := time.Now()
	defer func() {
		observe(backendPostgres, "vector_query", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(vector)
	var rows []scoredRow
	q := s.db.WithContext(ctx).
		Table(s.table).
		Select("*, 1 - (embedding <=> ?) AS score", vec).
		Where("namespace = ?", namespace)
	err = s.scoped(q, filter).
		Order(gorm.Expr("embedding <=> ?", vec)).
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}

	matches = make([]retrieval.RawMatch, len(rows))
	for i, r := range rows {
		score := r.Score
		if score < 0 {
			score = 0
		}
		matches[i] = retrieval.RawMatch{
			ID:          r.ID,
			Score:       score,
			DocumentID:  r.DocumentID,
			FileName:    r.FileName,
			SourceType:  r.SourceType,
			RequesterID: r.RequesterID,
			Text:        r.Text,
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	return matches, nil
}

// KeywordSearch matches file names with the case-insensitive regex
// operator. The pattern is already escaped, so it matches literally.
func (s *PostgresStore) KeywordSearch(ctx context.Context, pattern string, filter map[string]string, limit int) (ids []string, err error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.KeywordSearch")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendPostgres, "keyword_search", start, err) }()

	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	if limit <= 0 || pattern == "" {
		return nil, nil
	}

	q := s.db.WithContext(ctx).
		Table(s.table).
		Where("file_name ~* ?", pattern).
		Where("document_id <> ''")
	err = s.scoped(q, filter).
		Distinct("document_id").
		Order("document_id").
		Limit(limit).
		Pluck("document_id", &ids).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("keyword search on %s: %w", s.table, err)
	}
	return ids, nil
}

// Close closes the connection pool if this store opened it.
func (s *PostgresStore) Close() error {
	if !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
