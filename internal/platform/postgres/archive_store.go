package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/adscribe-api/internal/analysis"
	"github.com/phrazzld/adscribe-api/internal/platform/logger"
)

// DBTX abstracts the database access layer. It is implemented by both
// *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ArchiveStore implements the analysis.Archive interface using a
// PostgreSQL database as the storage backend.
type ArchiveStore struct {
	db     DBTX
	logger *slog.Logger
}

var _ analysis.Archive = (*ArchiveStore)(nil)

// NewArchiveStore creates a PostgreSQL implementation of the Archive
// interface. The connection is initialized and managed by the caller.
func NewArchiveStore(db DBTX, logger *slog.Logger) *ArchiveStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ArchiveStore{
		db:     db,
		logger: logger.With(slog.String("component", "archive_store")),
	}
}

// GetAdConceptByArchiveID implements analysis.Archive.
// Returns analysis.ErrConceptNotFound if no concept is archived for the
// ad archive ID.
func (s *ArchiveStore) GetAdConceptByArchiveID(
	ctx context.Context,
	adArchiveID string,
) (*analysis.StoredAdConcept, error) {
	query := `
		SELECT ad_archive_id, image_url, concept_json, created_at, updated_at
		FROM ad_concepts
		WHERE ad_archive_id = $1
	`

	var (
		stored      analysis.StoredAdConcept
		conceptJSON []byte
	)

	err := s.db.QueryRowContext(ctx, query, adArchiveID).Scan(
		&stored.AdArchiveID,
		&stored.ImageURL,
		&conceptJSON,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, analysis.ErrConceptNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get ad concept",
			slog.String("ad_archive_id", adArchiveID),
			slog.String("error", err.Error()))
		return nil, err
	}

	if err := json.Unmarshal(conceptJSON, &stored.Concept); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived concept: %w", err)
	}

	return &stored, nil
}

// StoreAdConcept implements analysis.Archive. The write is an upsert
// keyed by ad_archive_id.
func (s *ArchiveStore) StoreAdConcept(ctx context.Context, record *analysis.StoredAdConcept) error {
	conceptJSON, err := json.Marshal(record.Concept)
	if err != nil {
		return fmt.Errorf("failed to marshal concept: %w", err)
	}

	query := `
		INSERT INTO ad_concepts (ad_archive_id, image_url, concept_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ad_archive_id) DO UPDATE
		SET image_url = EXCLUDED.image_url,
		    concept_json = EXCLUDED.concept_json,
		    updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.db.ExecContext(ctx, query,
		record.AdArchiveID,
		record.ImageURL,
		conceptJSON,
		createdAt,
		now,
	); err != nil {
		log.Error("failed to store ad concept",
			slog.String("ad_archive_id", record.AdArchiveID),
			slog.String("error", err.Error()))
		return err
	}

	log.Info("ad concept archived",
		slog.String("ad_archive_id", record.AdArchiveID))
	return nil
}

// StoreAdRecipe implements analysis.Archive. The write is an upsert
// keyed by ad_archive_id.
func (s *ArchiveStore) StoreAdRecipe(ctx context.Context, record *analysis.StoredAdRecipe) error {
	conceptJSON, err := json.Marshal(record.Concept)
	if err != nil {
		return fmt.Errorf("failed to marshal concept: %w", err)
	}

	salesPageJSON, err := json.Marshal(record.SalesPage)
	if err != nil {
		return fmt.Errorf("failed to marshal sales page: %w", err)
	}

	query := `
		INSERT INTO ad_recipes (
			ad_archive_id, image_url, sales_url,
			ad_concept_json, sales_page_json, recipe_prompt,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ad_archive_id) DO UPDATE
		SET image_url = EXCLUDED.image_url,
		    sales_url = EXCLUDED.sales_url,
		    ad_concept_json = EXCLUDED.ad_concept_json,
		    sales_page_json = EXCLUDED.sales_page_json,
		    recipe_prompt = EXCLUDED.recipe_prompt,
		    updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.db.ExecContext(ctx, query,
		record.AdArchiveID,
		record.ImageURL,
		record.SalesURL,
		conceptJSON,
		salesPageJSON,
		record.RecipePrompt,
		createdAt,
		now,
	); err != nil {
		// ad_recipes references ad_concepts, so a recipe for an unarchived
		// concept surfaces as a foreign key violation.
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: no archived concept for ad archive id %s",
				analysis.ErrConceptNotFound, record.AdArchiveID)
		}
		log.Error("failed to store ad recipe",
			slog.String("ad_archive_id", record.AdArchiveID),
			slog.String("error", err.Error()))
		return err
	}

	log.Info("ad recipe archived",
		slog.String("ad_archive_id", record.AdArchiveID))
	return nil
}

// PurgeOlderThan deletes archive rows last updated before the cutoff
// and returns how many rows were removed. Used by the scheduled
// retention job. A concept still referenced by a fresher recipe is kept
// until that recipe ages out.
func (s *ArchiveStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	queries := []struct {
		table string
		query string
	}{
		{"ad_recipes", "DELETE FROM ad_recipes WHERE updated_at < $1"},
		{"ad_concepts", `
			DELETE FROM ad_concepts c
			WHERE c.updated_at < $1
			  AND NOT EXISTS (
				SELECT 1 FROM ad_recipes r WHERE r.ad_archive_id = c.ad_archive_id
			  )
		`},
	}

	for _, q := range queries {
		result, err := s.db.ExecContext(ctx, q.query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", q.table, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count purged %s rows: %w", q.table, err)
		}
		total += affected
	}

	if total > 0 {
		s.logger.Info("purged archive rows",
			slog.Int64("rows", total),
			slog.Time("cutoff", cutoff))
	}
	return total, nil
}
