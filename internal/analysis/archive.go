package analysis

import (
	"context"
	"errors"
	"time"
)

// ErrConceptNotFound is returned when no archived concept exists for an
// ad archive ID.
var ErrConceptNotFound = errors.New("ad concept not found")

// StoredAdConcept is an archived ad concept row keyed by the public ad
// archive ID.
type StoredAdConcept struct {
	AdArchiveID string
	ImageURL    string
	Concept     *AdConcept
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StoredAdRecipe is an archived recipe row keyed by the public ad
// archive ID.
type StoredAdRecipe struct {
	AdArchiveID  string
	ImageURL     string
	SalesURL     string
	Concept      *AdConcept
	SalesPage    *SalesPage
	RecipePrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Archive persists analysis outputs across tasks so repeated requests
// for the same ad reuse earlier work.
//
// Store operations are upserts keyed by ad archive ID: tasks may run
// more than once for the same delivery, and a duplicate execution must
// not duplicate rows.
type Archive interface {
	// GetAdConceptByArchiveID returns the archived concept for the given
	// ad archive ID, or ErrConceptNotFound.
	GetAdConceptByArchiveID(ctx context.Context, adArchiveID string) (*StoredAdConcept, error)

	// StoreAdConcept inserts or replaces the archived concept for its ad
	// archive ID.
	StoreAdConcept(ctx context.Context, record *StoredAdConcept) error

	// StoreAdRecipe inserts or replaces the archived recipe for its ad
	// archive ID.
	StoreAdRecipe(ctx context.Context, record *StoredAdRecipe) error
}
