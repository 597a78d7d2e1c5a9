package analysis

import "context"

// NopArchive is an Archive that stores nothing. It is used when the
// archive database is not configured: recipe generation still works,
// it just never reuses earlier concepts across tasks.
type NopArchive struct{}

var _ Archive = NopArchive{}

// GetAdConceptByArchiveID implements Archive.
func (NopArchive) GetAdConceptByArchiveID(ctx context.Context, adArchiveID string) (*StoredAdConcept, error) {
	return nil, ErrConceptNotFound
}

// StoreAdConcept implements Archive.
func (NopArchive) StoreAdConcept(ctx context.Context, record *StoredAdConcept) error {
	return nil
}

// StoreAdRecipe implements Archive.
func (NopArchive) StoreAdRecipe(ctx context.Context, record *StoredAdRecipe) error {
	return nil
}
