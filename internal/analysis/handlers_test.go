package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/adscribe-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAnalyzer implements Analyzer with injectable functions and call
// counters.
type stubAnalyzer struct {
	ConceptFn     func(ctx context.Context, imageURL string) (*AdConcept, error)
	SalesPageFn   func(ctx context.Context, pageURL string) (*SalesPage, error)
	ConceptCalls   int
	SalesPageCalls int
}

func (s *stubAnalyzer) ExtractAdConcept(ctx context.Context, imageURL string) (*AdConcept, error) {
	s.ConceptCalls++
	if s.ConceptFn != nil {
		return s.ConceptFn(ctx, imageURL)
	}
	return &AdConcept{
		Title:   "Premium Product Showcase",
		Summary: "Minimalist product display template.",
		Details: map[string]interface{}{"visual_tone": "clean"},
	}, nil
}

func (s *stubAnalyzer) ExtractSalesPage(ctx context.Context, pageURL string) (*SalesPage, error) {
	s.SalesPageCalls++
	if s.SalesPageFn != nil {
		return s.SalesPageFn(ctx, pageURL)
	}
	return &SalesPage{
		ProductName: "Example Product",
		Tagline:     "Revolutionize Your Experience",
	}, nil
}

// memArchive is an in-memory Archive for handler tests.
type memArchive struct {
	mu       sync.Mutex
	concepts map[string]*StoredAdConcept
	recipes  map[string]*StoredAdRecipe
}

func newMemArchive() *memArchive {
	return &memArchive{
		concepts: make(map[string]*StoredAdConcept),
		recipes:  make(map[string]*StoredAdRecipe),
	}
}

func (a *memArchive) GetAdConceptByArchiveID(ctx context.Context, adArchiveID string) (*StoredAdConcept, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.concepts[adArchiveID]
	if !ok {
		return nil, ErrConceptNotFound
	}
	return stored, nil
}

func (a *memArchive) StoreAdConcept(ctx context.Context, record *StoredAdConcept) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.concepts[record.AdArchiveID] = record
	return nil
}

func (a *memArchive) StoreAdRecipe(ctx context.Context, record *StoredAdRecipe) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recipes[record.AdArchiveID] = record
	return nil
}

func discardProgress(string) {}

func TestAdConceptHandler_Execute(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{}
	handler := NewAdConceptHandler(analyzer, testLogger())
	require.Equal(t, task.TaskTypeExtractAdConcept, handler.Type())

	var milestones []string
	payload := json.RawMessage(`{"image_url":"https://example.com/ad.png"}`)

	result, err := handler.Execute(context.Background(), payload, func(p string) {
		milestones = append(milestones, p)
	})
	require.NoError(t, err)

	var concept AdConcept
	require.NoError(t, json.Unmarshal(result, &concept))
	assert.Equal(t, "Premium Product Showcase", concept.Title)
	assert.Contains(t, milestones, "analyzing ad image")
}

func TestAdConceptHandler_MalformedPayload(t *testing.T) {
	t.Parallel()

	handler := NewAdConceptHandler(&stubAnalyzer{}, testLogger())

	_, err := handler.Execute(context.Background(), json.RawMessage(`{not json`), discardProgress)
	require.Error(t, err)
	assert.True(t, task.IsPermanent(err), "a payload that does not parse never will")
}

func TestAdConceptHandler_AnalyzerError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		analyzerErr   error
		wantPermanent bool
	}{
		{"content blocked", ErrContentBlocked, true},
		{"unparseable response", ErrInvalidResponse, true},
		{"transient upstream failure", errors.New("rate limited"), false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			analyzer := &stubAnalyzer{
				ConceptFn: func(ctx context.Context, imageURL string) (*AdConcept, error) {
					return nil, tc.analyzerErr
				},
			}
			handler := NewAdConceptHandler(analyzer, testLogger())

			_, err := handler.Execute(
				context.Background(),
				json.RawMessage(`{"image_url":"https://example.com/ad.png"}`),
				discardProgress,
			)
			require.ErrorIs(t, err, tc.analyzerErr)
			assert.Equal(t, tc.wantPermanent, task.IsPermanent(err),
				"only model rejections may skip the retry loop")
		})
	}
}

func TestSalesPageHandler_Execute(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{}
	handler := NewSalesPageHandler(analyzer, testLogger())
	require.Equal(t, task.TaskTypeExtractSalesPage, handler.Type())

	result, err := handler.Execute(
		context.Background(),
		json.RawMessage(`{"page_url":"https://example.com/product"}`),
		discardProgress,
	)
	require.NoError(t, err)

	var salesPage SalesPage
	require.NoError(t, json.Unmarshal(result, &salesPage))
	assert.Equal(t, "Example Product", salesPage.ProductName)
}

func TestAdRecipeHandler_ExtractsAndArchivesFreshConcept(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{}
	archive := newMemArchive()
	handler := NewAdRecipeHandler(analyzer, archive, testLogger())
	require.Equal(t, task.TaskTypeGenerateAdRecipe, handler.Type())

	payload := json.RawMessage(`{
		"ad_archive_id": "123456",
		"image_url": "https://example.com/ad.png",
		"sales_url": "https://example.com/product"
	}`)

	result, err := handler.Execute(context.Background(), payload, discardProgress)
	require.NoError(t, err)

	var output AdRecipeOutput
	require.NoError(t, json.Unmarshal(result, &output))
	assert.Equal(t, "123456", output.AdArchiveID)
	assert.Equal(t, "Premium Product Showcase", output.AdConceptJSON.Title)
	assert.Equal(t, "Example Product", output.SalesPageJSON.ProductName)
	assert.Contains(t, output.RecipePrompt, "EXISTING AD CONCEPT")

	assert.Equal(t, 1, analyzer.ConceptCalls)
	assert.Contains(t, archive.concepts, "123456", "fresh concept is archived for reuse")
	assert.Contains(t, archive.recipes, "123456")
}

func TestAdRecipeHandler_ReusesArchivedConcept(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{}
	archive := newMemArchive()
	require.NoError(t, archive.StoreAdConcept(context.Background(), &StoredAdConcept{
		AdArchiveID: "123456",
		ImageURL:    "https://example.com/ad.png",
		Concept: &AdConcept{
			Title:   "Archived Concept",
			Summary: "Previously extracted.",
		},
	}))

	handler := NewAdRecipeHandler(analyzer, archive, testLogger())

	payload := json.RawMessage(`{
		"ad_archive_id": "123456",
		"image_url": "https://example.com/ad.png",
		"sales_url": "https://example.com/product"
	}`)

	result, err := handler.Execute(context.Background(), payload, discardProgress)
	require.NoError(t, err)

	var output AdRecipeOutput
	require.NoError(t, json.Unmarshal(result, &output))
	assert.Equal(t, "Archived Concept", output.AdConceptJSON.Title)
	assert.Zero(t, analyzer.ConceptCalls, "archived concept must not be re-extracted")
}

func TestAdRecipeHandler_SalesPageErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("model timeout")
	analyzer := &stubAnalyzer{
		SalesPageFn: func(ctx context.Context, pageURL string) (*SalesPage, error) {
			return nil, wantErr
		},
	}
	handler := NewAdRecipeHandler(analyzer, newMemArchive(), testLogger())

	payload := json.RawMessage(`{
		"ad_archive_id": "123456",
		"image_url": "https://example.com/ad.png",
		"sales_url": "https://example.com/product"
	}`)

	_, err := handler.Execute(context.Background(), payload, discardProgress)
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, task.IsPermanent(err), "a timeout is worth retrying")
}

func TestAdRecipeHandler_BlockedSalesPageIsPermanent(t *testing.T) {
	t.Parallel()

	analyzer := &stubAnalyzer{
		SalesPageFn: func(ctx context.Context, pageURL string) (*SalesPage, error) {
			return nil, ErrContentBlocked
		},
	}
	handler := NewAdRecipeHandler(analyzer, newMemArchive(), testLogger())

	payload := json.RawMessage(`{
		"ad_archive_id": "123456",
		"image_url": "https://example.com/ad.png",
		"sales_url": "https://example.com/product"
	}`)

	_, err := handler.Execute(context.Background(), payload, discardProgress)
	require.ErrorIs(t, err, ErrContentBlocked)
	assert.True(t, task.IsPermanent(err))
}

func TestComposeRecipePrompt(t *testing.T) {
	t.Parallel()

	prompt, err := ComposeRecipePrompt(
		&AdConcept{Title: "Showcase", Summary: "Template.", Details: map[string]interface{}{}},
		&SalesPage{ProductName: "Widget"},
	)
	require.NoError(t, err)

	assert.True(t, strings.Contains(prompt, `"title": "Showcase"`))
	assert.True(t, strings.Contains(prompt, `"product_name": "Widget"`))
	assert.Contains(t, prompt, "CREATIVE REQUIREMENTS")
}

func TestPayloadPrototypes_CoverAllTaskTypes(t *testing.T) {
	t.Parallel()

	prototypes := PayloadPrototypes()
	assert.Len(t, prototypes, 3)
	for _, taskType := range []task.TaskType{
		task.TaskTypeExtractAdConcept,
		task.TaskTypeExtractSalesPage,
		task.TaskTypeGenerateAdRecipe,
	} {
		require.Contains(t, prototypes, taskType)
		assert.NotNil(t, prototypes[taskType]())
	}
}
