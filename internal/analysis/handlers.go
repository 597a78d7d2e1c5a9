package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/adscribe-api/internal/task"
)

// PayloadPrototypes returns, per task type, a constructor for the
// payload struct used to validate submissions.
func PayloadPrototypes() map[task.TaskType]task.PayloadPrototype {
	return map[task.TaskType]task.PayloadPrototype{
		task.TaskTypeExtractAdConcept: func() interface{} { return &ExtractAdConceptInput{} },
		task.TaskTypeExtractSalesPage: func() interface{} { return &ExtractSalesPageInput{} },
		task.TaskTypeGenerateAdRecipe: func() interface{} { return &AdRecipeInput{} },
	}
}

// Handlers returns the full task handler set over the given
// collaborators.
func Handlers(analyzer Analyzer, archive Archive, logger *slog.Logger) []task.Handler {
	return []task.Handler{
		NewAdConceptHandler(analyzer, logger),
		NewSalesPageHandler(analyzer, logger),
		NewAdRecipeHandler(analyzer, archive, logger),
	}
}

// analyzerErr marks model rejections as permanent so the worker pool
// fails the task instead of retrying an input the model will keep
// refusing.
func analyzerErr(err error) error {
	if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) {
		return task.Permanent(err)
	}
	return err
}

// AdConceptHandler executes extract-ad-concept tasks.
type AdConceptHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewAdConceptHandler creates the handler for extract-ad-concept tasks.
func NewAdConceptHandler(analyzer Analyzer, logger *slog.Logger) *AdConceptHandler {
	return &AdConceptHandler{
		analyzer: analyzer,
		logger:   logger.With("handler", string(task.TaskTypeExtractAdConcept)),
	}
}

// Type implements task.Handler.
func (h *AdConceptHandler) Type() task.TaskType {
	return task.TaskTypeExtractAdConcept
}

// Execute implements task.Handler.
func (h *AdConceptHandler) Execute(
	ctx context.Context,
	payload json.RawMessage,
	report task.ProgressFunc,
) (json.RawMessage, error) {
	var input ExtractAdConceptInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, task.Permanent(fmt.Errorf("failed to decode payload: %w", err))
	}

	report("analyzing ad image")
	concept, err := h.analyzer.ExtractAdConcept(ctx, input.ImageURL)
	if err != nil {
		return nil, analyzerErr(err)
	}

	h.logger.Info("ad concept extracted", "title", concept.Title)
	return marshalResult(concept)
}

// SalesPageHandler executes extract-sales-page tasks.
type SalesPageHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewSalesPageHandler creates the handler for extract-sales-page tasks.
func NewSalesPageHandler(analyzer Analyzer, logger *slog.Logger) *SalesPageHandler {
	return &SalesPageHandler{
		analyzer: analyzer,
		logger:   logger.With("handler", string(task.TaskTypeExtractSalesPage)),
	}
}

// Type implements task.Handler.
func (h *SalesPageHandler) Type() task.TaskType {
	return task.TaskTypeExtractSalesPage
}

// Execute implements task.Handler.
func (h *SalesPageHandler) Execute(
	ctx context.Context,
	payload json.RawMessage,
	report task.ProgressFunc,
) (json.RawMessage, error) {
	var input ExtractSalesPageInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, task.Permanent(fmt.Errorf("failed to decode payload: %w", err))
	}

	report("analyzing sales page")
	salesPage, err := h.analyzer.ExtractSalesPage(ctx, input.PageURL)
	if err != nil {
		return nil, analyzerErr(err)
	}

	h.logger.Info("sales page extracted", "product_name", salesPage.ProductName)
	return marshalResult(salesPage)
}

// AdRecipeHandler executes generate-ad-recipe tasks. It reuses an
// archived ad concept for the ad archive ID when one exists, extracts
// one inline otherwise, always extracts the sales page fresh, then
// composes and archives the full recipe.
type AdRecipeHandler struct {
	analyzer Analyzer
	archive  Archive
	logger   *slog.Logger
}

// NewAdRecipeHandler creates the handler for generate-ad-recipe tasks.
func NewAdRecipeHandler(analyzer Analyzer, archive Archive, logger *slog.Logger) *AdRecipeHandler {
	return &AdRecipeHandler{
		analyzer: analyzer,
		archive:  archive,
		logger:   logger.With("handler", string(task.TaskTypeGenerateAdRecipe)),
	}
}

// Type implements task.Handler.
func (h *AdRecipeHandler) Type() task.TaskType {
	return task.TaskTypeGenerateAdRecipe
}

// Execute implements task.Handler.
func (h *AdRecipeHandler) Execute(
	ctx context.Context,
	payload json.RawMessage,
	report task.ProgressFunc,
) (json.RawMessage, error) {
	var input AdRecipeInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, task.Permanent(fmt.Errorf("failed to decode payload: %w", err))
	}

	logger := h.logger.With("ad_archive_id", input.AdArchiveID)

	concept, err := h.resolveConcept(ctx, input, report, logger)
	if err != nil {
		return nil, err
	}

	report("analyzing sales page")
	salesPage, err := h.analyzer.ExtractSalesPage(ctx, input.SalesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract sales page data: %w", analyzerErr(err))
	}

	report("composing ad recipe")
	recipePrompt, err := ComposeRecipePrompt(concept, salesPage)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := h.archive.StoreAdRecipe(ctx, &StoredAdRecipe{
		AdArchiveID:  input.AdArchiveID,
		ImageURL:     input.ImageURL,
		SalesURL:     input.SalesURL,
		Concept:      concept,
		SalesPage:    salesPage,
		RecipePrompt: recipePrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return nil, fmt.Errorf("failed to archive ad recipe: %w", err)
	}

	logger.Info("ad recipe generated")

	return marshalResult(&AdRecipeOutput{
		AdArchiveID:   input.AdArchiveID,
		ImageURL:      input.ImageURL,
		SalesURL:      input.SalesURL,
		AdConceptJSON: concept,
		SalesPageJSON: salesPage,
		RecipePrompt:  recipePrompt,
	})
}

// resolveConcept returns the archived concept for the ad archive ID, or
// extracts and archives a fresh one.
func (h *AdRecipeHandler) resolveConcept(
	ctx context.Context,
	input AdRecipeInput,
	report task.ProgressFunc,
	logger *slog.Logger,
) (*AdConcept, error) {
	report("looking up archived ad concept")

	stored, err := h.archive.GetAdConceptByArchiveID(ctx, input.AdArchiveID)
	if err == nil {
		logger.Info("reusing archived ad concept")
		return stored.Concept, nil
	}
	if !errors.Is(err, ErrConceptNotFound) {
		return nil, fmt.Errorf("failed to look up archived ad concept: %w", err)
	}

	logger.Info("no archived ad concept, extracting")
	report("analyzing ad image")

	concept, err := h.analyzer.ExtractAdConcept(ctx, input.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract ad concept: %w", analyzerErr(err))
	}

	now := time.Now().UTC()
	if err := h.archive.StoreAdConcept(ctx, &StoredAdConcept{
		AdArchiveID: input.AdArchiveID,
		ImageURL:    input.ImageURL,
		Concept:     concept,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("failed to archive ad concept: %w", err)
	}

	return concept, nil
}
