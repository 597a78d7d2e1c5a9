package analysis

import (
	"context"
	"errors"
)

// Analyzer errors. ErrContentBlocked and ErrInvalidResponse are
// permanent for a given input; everything else is treated as transient
// and retried by the worker pool.
var (
	// ErrContentBlocked indicates the model refused the input on safety
	// grounds.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidResponse indicates the model returned output that could
	// not be parsed into the expected structure.
	ErrInvalidResponse = errors.New("invalid model response")
)

// Analyzer performs the LLM-backed analysis operations.
type Analyzer interface {
	// ExtractAdConcept analyzes the ad image at imageURL and returns its
	// abstracted layout concept.
	ExtractAdConcept(ctx context.Context, imageURL string) (*AdConcept, error)

	// ExtractSalesPage analyzes the sales page at pageURL and returns the
	// marketing information an advertiser needs.
	ExtractSalesPage(ctx context.Context, pageURL string) (*SalesPage, error)
}
