package analysis

import "encoding/json"

// ExtractAdConceptInput is the payload for an extract-ad-concept task.
type ExtractAdConceptInput struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

// ExtractSalesPageInput is the payload for an extract-sales-page task.
type ExtractSalesPageInput struct {
	PageURL string `json:"page_url" validate:"required,url"`
}

// AdRecipeInput is the payload for a generate-ad-recipe task.
type AdRecipeInput struct {
	AdArchiveID string `json:"ad_archive_id" validate:"required"`
	ImageURL    string `json:"image_url"     validate:"required,url"`
	SalesURL    string `json:"sales_url"     validate:"required,url"`
}

// AdConcept is the structured description of an ad image: a reusable
// layout template abstracted away from any specific product or brand.
type AdConcept struct {
	Title   string                 `json:"title"`
	Summary string                 `json:"summary"`
	Details map[string]interface{} `json:"details"`
}

// SalesPage is the marketing information extracted from a sales page.
type SalesPage struct {
	ProductName             string                 `json:"product_name"`
	Tagline                 string                 `json:"tagline,omitempty"`
	KeyBenefits             []string               `json:"key_benefits,omitempty"`
	Features                []string               `json:"features,omitempty"`
	ProblemAddressed        string                 `json:"problem_addressed,omitempty"`
	TargetAudience          string                 `json:"target_audience,omitempty"`
	SocialProof             map[string]interface{} `json:"social_proof,omitempty"`
	Offer                   map[string]string      `json:"offer,omitempty"`
	CallToAction            string                 `json:"call_to_action,omitempty"`
	VisualElementsToInclude []string               `json:"visual_elements_to_include,omitempty"`
	BrandVoice              string                 `json:"brand_voice,omitempty"`
	ComplianceNotes         string                 `json:"compliance_notes,omitempty"`
	AdditionalInfo          map[string]interface{} `json:"additional_info,omitempty"`
}

// AdRecipeOutput is the result of a generate-ad-recipe task: the inputs,
// both analysis outputs, and the composed creative brief.
type AdRecipeOutput struct {
	AdArchiveID   string     `json:"ad_archive_id"`
	ImageURL      string     `json:"image_url"`
	SalesURL      string     `json:"sales_url"`
	AdConceptJSON *AdConcept `json:"ad_concept_json"`
	SalesPageJSON *SalesPage `json:"sales_page_json"`
	RecipePrompt  string     `json:"recipe_prompt"`
}

// marshalResult serializes a task output for storage on the task record.
func marshalResult(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}
