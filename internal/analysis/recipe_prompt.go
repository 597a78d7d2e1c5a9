package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// recipePromptTemplate composes the creative brief handed to a designer
// (or an image model) from the two analysis outputs.
const recipePromptTemplate = `You are an expert ad creative designer. Create a high-converting Facebook ad using the provided information and assets:

### EXISTING AD CONCEPT (JSON):
This contains the visual layout, structure, and design approach to replicate.
{{.ConceptJSON}}

### PRODUCT INFORMATION (JSON):
This contains the core product details to include in your ad.
{{.SalesPageJSON}}

### USER-PROVIDED ASSETS:
You will receive:
- Product image(s)
- Brand logo
- Any additional visual assets the user provides

### CREATIVE REQUIREMENTS:

1. FORMAT:
   - Facebook Ad (9:16 vertical format)
   - Maintain standard Facebook ad margins and safe zones

2. LAYOUT & STRUCTURE:
   - Follow EXACTLY the layout structure described in the ad concept JSON
   - Pay special attention to visual hierarchy, element positioning, and flow
   - Maintain proportional sizing of elements as described

3. VISUAL IDENTITY:
   - Use ONLY the user-provided product images and logo
   - Maintain exact dimensions and proportions of product images and logo
   - Extract and use the brand color palette from the provided assets
   - Match typography style if possible, or use appropriate alternatives

4. PRIMARY OFFERING VISIBILITY:
   - Check the "primary_offering_visibility" field in the ad concept JSON
   - If "is_visible": true, prominently feature the product image as specified
   - If "is_visible": false, follow the conceptual approach without showing the product

5. MESSAGING:
   - Use the messaging tone and style from the ad concept JSON
   - Pull specific copy points from the product information JSON
   - Ensure all claims align with the product information provided
   - Include appropriate call-to-action as in the original concept

6. TECHNICAL SPECIFICATIONS:
   - Crisp, high-resolution output
   - Text must be legible on mobile screens
   - Properly layered file for easy editing
   - Follow Facebook's ad policies regarding text-to-image ratio

### PROCESS:
1. Analyze the ad concept JSON thoroughly to understand the visual approach
2. Extract key details from the product information JSON
3. Integrate the user-provided visual assets following the concept structure
4. Respect whether the product should be visible based on "primary_offering_visibility"
5. Generate a compelling ad that perfectly blends the concept structure with the provided assets

The final result should feel like a professional, high-converting ad that maintains the proven layout structure while perfectly showcasing the user's specific product and brand identity.
`

var recipeTemplate = template.Must(template.New("ad_recipe").Parse(recipePromptTemplate))

// ComposeRecipePrompt renders the creative brief for the given concept
// and sales page analysis.
func ComposeRecipePrompt(concept *AdConcept, salesPage *SalesPage) (string, error) {
	conceptJSON, err := json.MarshalIndent(concept, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal ad concept: %w", err)
	}

	salesPageJSON, err := json.MarshalIndent(salesPage, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal sales page: %w", err)
	}

	var buf bytes.Buffer
	err = recipeTemplate.Execute(&buf, struct {
		ConceptJSON   string
		SalesPageJSON string
	}{
		ConceptJSON:   string(conceptJSON),
		SalesPageJSON: string(salesPageJSON),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render recipe prompt: %w", err)
	}

	return buf.String(), nil
}
