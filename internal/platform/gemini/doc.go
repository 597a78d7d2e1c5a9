// Package gemini implements the analysis.Analyzer contract on Google's
// Gemini API. Ad images are fetched and sent inline with the concept
// extraction prompt; sales pages are analyzed by URL. Responses are
// requested as JSON and decoded into the analysis output models.
package gemini
