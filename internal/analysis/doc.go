// Package analysis holds the ad-analysis domain: the payload and output
// models for each task type, the Analyzer contract fulfilled by the LLM
// platform package, the Archive contract fulfilled by the Postgres
// platform package, and the task handlers that tie them together.
package analysis
