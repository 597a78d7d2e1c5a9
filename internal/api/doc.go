// Package api contains the HTTP handlers for the task orchestration
// surface: task submission endpoints, the status query endpoint, and
// the SSE status stream.
package api
