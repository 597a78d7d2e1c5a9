// Package postgres implements the analysis.Archive contract on
// PostgreSQL. Analysis outputs are archived as JSONB rows keyed by the
// public ad archive ID, with upsert semantics so repeated task
// executions never duplicate rows. Schema management uses embedded
// goose migrations.
package postgres
