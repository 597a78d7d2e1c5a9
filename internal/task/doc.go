// Package task implements the asynchronous task orchestration core:
// submission, the durable work queue contract, the worker pool with
// retry, the shared record store contract, and the status watcher that
// backs the streaming API.
//
// The record store is the single source of truth for task state; the
// queue carries only descriptors. Records move strictly forward through
// pending -> running -> {completed, failed} and never leave a terminal
// state. Queue delivery is at-least-once, so task handlers must be
// idempotent with respect to external side effects.
package task
