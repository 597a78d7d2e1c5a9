// Package redis provides the Redis-backed implementations of the task
// orchestration contracts: the durable work queue (pending/processing
// lists with lease-based redelivery) and the task record store (one
// JSON document per task with optimistic-lock updates and terminal-state
// TTL).
package redis
