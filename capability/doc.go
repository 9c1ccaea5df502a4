// Package capability implements the in-memory agent capability scheduling core.
// It provides a static agent type registry, a per-agent lifecycle state machine,
// a weighted multi-factor capability scorer, and a pool manager that assigns
// tasks, tracks performance, and rebalances queued load.
//
// The package is an embeddable, single-process coordinator: it has no wire
// protocol, no durable storage, and no external calls. Transport, persistence
// of unrelated entities, and any LLM integration belong to the embedding
// service.
package capability
