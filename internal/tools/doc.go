// Package tools provides the tool registry and the dispatching boundary
// that isolates tool failures from the calling agent.
//
// # Overview
//
// A tool is a named capability the agent can call mid-conversation:
// "accept raw input, return a result-or-error". The Dispatcher holds an
// immutable name -> Definition map built once at startup and executes
// handlers under a per-call timeout.
//
// # Built-in Tools
//
// Builtins registers 8 tools, in this order:
//
//	get_user_profile          - user lookup (store)
//	save_conversation         - append a message (store)
//	get_conversation_history  - ordered history fetch (store)
//	get_weather               - forecast lookup (gateway)
//	search_knowledge_base     - article search (kb)
//	calculate                 - arithmetic evaluation (evaluator)
//	get_current_time          - clock read
//	store_preference          - persist a user preference (store)
//
// # Containment
//
// Invoke is the containment boundary: lookup misses, malformed input,
// handler errors, panics, and timeouts all come back as a Result carrying
// a tagged Failure. No tool execution can raise past Invoke, so the
// orchestrator can treat any failure as recoverable context and try
// another tool.
//
// # Concurrency
//
// The registry is write-once/read-many: after NewDispatcher returns, no
// shared mutable state remains, and concurrent Invoke calls are
// independent. Callers may fan out one goroutine per invocation without
// additional synchronization.
package tools
