package storage

// Package storage is the persistence layer: addresses with their zone
// mapping, the durable zone schedule cache, and both subscription variants.
//
// All cross-row updates that belong to one logical unit (a check cycle's
// persistence step, an alert marker update) run in a single transaction so
// a crash mid-cycle never leaves a subscription half-updated.
