// Package cache provides the tiered verification-verdict cache: an in-memory
// LRU for hot fingerprints, a SQLite table for local persistence and a
// DynamoDB table shared across workers. The HybridCache composes the tiers
// with promote-on-hit reads, write-through local writes and write-behind
// batched DynamoDB writes.
package cache
