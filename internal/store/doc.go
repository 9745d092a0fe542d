package store

// Package store is the durable local store for conversations, messages
// and summaries.
//
// It owns the two hardened write paths:
//   - UpsertConversation: blocked-rejection + atomic unread increment
//   - InsertMessage: (sender, body, ±window) dedup
//
// Schema evolution is additive and idempotent: column presence is checked
// against the live schema, never against the stored version number,
// because the database may be opened concurrently by owners with
// different expected versions.
