// Package archive persists crawled articles under a deterministic identity.
//
// Layout below the storage root:
//
//	raw/<baseID>.txt                          immutable first capture
//	processed/<baseID>.json                   canonical record, last write wins
//	processed/versions/<baseID>/<id>.json     one file per version, never rewritten
//	by_topic/<topic>/<baseID>.json            symlink or pointer to the canonical record
//
// The store assumes a single writer per root.
package archive
