// Package crawler defines the domain types, capability interfaces and typed
// errors shared by the fetcher, search, archive and orchestrator packages.
package crawler
