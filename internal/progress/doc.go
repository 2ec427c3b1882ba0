// Package progress carries crawl milestones from the orchestrator to its
// observers. Events go through a Hub: the supervisor signal stream receives
// them synchronously and losslessly, while metrics, logs and the run ledger
// are fed in batches from a bounded queue.
package progress
