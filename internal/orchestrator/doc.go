// Package orchestrator drives one crawl task end to end: it plans the search
// periods, pages through each period's results, and extracts, corrects and
// archives every article in discovery order. A run can be stopped between
// articles by creating the stop marker file or cancelling the context.
package orchestrator
