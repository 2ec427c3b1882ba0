// Package politeness paces requests against the archive: robots.txt checks
// and crawl delays per origin, jittered human-like delays, exponential
// backoff and randomized browser fingerprints.
package politeness
