// Package scraper implements the orchestration engine that turns a list of
// registry job identifiers into extracted records: chunked concurrent
// scheduling over a fixed browser-session pool, human-paced delays, and a
// global failure cooldown.
package scraper
