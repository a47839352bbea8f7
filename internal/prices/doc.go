// Package prices owns the price data layer: fetching daily closes from
// the chart source, the per-market CSV cache, and the acceptance rules
// that decide which instruments enter a market's universe.
//
// The cache is idempotent. A market whose cache files exist is served
// from disk without touching the source; a forced refresh rewrites the
// files from fresh fetches. Instruments whose history cannot be fetched
// or fails acceptance are excluded and reported, never silently padded.
package prices
