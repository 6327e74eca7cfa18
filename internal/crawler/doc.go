// Package crawler defines the domain model of a single-origin crawl: URL
// normalization, the admission gate that owns the visited set and page budget,
// per-URL results, crawl statistics, and the collaborator interfaces consumed by
// the fetch/save/parse pipeline.
package crawler
