// Package handler implements the HTTP API of the sync service.
//
// # Sources
//
// /api/sources lists every registered element with the summary of its last
// cycle. Per source, the API exposes the tracked attribute state, the last
// cycle result, the delta journal and a manual sync. A manual sync answers
// 404 for an unknown source and 409 for a disabled one. When the cycle ran
// but the push failed, the response carries the run and 502.
//
// # Catalog
//
// /api/catalog returns the active schema catalog, including any overlay
// loaded from disk. /api/catalog/protocols/{protocol} returns one connector.
//
// # Operations
//
// /health, /metrics (Prometheus) and /events (Server-Sent Events stream of
// pushed batches) are mounted when configured.
//
// Errors are returned as JSON with {error, details}.
package handler
