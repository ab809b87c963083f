// Package types defines the shared data model of the engine: extracted pages
// and boundaries on the ingestion side, chunks as the retrieval atom, and the
// sub-query/partial-answer/final-answer artifacts of the query path, together
// with the structured error taxonomy used across packages.
package types
