// Package vecstore provides a vector approximate nearest-neighbor (ANN)
// search interface and implementations.
//
// The [Index] interface defines the contract for vector storage and search.
// Implementations include an in-memory brute-force index for testing
// ([NewMemory]) and HNSW for on-disk deployments ([NewHNSW] plus
// [HNSW.Save] / [LoadHNSW] for persistence).
//
// Vector IDs are uint64, matching the numeric point IDs the store layer
// derives from record keys. This package follows the same pattern as [kv]:
// a generic interface with pluggable backends.
package vecstore

// Index is the interface for approximate nearest-neighbor search over
// dense float32 vectors.
//
// All implementations must be safe for concurrent use.
type Index interface {
	// Insert adds or updates a vector with the given ID.
	Insert(id uint64, vector []float32) error

	// BatchInsert adds or updates multiple vectors at once.
	// ids and vectors must have the same length.
	BatchInsert(ids []uint64, vectors [][]float32) error

	// Search returns the top-k nearest vectors to the query.
	// Results are ordered by ascending distance (closest first).
	Search(query []float32, topK int) ([]Match, error)

	// Delete removes a vector by ID. No error if ID does not exist.
	Delete(id uint64) error

	// Len returns the number of vectors in the index.
	Len() int

	// Flush ensures all pending writes are visible to subsequent searches.
	// For in-memory implementations this is typically a no-op.
	Flush() error

	// Close releases resources held by the index.
	Close() error
}

// Match is a single result from a vector similarity search.
type Match struct {
	// ID is the identifier of the matched vector.
	ID uint64

	// Distance is the distance between the query and matched vector.
	// Lower values indicate higher similarity.
	Distance float32
}
