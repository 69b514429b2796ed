package model

import "time"

// Chunk is a contiguous slice of a batch scheduled for classification.
// Workers answer on Reply, which the producer sizes so sends never block.
type Chunk struct {
	BatchID  string
	Index    int
	Rows     []Row
	Enqueued time.Time
	Reply    chan<- ChunkResult
}

// ChunkResult carries the labels for one Chunk, in row order.
type ChunkResult struct {
	BatchID string
	Index   int
	Labels  []Label
	Err     error
}
