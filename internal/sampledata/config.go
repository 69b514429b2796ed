// Package sampledata generates synthetic KOI tables and drives them through
// a running classifier as an end-to-end smoke test.
package sampledata

import "time"

// Options controls the shape of a generated table.
type Options struct {
	Rows      int    // Valid rows to generate
	Seed      uint64 // 0 seeds from the clock
	Aliases   bool   // Use descriptive headers that need alias renaming
	Semicolon bool   // Separate fields with ';'
	Extra     int    // Unrelated columns appended after the features
	Malformed int    // Rows with a wrong field count appended at the end
	Workers   int    // Generation goroutines
}

// Config holds configuration for a submit run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Batches  int           // Number of tables to submit
	Workers  int           // Concurrent submissions
	Timeout  time.Duration // HTTP request timeout
	Generate Options
}

// Submission is the decoded reply of POST /api/v1/classify.
type Submission struct {
	ID          string         `json:"id"`
	Strategy    string         `json:"strategy"`
	Rows        int            `json:"rows"`
	Skipped     int            `json:"skipped"`
	Counts      map[string]int `json:"counts"`
	Renamed     []struct{}     `json:"renamed"`
	Predictions []string       `json:"predictions"`
}

// Report aggregates the outcome of a submit run.
type Report struct {
	Batches  int
	Rows     int
	Skipped  int
	Renamed  int
	Strategy string
	Counts   map[string]int
	Duration time.Duration
}
