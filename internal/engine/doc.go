// Package engine owns the loaded model handle. It selects an inference
// backend, loads exactly one model at startup, and guards generation calls so
// that a backend which is not safe for concurrent use only ever sees one call
// at a time.
package engine
