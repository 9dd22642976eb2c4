// Package service wires Sentio's embedding model, vector index, article store
// and sync coordinator into one process-wide graph.
//
// It is intended for embedding Sentio into other programs without going
// through the HTTP or CLI surfaces; every component is constructed once by New
// and shared by reference.
package service
