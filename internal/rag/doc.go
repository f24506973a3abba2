// Package rag holds the domain types and capability ports of the
// retrieval-augmented chat pipeline.
//
// This package provides:
//   - Document, Message and generation option types shared by every layer
//   - Ports for the embedding model, vector store, chat model and document sources
//   - Metadata filter expressions evaluated in-process or translated by stores
//   - Similarity and ordering helpers used by the vector store adapters
//
// Nothing here performs I/O; adapters live under services/providers and repositories.
package rag
