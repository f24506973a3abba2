package rag

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of different length or with zero magnitude score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortByScore orders documents by descending score, breaking ties by id so
// results are stable across stores.
func SortByScore(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score == docs[j].Score {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].Score > docs[j].Score
	})
}

// SelectTop sorts docs, drops everything scoring below threshold and keeps
// at most topK entries. topK <= 0 means no limit.
func SelectTop(docs []Document, topK int, threshold float64) []Document {
	kept := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Score >= threshold {
			kept = append(kept, d)
		}
	}
	SortByScore(kept)
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
