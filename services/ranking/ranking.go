// Package ranking scores chunks against a query vector.
package ranking

import (
	"math"
	"sort"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
)

// Cosine returns dot(a,b) / (|a| |b|). Vectors of different lengths, and
// zero-length or zero-norm vectors, score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores every chunk against query and returns the best topK in
// descending score order. Equal scores keep their input order. The input
// slice is not modified.
func Rank(query []float64, chunks []models.Chunk, topK int) []models.ScoredChunk {
	if topK <= 0 || len(chunks) == 0 {
		return nil
	}

	scored := make([]models.ScoredChunk, len(chunks))
	for i, ch := range chunks {
		scored[i] = models.ScoredChunk{Chunk: ch, Score: Cosine(query, ch.Embedding)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK]
}
