package models

// UnknownDate is the date assigned to text that precedes the first dated newsletter.
const UnknownDate = "Unknown"

// Chunk is a titled, dated excerpt of the newsletter corpus. Embedding is
// empty until the index has been populated.
type Chunk struct {
	Text      string    `json:"text"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// HasEmbedding reports whether the chunk carries a vector.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}
