// Package vector owns all Qdrant operations: collection lifecycle, document
// upserts, and k-NN similarity search over movie and user embeddings.
package vector

// Hit is a single k-NN search result. Transient, never persisted.
type Hit struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	URL   string  `json:"url"`
	Score float32 `json:"score"`
}

// Document is an indexed copy of an entity's identity and embedding. The
// point id equals the entity id, so re-indexing overwrites rather than
// duplicates.
type Document struct {
	ID        int64
	Name      string
	URL       string
	Embedding []float32
}
