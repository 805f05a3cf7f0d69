package store

// KnowledgeEmbedding represents a stored vector in a knowledge namespace.
// Vectors are only comparable within the same (namespace, model version) slice.
type KnowledgeEmbedding struct {
	ID           int64
	Namespace    string
	Key          string
	Embedding    []float32
	ModelVersion string
	SourceType   string // curated/user/generated/...
	Source       string
	Content      string
	Confidence   float32 // 0-1
	UpdatedTs    int64
}

// FindKnowledgeEmbedding specifies the conditions for finding knowledge embeddings.
type FindKnowledgeEmbedding struct {
	Namespace    *string
	Key          *string
	ModelVersion *string
	SourceType   *string
	Limit        int
}

// DeleteKnowledgeEmbedding specifies the conditions for deleting knowledge
// embeddings. A nil ModelVersion deletes every stored version of the key.
type DeleteKnowledgeEmbedding struct {
	Namespace    string
	Key          string
	ModelVersion *string
}

// VectorSearchOptions specifies a similarity search within one namespace.
type VectorSearchOptions struct {
	Namespace     string
	ModelVersion  string
	Embedding     []float32
	Limit         int
	MinConfidence float32
	SourceType    *string
}

// KnowledgeMatch is a knowledge embedding with its similarity score.
type KnowledgeMatch struct {
	Embedding  *KnowledgeEmbedding
	Similarity float32
}
