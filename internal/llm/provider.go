package llm

import "context"

// Embedder convierte texto en un vector. Es una caja negra que puede fallar de forma transitoria:
// los llamadores reintentan via la cola de embeddings, nunca en linea.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}
