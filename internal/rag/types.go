// internal/rag/types.go
package rag

import (
	"time"

	"github.com/agentcoord/internal/types"
)

// Strategy selects how the assembler packs the token budget
type Strategy string

const (
	StrategyHierarchical Strategy = "hierarchical"
	StrategyClustering   Strategy = "semantic_clustering"
	StrategyTemporal     Strategy = "temporal_priority"
	StrategyHybrid       Strategy = "hybrid"
)

// Valid reports whether s is a defined strategy
func (s Strategy) Valid() bool {
	switch s {
	case StrategyHierarchical, StrategyClustering, StrategyTemporal, StrategyHybrid:
		return true
	}
	return false
}

// Chunk is a bounded, typed slice of content with retrieval metadata
type Chunk struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	AgentID       string    `json:"agent_id,omitempty"`
	Type          string    `json:"type"`
	Content       string    `json:"content"`
	Summary       string    `json:"summary,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
	Relationships []string  `json:"relationships,omitempty"`
	Embedding     []float64 `json:"embedding,omitempty"`
	Relevance     float64   `json:"relevance"`
	AccessCount   int       `json:"access_count"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessed  time.Time `json:"last_accessed"`
}

// Cost is the chunk's token charge: the larger of content and summary,
// since either rendition may be emitted.
func (c *Chunk) Cost() int {
	content := CountTokens(c.Content)
	if summary := CountTokens(c.Summary); summary > content {
		return summary
	}
	return content
}

// Validate checks chunk fields
func (c *Chunk) Validate() error {
	if c.ProjectID == "" {
		return types.InvalidArgumentf("chunk project_id is required")
	}
	if c.Content == "" {
		return types.InvalidArgumentf("chunk content is required")
	}
	if c.Type == "" {
		return types.InvalidArgumentf("chunk type is required")
	}
	if c.Relevance < 0 || c.Relevance > 1 {
		return types.InvalidArgumentf("chunk relevance must be in [0,1]")
	}
	return nil
}

// typeImportance weights chunk types for the hybrid score
var typeImportance = map[string]float64{
	"decision":      1.0,
	"task":          0.9,
	"code":          0.85,
	"conversation":  0.7,
	"documentation": 0.6,
	"note":          0.4,
}

// importanceOf returns the hybrid type weight, 0.5 for unknown types
func importanceOf(chunkType string) float64 {
	if w, ok := typeImportance[chunkType]; ok {
		return w
	}
	return 0.5
}

// Summary is synthesized context covering several source chunks
type Summary struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Content   string   `json:"content"`
	Tokens    int      `json:"tokens"`
	SourceIDs []string `json:"source_ids"`
	Relevance float64  `json:"relevance"`
}

// Selection is an assembled context within a token budget
type Selection struct {
	Strategy    Strategy   `json:"strategy"`
	Chunks      []*Chunk   `json:"chunks"`
	Summaries   []*Summary `json:"summaries,omitempty"`
	TotalTokens int        `json:"total_tokens"`
	Budget      int        `json:"budget"`
}
