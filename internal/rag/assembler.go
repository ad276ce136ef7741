// internal/rag/assembler.go
package rag

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentcoord/internal/types"
)

// Embedder produces embedding vectors for semantic retrieval. It is
// optional; without one the assembler runs on keyword, recency, and
// relationship signals only.
type Embedder interface {
	Embed(text string) ([]float64, error)
}

// candidateK bounds each candidate-collection source
const candidateK = 50

// summaryTokenCap bounds synthesized summary length
const summaryTokenCap = 200

// Query is one context-assembly request
type Query struct {
	ProjectID string
	AgentID   string
	Text      string
	Budget    int
	Strategy  Strategy
}

// Assembler selects chunks and synthesized summaries within a token
// budget. Selection is deterministic for a fixed candidate set; ties
// break on lexicographic chunk id.
type Assembler struct {
	store     *ChunkStore
	embedder  Embedder
	costCache *lru.Cache[string, int]
}

// NewAssembler creates an assembler. embedder may be nil.
func NewAssembler(store *ChunkStore, embedder Embedder, cacheSize int) (*Assembler, error) {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cache, err := lru.New[string, int](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &Assembler{store: store, embedder: embedder, costCache: cache}, nil
}

// Assemble runs candidate collection and the requested strategy. The
// returned selection never exceeds the budget.
func (a *Assembler) Assemble(q Query) (*Selection, error) {
	if q.Budget <= 0 {
		return nil, types.InvalidArgumentf("token budget must be positive")
	}
	if q.Strategy == "" {
		q.Strategy = StrategyHybrid
	}
	if !q.Strategy.Valid() {
		return nil, types.InvalidArgumentf("unknown strategy %q", q.Strategy)
	}

	candidates, queryVec, err := a.collect(q)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Strategy: q.Strategy, Budget: q.Budget}
	switch q.Strategy {
	case StrategyHierarchical:
		a.selectHierarchical(sel, candidates, q.Budget)
	case StrategyClustering:
		a.selectClustering(sel, candidates, queryVec, q.Budget)
	case StrategyTemporal:
		a.selectTemporal(sel, candidates, q.Budget, time.Now())
	case StrategyHybrid:
		a.selectHybrid(sel, candidates, q.Budget, time.Now())
	}

	ids := make([]string, 0, len(sel.Chunks))
	for _, c := range sel.Chunks {
		ids = append(ids, c.ID)
	}
	if err := a.store.Touch(ids); err != nil {
		return nil, err
	}

	// Synthesized summaries are kept for later summary queries. A
	// failed save degrades reuse, not this selection.
	for _, sum := range sel.Summaries {
		if err := a.store.SaveSummary(q.ProjectID, sum); err != nil {
			log.Printf("[RAG] Failed to persist summary %s: %v", sum.ID, err)
		}
	}
	return sel, nil
}

// collect unions semantic, keyword, recent, and one-hop relationship
// candidates, deduplicated by id and sorted for determinism.
func (a *Assembler) collect(q Query) ([]*Chunk, []float64, error) {
	seen := make(map[string]*Chunk)
	add := func(chunks []*Chunk) {
		for _, c := range chunks {
			if _, ok := seen[c.ID]; !ok {
				seen[c.ID] = c
			}
		}
	}

	keyword, err := a.store.Keyword(q.ProjectID, q.Text, candidateK)
	if err != nil {
		return nil, nil, err
	}
	add(keyword)

	recent, err := a.store.Recent(q.ProjectID, q.AgentID, candidateK/2)
	if err != nil {
		return nil, nil, err
	}
	add(recent)

	var queryVec []float64
	if a.embedder != nil {
		queryVec, err = a.embedder.Embed(q.Text)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to embed query: %w", err)
		}
		all, err := a.store.All(q.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		add(topBySimilarity(all, queryVec, candidateK))
	}

	// One hop through relationships of everything gathered so far.
	var hops []string
	for _, c := range seen {
		for _, rel := range c.Relationships {
			if _, ok := seen[rel]; !ok {
				hops = append(hops, rel)
			}
		}
	}
	related, err := a.store.ByIDs(hops)
	if err != nil {
		return nil, nil, err
	}
	add(related)

	out := make([]*Chunk, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, queryVec, nil
}

func topBySimilarity(chunks []*Chunk, queryVec []float64, k int) []*Chunk {
	type scored struct {
		chunk *Chunk
		sim   float64
	}
	var withVec []scored
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		withVec = append(withVec, scored{c, cosine(c.Embedding, queryVec)})
	}
	sort.Slice(withVec, func(i, j int) bool {
		if withVec[i].sim != withVec[j].sim {
			return withVec[i].sim > withVec[j].sim
		}
		return withVec[i].chunk.ID < withVec[j].chunk.ID
	})
	if len(withVec) > k {
		withVec = withVec[:k]
	}
	out := make([]*Chunk, len(withVec))
	for i, s := range withVec {
		out[i] = s.chunk
	}
	return out
}

// cost returns the chunk's token charge through the LRU cache
func (a *Assembler) cost(c *Chunk) int {
	key := fmt.Sprintf("%s:%d:%d", c.ID, len(c.Content), len(c.Summary))
	if cached, ok := a.costCache.Get(key); ok {
		return cached
	}
	cost := c.Cost()
	a.costCache.Add(key, cost)
	return cost
}

// knapsackItem is one greedy-knapsack entry
type knapsackItem struct {
	id      string
	value   float64
	weight  int
	chunk   *Chunk
	summary *Summary
}

// selectHierarchical clusters by type, synthesizes one summary per
// cluster, and greedily packs chunks and summaries by value density.
func (a *Assembler) selectHierarchical(sel *Selection, candidates []*Chunk, budget int) {
	items := make([]knapsackItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, knapsackItem{
			id:     c.ID,
			value:  c.Relevance * 100,
			weight: a.cost(c),
			chunk:  c,
		})
	}
	for _, group := range groupByType(candidates) {
		if len(group) < 2 {
			continue
		}
		summary := synthesize(group)
		items = append(items, knapsackItem{
			id:      summary.ID,
			value:   summary.Relevance * 80,
			weight:  summary.Tokens,
			summary: summary,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		di := density(items[i])
		dj := density(items[j])
		if di != dj {
			return di > dj
		}
		return items[i].id < items[j].id
	})

	covered := make(map[string]bool)
	for _, item := range items {
		if item.weight > budget-sel.TotalTokens {
			continue
		}
		if item.chunk != nil {
			if covered[item.chunk.ID] {
				continue
			}
			sel.Chunks = append(sel.Chunks, item.chunk)
			covered[item.chunk.ID] = true
			sel.TotalTokens += item.weight
			continue
		}
		// A summary adds nothing once all its sources are in.
		missing := false
		for _, src := range item.summary.SourceIDs {
			if !covered[src] {
				missing = true
				break
			}
		}
		if !missing {
			continue
		}
		sel.Summaries = append(sel.Summaries, item.summary)
		sel.TotalTokens += item.weight
	}
}

func density(item knapsackItem) float64 {
	if item.weight <= 0 {
		return item.value
	}
	return item.value / float64(item.weight)
}

// selectClustering partitions by embedding, ranks clusters against the
// query vector, and spends an even share of the budget per cluster.
// The unselected remainder of each cluster becomes a summary.
func (a *Assembler) selectClustering(sel *Selection, candidates []*Chunk, queryVec []float64, budget int) {
	if len(candidates) == 0 {
		return
	}
	k := len(candidates)/5 + 1
	if k > 20 {
		k = 20
	}
	clusters := kmeans(candidates, k)

	sort.Slice(clusters, func(i, j int) bool {
		si := cosine(clusters[i].centroid, queryVec)
		sj := cosine(clusters[j].centroid, queryVec)
		if si != sj {
			return si > sj
		}
		return clusters[i].chunks[0].ID < clusters[j].chunks[0].ID
	})

	share := budget / len(clusters)
	if share < 1 {
		share = budget
	}
	for _, cl := range clusters {
		sorted := append([]*Chunk(nil), cl.chunks...)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Relevance != sorted[j].Relevance {
				return sorted[i].Relevance > sorted[j].Relevance
			}
			return sorted[i].ID < sorted[j].ID
		})

		spent := 0
		var leftover []*Chunk
		for _, c := range sorted {
			w := a.cost(c)
			if spent+w <= share && sel.TotalTokens+w <= budget {
				sel.Chunks = append(sel.Chunks, c)
				sel.TotalTokens += w
				spent += w
			} else {
				leftover = append(leftover, c)
			}
		}
		if len(leftover) >= 2 {
			summary := synthesize(leftover)
			if sel.TotalTokens+summary.Tokens <= budget {
				sel.Summaries = append(sel.Summaries, summary)
				sel.TotalTokens += summary.Tokens
			}
		}
	}
}

// temporalScore combines relevance with exponential age decay: 14-day
// half-life on creation age, 7-day on last access.
func temporalScore(c *Chunk, now time.Time) float64 {
	age := now.Sub(c.CreatedAt).Hours() / 24
	sinceAccess := now.Sub(c.LastAccessed).Hours() / 24
	decay := 0.5*halfLife(age, 14) + 0.5*halfLife(sinceAccess, 7)
	return c.Relevance * decay
}

func halfLife(days, half float64) float64 {
	if days < 0 {
		days = 0
	}
	return math.Exp2(-days / half)
}

// selectTemporal sorts by decayed relevance and takes until the budget
// is exhausted.
func (a *Assembler) selectTemporal(sel *Selection, candidates []*Chunk, budget int, now time.Time) {
	sorted := append([]*Chunk(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		si := temporalScore(sorted[i], now)
		sj := temporalScore(sorted[j], now)
		if si != sj {
			return si > sj
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, c := range sorted {
		w := a.cost(c)
		if sel.TotalTokens+w > budget {
			continue
		}
		sel.Chunks = append(sel.Chunks, c)
		sel.TotalTokens += w
	}
}

// hybridScore is the multi-criteria blend used by the hybrid strategy
func hybridScore(c *Chunk, now time.Time) float64 {
	popularity := float64(c.AccessCount) / 10
	if popularity > 1 {
		popularity = 1
	}
	relBoost := float64(len(c.Relationships)) / 5
	if relBoost > 1 {
		relBoost = 1
	}
	temporal := 0.5*halfLife(now.Sub(c.CreatedAt).Hours()/24, 14) +
		0.5*halfLife(now.Sub(c.LastAccessed).Hours()/24, 7)
	return 0.4*c.Relevance + 0.2*temporal + 0.1*popularity +
		0.2*importanceOf(c.Type) + 0.1*relBoost
}

// selectHybrid fills 80% of the budget while rotating across chunk
// types for diversity, then summarizes remaining same-type groups of
// three or more chunks, then tops up with leftover chunks.
func (a *Assembler) selectHybrid(sel *Selection, candidates []*Chunk, budget int, now time.Time) {
	groups := groupByType(candidates)
	typeNames := make([]string, 0, len(groups))
	for name := range groups {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)
	for _, name := range typeNames {
		group := groups[name]
		sort.Slice(group, func(i, j int) bool {
			si := hybridScore(group[i], now)
			sj := hybridScore(group[j], now)
			if si != sj {
				return si > sj
			}
			return group[i].ID < group[j].ID
		})
	}

	firstPass := budget * 8 / 10
	selected := make(map[string]bool)
	next := make(map[string]int)
	for {
		advanced := false
		for _, name := range typeNames {
			group := groups[name]
			i := next[name]
			for i < len(group) {
				c := group[i]
				w := a.cost(c)
				if sel.TotalTokens+w <= firstPass {
					sel.Chunks = append(sel.Chunks, c)
					selected[c.ID] = true
					sel.TotalTokens += w
					i++
					advanced = true
					break
				}
				i++
			}
			next[name] = i
		}
		if !advanced {
			break
		}
	}

	// Second pass: summarize high-value unselected groups.
	for _, name := range typeNames {
		var rest []*Chunk
		combined := 0.0
		for _, c := range groups[name] {
			if !selected[c.ID] {
				rest = append(rest, c)
				combined += c.Relevance
			}
		}
		if len(rest) < 3 || combined <= 0.6 {
			continue
		}
		summary := synthesize(rest)
		if sel.TotalTokens+summary.Tokens <= budget {
			sel.Summaries = append(sel.Summaries, summary)
			sel.TotalTokens += summary.Tokens
		}
	}

	// Top up any leftover budget with the best remaining chunks.
	var rest []*Chunk
	for _, c := range candidates {
		if !selected[c.ID] {
			rest = append(rest, c)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		si := hybridScore(rest[i], now)
		sj := hybridScore(rest[j], now)
		if si != sj {
			return si > sj
		}
		return rest[i].ID < rest[j].ID
	})
	for _, c := range rest {
		w := a.cost(c)
		if sel.TotalTokens+w > budget {
			continue
		}
		sel.Chunks = append(sel.Chunks, c)
		selected[c.ID] = true
		sel.TotalTokens += w
	}
}

func groupByType(chunks []*Chunk) map[string][]*Chunk {
	groups := make(map[string][]*Chunk)
	for _, c := range chunks {
		groups[c.Type] = append(groups[c.Type], c)
	}
	return groups
}

// synthesize builds an extractive summary over a group of chunks:
// the lead fragment of each of the most relevant sources, bounded by
// summaryTokenCap. Deterministic for a fixed group.
func synthesize(group []*Chunk) *Summary {
	sorted := append([]*Chunk(nil), group...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Relevance != sorted[j].Relevance {
			return sorted[i].Relevance > sorted[j].Relevance
		}
		return sorted[i].ID < sorted[j].ID
	})

	var parts []string
	var sources []string
	total := 0.0
	for i, c := range sorted {
		sources = append(sources, c.ID)
		total += c.Relevance
		if i < 5 {
			parts = append(parts, lead(c))
		}
	}
	sort.Strings(sources)

	content := TruncateToTokens(strings.Join(parts, " "), summaryTokenCap)
	return &Summary{
		ID:        "sum-" + sorted[0].Type + "-" + sorted[0].ID,
		Type:      sorted[0].Type,
		Content:   content,
		Tokens:    CountTokens(content),
		SourceIDs: sources,
		Relevance: total / float64(len(sorted)),
	}
}

// lead returns a chunk's summary if present, else its first sentence
func lead(c *Chunk) string {
	if c.Summary != "" {
		return c.Summary
	}
	content := strings.TrimSpace(c.Content)
	if idx := strings.IndexAny(content, ".!?\n"); idx > 0 && idx < len(content)-1 {
		return content[:idx+1]
	}
	return TruncateToTokens(content, 30)
}
