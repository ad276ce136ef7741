// internal/rag/assembler_test.go
package rag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/types"
)

func newTestAssembler(t *testing.T, embedder Embedder) (*Assembler, *ChunkStore) {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := NewChunkStore(conn)
	if err != nil {
		t.Fatalf("chunk store: %v", err)
	}
	asm, err := NewAssembler(store, embedder, 100)
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	return asm, store
}

func addChunk(t *testing.T, store *ChunkStore, id, chunkType, content string, relevance float64) *Chunk {
	t.Helper()
	chunk := &Chunk{
		ID:        id,
		ProjectID: "proj-1",
		Type:      chunkType,
		Content:   content,
		Relevance: relevance,
	}
	if err := store.Add(chunk); err != nil {
		t.Fatalf("add chunk %s: %v", id, err)
	}
	return chunk
}

// filler produces content of roughly n tokens containing the marker
func filler(marker string, n int) string {
	words := make([]string, 0, n)
	words = append(words, marker)
	for len(words) < n {
		words = append(words, "coordination")
	}
	return strings.Join(words, " ")
}

func selectionCost(sel *Selection) int {
	total := 0
	for _, c := range sel.Chunks {
		total += c.Cost()
	}
	for _, s := range sel.Summaries {
		total += s.Tokens
	}
	return total
}

func TestHybridBudgetAndSummaries(t *testing.T) {
	asm, store := newTestAssembler(t, nil)

	chunkTypes := []string{"decision", "code", "conversation", "note"}
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("chunk-%03d", i)
		addChunk(t, store, id, chunkTypes[i%len(chunkTypes)], filler("alpha", 300), 0.3+float64(i%7)*0.1)
	}

	sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "alpha", Budget: 10000, Strategy: StrategyHybrid})
	if err != nil {
		t.Fatal(err)
	}
	if sel.TotalTokens > 10000 {
		t.Errorf("selection exceeds budget: %d > 10000", sel.TotalTokens)
	}
	if got := selectionCost(sel); got > 10000 {
		t.Errorf("recomputed cost exceeds budget: %d", got)
	}
	if len(sel.Chunks) == 0 {
		t.Fatal("expected chunks in selection")
	}
	if len(sel.Summaries) == 0 {
		t.Error("expected at least one synthesized summary for unselected groups")
	}

	// First pass spreads across types.
	typesSeen := make(map[string]bool)
	for _, c := range sel.Chunks {
		typesSeen[c.Type] = true
	}
	if len(typesSeen) < 2 {
		t.Errorf("hybrid should diversify types, saw %v", typesSeen)
	}
}

func TestAssemblePersistsSummaries(t *testing.T) {
	asm, store := newTestAssembler(t, nil)

	for i := 0; i < 20; i++ {
		addChunk(t, store, fmt.Sprintf("dec-%02d", i), "decision", filler("beta", 300), 0.8)
	}

	sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "beta", Budget: 2000, Strategy: StrategyHybrid})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Summaries) == 0 {
		t.Fatal("expected synthesized summaries for the unselected remainder")
	}

	saved, err := store.Summaries("proj-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	byID := make(map[string]*Summary, len(saved))
	for _, s := range saved {
		byID[s.ID] = s
	}
	for _, want := range sel.Summaries {
		got, ok := byID[want.ID]
		if !ok {
			t.Fatalf("summary %s not persisted", want.ID)
		}
		if got.Content != want.Content || got.Tokens != want.Tokens || len(got.SourceIDs) != len(want.SourceIDs) {
			t.Errorf("persisted summary %s differs: %+v vs %+v", want.ID, got, want)
		}
	}

	// Re-assembly upserts rather than duplicating.
	if _, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "beta", Budget: 2000, Strategy: StrategyHybrid}); err != nil {
		t.Fatal(err)
	}
	again, err := store.Summaries("proj-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(saved) {
		t.Errorf("re-assembly should upsert summaries, got %d then %d", len(saved), len(again))
	}

	// Other projects see nothing.
	other, err := store.Summaries("proj-2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("expected no summaries for proj-2, got %d", len(other))
	}
}

func TestHierarchicalDeterministicWithinBudget(t *testing.T) {
	asm, store := newTestAssembler(t, nil)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("c-%02d", i)
		addChunk(t, store, id, "code", filler("beta", 120), 0.2+float64(i%5)*0.15)
	}

	run := func() []string {
		sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "beta", Budget: 2000, Strategy: StrategyHierarchical})
		if err != nil {
			t.Fatal(err)
		}
		if sel.TotalTokens > 2000 {
			t.Fatalf("budget exceeded: %d", sel.TotalTokens)
		}
		ids := make([]string, 0, len(sel.Chunks))
		for _, c := range sel.Chunks {
			ids = append(ids, c.ID)
		}
		return ids
	}

	first := run()
	second := run()
	if len(first) == 0 {
		t.Fatal("expected a non-empty selection")
	}
	if len(first) != len(second) {
		t.Fatalf("selection size changed between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("selection differs at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestTemporalPrefersRecentAndAccessed(t *testing.T) {
	asm, store := newTestAssembler(t, nil)

	old := &Chunk{
		ID: "old", ProjectID: "proj-1", Type: "note",
		Content:      filler("gamma", 40),
		Relevance:    0.8,
		CreatedAt:    time.Now().Add(-60 * 24 * time.Hour),
		LastAccessed: time.Now().Add(-60 * 24 * time.Hour),
	}
	fresh := &Chunk{
		ID: "fresh", ProjectID: "proj-1", Type: "note",
		Content:   filler("gamma", 40),
		Relevance: 0.8,
	}
	for _, c := range []*Chunk{old, fresh} {
		if err := store.Add(c); err != nil {
			t.Fatal(err)
		}
	}

	// Budget fits exactly one chunk; decay must pick the fresh one.
	budget := fresh.Cost()
	sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "gamma", Budget: budget, Strategy: StrategyTemporal})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Chunks) != 1 || sel.Chunks[0].ID != "fresh" {
		t.Errorf("expected fresh chunk to win, got %+v", sel.Chunks)
	}
}

// axisEmbedder embeds along two axes keyed by a content marker
type axisEmbedder struct{}

func (axisEmbedder) Embed(text string) ([]float64, error) {
	if strings.Contains(text, "storage") {
		return []float64{1, 0}, nil
	}
	return []float64{0, 1}, nil
}

func TestClusteringGroupsByEmbedding(t *testing.T) {
	asm, store := newTestAssembler(t, axisEmbedder{})

	for i := 0; i < 6; i++ {
		chunk := &Chunk{
			ID:        fmt.Sprintf("s-%d", i),
			ProjectID: "proj-1",
			Type:      "code",
			Content:   filler("storage", 10),
			Relevance: 0.9,
			Embedding: []float64{1, 0},
		}
		if err := store.Add(chunk); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 6; i++ {
		chunk := &Chunk{
			ID:        fmt.Sprintf("u-%d", i),
			ProjectID: "proj-1",
			Type:      "code",
			Content:   filler("unrelated", 10),
			Relevance: 0.9,
			Embedding: []float64{0, 1},
		}
		if err := store.Add(chunk); err != nil {
			t.Fatal(err)
		}
	}

	sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "storage", Budget: 200, Strategy: StrategyClustering})
	if err != nil {
		t.Fatal(err)
	}
	if sel.TotalTokens > 200 {
		t.Fatalf("budget exceeded: %d", sel.TotalTokens)
	}
	if len(sel.Chunks) == 0 {
		t.Fatal("expected chunks selected")
	}
	// The query-aligned cluster is ranked first, so its chunks lead.
	if !strings.HasPrefix(sel.Chunks[0].ID, "s-") {
		t.Errorf("expected storage cluster first, got %s", sel.Chunks[0].ID)
	}
}

func TestBudgetTooSmallSelectsNothing(t *testing.T) {
	asm, store := newTestAssembler(t, nil)
	addChunk(t, store, "big", "code", filler("delta", 500), 0.9)

	sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "delta", Budget: 10, Strategy: StrategyTemporal})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Chunks) != 0 || sel.TotalTokens != 0 {
		t.Errorf("nothing should fit a 10-token budget, got %+v", sel)
	}

	if _, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "delta", Budget: 0}); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("zero budget should be rejected, got %v", err)
	}
	if _, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "delta", Budget: 10, Strategy: Strategy("magic")}); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("unknown strategy should be rejected, got %v", err)
	}
}

func TestChunkCostIsMaxOfContentAndSummary(t *testing.T) {
	short := &Chunk{Content: "one two three"}
	if got := short.Cost(); got != CountTokens("one two three") {
		t.Errorf("cost without summary should equal content tokens, got %d", got)
	}

	longSummary := &Chunk{Content: "tiny", Summary: filler("x", 50)}
	if got := longSummary.Cost(); got != CountTokens(longSummary.Summary) {
		t.Errorf("cost should take the larger summary, got %d", got)
	}
}

func TestAssembleTouchesSelection(t *testing.T) {
	asm, store := newTestAssembler(t, nil)
	addChunk(t, store, "touched", "note", filler("epsilon", 20), 0.9)

	if _, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "epsilon", Budget: 1000, Strategy: StrategyTemporal}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get("touched")
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessCount != 1 {
		t.Errorf("selected chunk should record the access, got %d", got.AccessCount)
	}
}

func TestOneHopRelationshipCandidates(t *testing.T) {
	asm, store := newTestAssembler(t, nil)

	hidden := &Chunk{
		ID: "hidden", ProjectID: "proj-1", Type: "decision",
		Content: filler("unmentioned", 20), Relevance: 0.9,
		CreatedAt: time.Now().Add(-365 * 24 * time.Hour),
	}
	if err := store.Add(hidden); err != nil {
		t.Fatal(err)
	}
	linked := &Chunk{
		ID: "linked", ProjectID: "proj-1", Type: "decision",
		Content: filler("zeta", 20), Relevance: 0.9,
		Relationships: []string{"hidden", "missing-id"},
	}
	if err := store.Add(linked); err != nil {
		t.Fatal(err)
	}

	sel, err := asm.Assemble(Query{ProjectID: "proj-1", Text: "zeta", Budget: 1000, Strategy: StrategyTemporal})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range sel.Chunks {
		if c.ID == "hidden" {
			found = true
		}
	}
	if !found {
		t.Error("one-hop relationship should pull in the hidden chunk")
	}
}
