// internal/rag/kmeans.go
package rag

import (
	"math"
	"sort"
)

// cosine returns the cosine similarity of two vectors, 0 when either
// is empty or zero.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// cluster is one k-means group of chunks
type cluster struct {
	centroid []float64
	chunks   []*Chunk
}

// kmeans groups chunks by embedding. Initialization and assignment are
// deterministic: chunks are processed in id order and centroids seed
// from evenly spaced chunks.
func kmeans(chunks []*Chunk, k int) []*cluster {
	if len(chunks) == 0 {
		return nil
	}
	sorted := append([]*Chunk(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	if k < 1 {
		k = 1
	}
	if k > len(sorted) {
		k = len(sorted)
	}

	dim := 0
	for _, c := range sorted {
		if len(c.Embedding) > dim {
			dim = len(c.Embedding)
		}
	}
	if dim == 0 {
		// No embeddings at all: a single catch-all cluster.
		return []*cluster{{chunks: sorted}}
	}

	clusters := make([]*cluster, k)
	step := len(sorted) / k
	for i := range clusters {
		clusters[i] = &cluster{centroid: pad(sorted[i*step].Embedding, dim)}
	}

	for iter := 0; iter < 10; iter++ {
		for _, cl := range clusters {
			cl.chunks = cl.chunks[:0]
		}
		for _, chunk := range sorted {
			best := 0
			bestSim := math.Inf(-1)
			v := pad(chunk.Embedding, dim)
			for i, cl := range clusters {
				if sim := cosine(v, cl.centroid); sim > bestSim {
					best = i
					bestSim = sim
				}
			}
			clusters[best].chunks = append(clusters[best].chunks, chunk)
		}
		moved := false
		for _, cl := range clusters {
			if len(cl.chunks) == 0 {
				continue
			}
			next := mean(cl.chunks, dim)
			if !equalVec(next, cl.centroid) {
				cl.centroid = next
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	out := clusters[:0]
	for _, cl := range clusters {
		if len(cl.chunks) > 0 {
			out = append(out, cl)
		}
	}
	return out
}

func pad(v []float64, dim int) []float64 {
	if len(v) >= dim {
		return v[:dim]
	}
	padded := make([]float64, dim)
	copy(padded, v)
	return padded
}

func mean(chunks []*Chunk, dim int) []float64 {
	m := make([]float64, dim)
	for _, c := range chunks {
		v := pad(c.Embedding, dim)
		for i := range m {
			m[i] += v[i]
		}
	}
	for i := range m {
		m[i] /= float64(len(chunks))
	}
	return m
}

func equalVec(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}
