package store

import "sync"

// seqGenerator hands out increasing ids per named sequence.
type seqGenerator struct {
	mu     sync.Mutex
	values map[string]int64
}

func newSeqGenerator() *seqGenerator {
	return &seqGenerator{values: make(map[string]int64)}
}

func (g *seqGenerator) next(name string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[name]++
	return g.values[name]
}
