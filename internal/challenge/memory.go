package challenge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	answer    string
	expiresAt time.Time
}

// MemoryGate - реализация Gate в памяти процесса.
type MemoryGate struct {
	mu      sync.Mutex
	entries map[string]entry
	puzzle  *Puzzle
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryGate(ttl time.Duration) *MemoryGate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGate{
		entries: make(map[string]entry),
		puzzle:  NewPuzzle(),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (g *MemoryGate) Issue(ctx context.Context) (Challenge, error) {
	question, answer := g.puzzle.Generate()
	key := uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	g.entries[key] = entry{answer: answer, expiresAt: g.now().Add(g.ttl)}
	return Challenge{Key: key, Question: question}, nil
}

func (g *MemoryGate) Consume(ctx context.Context, key, response string) error {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(response) == "" {
		return ErrRequired()
	}

	g.mu.Lock()
	e, ok := g.entries[key]
	delete(g.entries, key)
	g.mu.Unlock()

	if !ok || g.now().After(e.expiresAt) || !matches(e.answer, response) {
		return ErrInvalid()
	}
	return nil
}

// sweep вызывается под g.mu.
func (g *MemoryGate) sweep() {
	now := g.now()
	for k, e := range g.entries {
		if now.After(e.expiresAt) {
			delete(g.entries, k)
		}
	}
}
