// Package memory is an in-process vector store using brute-force cosine
// distance. It is meant for tests and single-node development.
package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	name     string
	passages map[string]domain.IndexedPassage
	order    []string
}

func NewStore(name string) *Store {
	return &Store{
		name:     name,
		passages: make(map[string]domain.IndexedPassage),
	}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Upsert(_ context.Context, passages []domain.IndexedPassage) error {
	if err := validate(passages); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(passages)
	return nil
}

// Replace swaps every passage of documentID for passages. Nothing changes
// when a passage is invalid.
func (s *Store) Replace(_ context.Context, documentID string, passages []domain.IndexedPassage) error {
	if err := validate(passages); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(documentID)
	s.put(passages)
	return nil
}

func validate(passages []domain.IndexedPassage) error {
	for _, p := range passages {
		if p.ID == "" {
			return errors.New("passage id is required")
		}
		if len(p.Embedding) == 0 {
			return errors.New("passage embedding is empty")
		}
	}
	return nil
}

func (s *Store) put(passages []domain.IndexedPassage) {
	for _, p := range passages {
		if _, exists := s.passages[p.ID]; !exists {
			s.order = append(s.order, p.ID)
		}
		s.passages[p.ID] = p
	}
}

func (s *Store) drop(documentID string) {
	kept := s.order[:0]
	for _, id := range s.order {
		if s.passages[id].Chunk.DocumentID == documentID {
			delete(s.passages, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *Store) Search(_ context.Context, vector []float32, limit int, documentIDs []string) ([]domain.PassageMatch, error) {
	if limit <= 0 {
		return []domain.PassageMatch{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.PassageMatch, 0, len(s.order))
	for _, id := range s.order {
		p := s.passages[id]
		if len(documentIDs) > 0 && !slices.Contains(documentIDs, p.Chunk.DocumentID) {
			continue
		}
		matches = append(matches, domain.PassageMatch{
			Passage:  p,
			Distance: cosineDistance(vector, p.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(documentID)
	return nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages), nil
}

// cosineDistance returns 1 - cos(a, b). A zero vector is at distance 1.
func cosineDistance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
