// Package qdrant stores passages in a Qdrant collection. The collection is
// created on first write, sized to the first embedding it sees.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
)

// Payload keys.
const (
	keyPassageID    = "passage_id"
	keyDocumentID   = "document_id"
	keyChunkIndex   = "chunk_index"
	keyContent      = "content"
	keyChunkType    = "chunk_type"
	keyPageNumber   = "page_number"
	keySectionTitle = "section_title"
	keyMetadata     = "metadata_json"
)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

type Store struct {
	client     *qdrant.Client
	collection string

	mu    sync.Mutex
	ready bool

	log *logger.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, errors.New("empty collection name")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Store{
		client:     client,
		collection: cfg.Collection,
		log:        logger.New("qdrant"),
	}, nil
}

func (s *Store) Name() string {
	return "qdrant:" + s.collection
}

func (s *Store) Close() error {
	return s.client.Close()
}

// exists reports whether the collection is there, caching a positive answer.
func (s *Store) exists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return true, nil
	}
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, err
	}
	s.ready = ok
	return ok, nil
}

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("creating collection", "collection", s.collection, "dimension", dimension)
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      keyDocumentID,
			FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to index document_id: %w", err)
		}
	}
	s.ready = true
	return nil
}

func (s *Store) Upsert(ctx context.Context, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(passages[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(passages))
	for i, p := range passages {
		payload, err := payloadFor(p)
		if err != nil {
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(p.ID)),
			Vectors: qdrant.NewVectors(p.Embedding...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Replace writes passages first and then removes the document's points that
// are not among them, so a failed write leaves the previous passages in place.
func (s *Store) Replace(ctx context.Context, documentID string, passages []domain.IndexedPassage) error {
	if len(passages) == 0 {
		return s.DeleteDocument(ctx, documentID)
	}
	if err := s.Upsert(ctx, passages); err != nil {
		return err
	}

	ids := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.ID
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must:    []*qdrant.Condition{qdrant.NewMatchKeyword(keyDocumentID, documentID)},
			MustNot: []*qdrant.Condition{qdrant.NewMatchKeywords(keyPassageID, ids...)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete of stale passages failed: %w", err)
	}
	return nil
}

// Search converts Qdrant's cosine similarity score into a distance.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, documentIDs []string) ([]domain.PassageMatch, error) {
	if limit <= 0 {
		return []domain.PassageMatch{}, nil
	}
	ok, err := s.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.PassageMatch{}, nil
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(documentIDs) > 0 {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords(keyDocumentID, documentIDs...)},
		}
	}

	hits, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	matches := make([]domain.PassageMatch, 0, len(hits))
	for _, hit := range hits {
		passage, err := passageFrom(hit.GetPayload())
		if err != nil {
			return nil, err
		}
		matches = append(matches, domain.PassageMatch{
			Passage:  passage,
			Distance: 1 - float64(hit.GetScore()),
		})
	}
	return matches, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return err
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword(keyDocumentID, documentID)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return int(n), nil
}

// PointID maps a composite passage id onto the UUID space Qdrant accepts.
func PointID(passageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("meddocs:"+passageID)).String()
}

func payloadFor(p domain.IndexedPassage) (map[string]*qdrant.Value, error) {
	meta := p.Chunk.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode passage metadata: %w", err)
	}
	return qdrant.NewValueMap(map[string]any{
		keyPassageID:    p.ID,
		keyDocumentID:   p.Chunk.DocumentID,
		keyChunkIndex:   int64(p.Chunk.ChunkIndex),
		keyContent:      p.Chunk.Content,
		keyChunkType:    string(p.Chunk.ChunkType),
		keyPageNumber:   int64(p.Chunk.PageNumber),
		keySectionTitle: p.Chunk.SectionTitle,
		keyMetadata:     string(raw),
	}), nil
}

func passageFrom(payload map[string]*qdrant.Value) (domain.IndexedPassage, error) {
	c := domain.Chunk{
		DocumentID:   payload[keyDocumentID].GetStringValue(),
		ChunkIndex:   int(payload[keyChunkIndex].GetIntegerValue()),
		Content:      payload[keyContent].GetStringValue(),
		ChunkType:    domain.ChunkType(payload[keyChunkType].GetStringValue()),
		PageNumber:   int(payload[keyPageNumber].GetIntegerValue()),
		SectionTitle: payload[keySectionTitle].GetStringValue(),
		Metadata:     map[string]any{},
	}
	if raw := payload[keyMetadata].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
			return domain.IndexedPassage{}, fmt.Errorf("failed to decode passage metadata: %w", err)
		}
	}
	id := payload[keyPassageID].GetStringValue()
	if id == "" {
		id = c.ID()
	}
	return domain.IndexedPassage{ID: id, Chunk: c}, nil
}
