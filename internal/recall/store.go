package recall

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/relaydesk/relaydesk/internal/memory"
)

// Config holds recall store settings.
type Config struct {
	// URL is the Qdrant server address (e.g. "https://example.qdrant.io:6334").
	URL string

	// APIKey is the optional Qdrant API key.
	APIKey string

	// Collection is the memory collection name.
	Collection string

	// Dimensions is the embedding vector size used when the collection has
	// to be created.
	Dimensions int

	// MinScore drops results below this similarity.
	MinScore float32
}

// Snippet is a recalled piece of past conversation.
type Snippet struct {
	Text      string    `json:"text"`
	Score     float32   `json:"score"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Store indexes conversation turns in Qdrant and searches them by semantic
// similarity, filtered per user.
type Store struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
	dimensions int
	minScore   float32
}

// New creates a recall store.
func New(cfg Config, embedder Embedder) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "conversation_memory"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}

	parsed := cfg.URL
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "https://" + parsed
	}
	u, err := url.Parse(parsed)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &Store{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		dimensions: cfg.Dimensions,
		minScore:   cfg.MinScore,
	}, nil
}

// EnsureCollection creates the memory collection if it does not exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// IndexTurn stores a completed turn for later recall.
func (s *Store) IndexTurn(ctx context.Context, userID string, turn memory.ConversationTurn) error {
	text := turn.InboundText
	if turn.OutboundText != "" {
		text = turn.InboundText + "\n" + turn.OutboundText
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed turn: %w", err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"user_id":    userID,
				"text":       text,
				"channel":    turn.Channel,
				"message_id": turn.MessageID,
				"timestamp":  turn.Timestamp.Format(time.RFC3339),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search returns the user's most similar past snippets for query.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 5
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limitUint64 := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint64,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "user_id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: userID}},
					},
				},
			}},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]Snippet, 0, len(points))
	for _, point := range points {
		if s.minScore > 0 && point.Score < s.minScore {
			continue
		}
		snippet := Snippet{Score: point.Score}
		if point.Payload != nil {
			if v, ok := point.Payload["text"]; ok {
				snippet.Text = v.GetStringValue()
			}
			if v, ok := point.Payload["channel"]; ok {
				snippet.Channel = v.GetStringValue()
			}
			if v, ok := point.Payload["timestamp"]; ok {
				if ts, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
					snippet.Timestamp = ts
				}
			}
		}
		results = append(results, snippet)
	}
	return results, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}
