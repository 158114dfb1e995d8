// Package redisvec implements the vector store adapter on Redis with the
// RediSearch module. Records live in hashes under one key prefix; an HNSW-
// free FLAT vector index with cosine distance serves KNN and range queries.
package redisvec

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/vectorstore"
)

const (
	// DefaultKeyPrefix is prepended to every record key.
	DefaultKeyPrefix = "mnemo:memory:"

	// DefaultIndexName is the RediSearch index name.
	DefaultIndexName = "mnemo:memory:idx"

	// DefaultDimensions matches text-embedding-3-small.
	DefaultDimensions = 1536
)

// Store is a Redis-backed vectorstore.Adapter.
type Store struct {
	client     *redis.Client
	keyPrefix  string
	indexName  string
	dimensions int

	indexOnce sync.Once
	indexErr  error
}

var _ vectorstore.Adapter = &Store{}

// Option configures the store.
type Option func(*Store)

// WithKeyPrefix overrides the record key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithIndexName overrides the RediSearch index name.
func WithIndexName(name string) Option {
	return func(s *Store) { s.indexName = name }
}

// WithDimensions sets the embedding width the index is created with.
func WithDimensions(dims int) Option {
	return func(s *Store) { s.dimensions = dims }
}

// New creates a store on an existing Redis client. The search index is
// created lazily on first use.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:     client,
		keyPrefix:  DefaultKeyPrefix,
		indexName:  DefaultIndexName,
		dimensions: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.keyPrefix + id
}

// ensureIndex creates the search index if it does not exist yet.
func (s *Store) ensureIndex(ctx context.Context) error {
	s.indexOnce.Do(func() {
		err := s.client.FTCreate(ctx, s.indexName,
			&redis.FTCreateOptions{
				OnHash: true,
				Prefix: []any{s.keyPrefix},
			},
			&redis.FieldSchema{FieldName: "session_id", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "user_id", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "namespace", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "memory_type", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "topics", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "entities", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "discrete_memory_extracted", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "memory_hash", FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: "created_at", FieldType: redis.SearchFieldTypeNumeric},
			&redis.FieldSchema{FieldName: "last_accessed", FieldType: redis.SearchFieldTypeNumeric},
			&redis.FieldSchema{FieldName: "event_date", FieldType: redis.SearchFieldTypeNumeric},
			&redis.FieldSchema{
				FieldName: "vector",
				FieldType: redis.SearchFieldTypeVector,
				VectorArgs: &redis.FTVectorArgs{
					FlatOptions: &redis.FTFlatOptions{
						Type:           "FLOAT32",
						Dim:            s.dimensions,
						DistanceMetric: "COSINE",
					},
				},
			},
		).Err()
		if err != nil && !isIndexExists(err) {
			s.indexErr = mnemo.WrapError(mnemo.KindFatal, fmt.Errorf("creating search index: %w", err))
		}
	})
	return s.indexErr
}

func isIndexExists(err error) bool {
	return err != nil && (err.Error() == "Index already exists" ||
		err.Error() == "ERR Index already exists")
}

func (s *Store) Index(ctx context.Context, docs []vectorstore.Doc) ([]*mnemo.MemoryRecord, error) {
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	persisted := make([]*mnemo.MemoryRecord, 0, len(docs))

	pipe := s.client.Pipeline()
	for _, doc := range docs {
		record := doc.Record.Copy()
		if record.PersistedAt == nil || now.After(*record.PersistedAt) {
			t := now
			record.PersistedAt = &t
		}
		fields, err := s.hashFields(record, doc.Vector)
		if err != nil {
			return nil, err
		}
		pipe.HSet(ctx, s.key(record.ID), fields)
		persisted = append(persisted, record)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("indexing records: %w", err))
	}
	return persisted, nil
}

func (s *Store) Update(ctx context.Context, docs []vectorstore.Doc) error {
	for _, doc := range docs {
		current, err := s.get(ctx, doc.Record.ID)
		if err != nil {
			return err
		}
		if current == nil {
			continue
		}
		vectorstore.ApplyUpdate(current, doc.Record)
		fields, err := s.hashFields(current, doc.Vector)
		if err != nil {
			return err
		}
		if err := s.client.HSet(ctx, s.key(current.ID), fields).Err(); err != nil {
			return mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("updating record %s: %w", current.ID, err))
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("deleting records: %w", err))
	}
	return int(deleted), nil
}

func (s *Store) GetByID(ctx context.Context, ids []string) ([]*mnemo.MemoryRecord, error) {
	records := make([]*mnemo.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *Store) get(ctx context.Context, id string) (*mnemo.MemoryRecord, error) {
	data, err := s.client.HGet(ctx, s.key(id), "json").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("fetching record %s: %w", id, err))
	}
	var record mnemo.MemoryRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, mnemo.WrapError(mnemo.KindFatal, fmt.Errorf("corrupt record %s: %w", id, err))
	}
	return &record, nil
}

func (s *Store) Count(ctx context.Context, filters *mnemo.Filters) (int, error) {
	if err := s.ensureIndex(ctx); err != nil {
		return 0, err
	}
	expr := filterExpression(filters)
	res, err := s.client.FTSearchWithArgs(ctx, s.indexName, expr, &redis.FTSearchOptions{
		NoContent: true,
		Limit:     1,
	}).Result()
	if err != nil {
		return 0, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("counting records: %w", err))
	}
	return int(res.Total), nil
}

func (s *Store) Search(ctx context.Context, query *vectorstore.Query) (*mnemo.MemoryRecordResults, error) {
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = mnemo.DefaultSearchLimit
	}

	expr := filterExpression(&query.Filters)
	options := &redis.FTSearchOptions{
		DialectVersion: 2,
		LimitOffset:    query.Offset,
		Limit:          limit,
		Return: []redis.FTSearchReturn{
			{FieldName: "json"},
			{FieldName: "dist"},
		},
	}

	if query.Vector != nil {
		vec := encodeVector(query.Vector)
		if query.DistanceThreshold != nil {
			// Range query bounded by the threshold.
			expr = fmt.Sprintf("%s @vector:[VECTOR_RANGE $radius $vec]=>{$YIELD_DISTANCE_AS: dist}", expr)
			options.Params = map[string]any{"vec": vec, "radius": *query.DistanceThreshold}
		} else {
			expr = fmt.Sprintf("(%s)=>[KNN $K @vector $vec AS dist]", expr)
			options.Params = map[string]any{"vec": vec, "K": query.Offset + limit}
		}
		options.SortBy = []redis.FTSearchSortBy{{FieldName: "dist", Asc: true}}
	}

	res, err := s.client.FTSearchWithArgs(ctx, s.indexName, expr, options).Result()
	if err != nil {
		return nil, mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("searching records: %w", err))
	}

	hits := make([]mnemo.MemoryRecordResult, 0, len(res.Docs))
	for _, doc := range res.Docs {
		raw, ok := doc.Fields["json"]
		if !ok {
			continue
		}
		var record mnemo.MemoryRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		dist := 0.0
		if d, ok := doc.Fields["dist"]; ok {
			if parsed, err := strconv.ParseFloat(d, 64); err == nil {
				dist = parsed
			}
		}
		hits = append(hits, mnemo.MemoryRecordResult{MemoryRecord: record, Dist: dist})
	}

	total := int(res.Total)
	var nextOffset *int
	if query.Offset+len(hits) < total {
		n := query.Offset + len(hits)
		nextOffset = &n
	}
	return &mnemo.MemoryRecordResults{
		Memories:   hits,
		Total:      total,
		NextOffset: nextOffset,
	}, nil
}

// hashFields flattens a record into the indexed hash representation. The
// full record travels in the json field; tag and numeric fields exist for
// filtering only. A nil vector leaves the stored vector field untouched.
func (s *Store) hashFields(record *mnemo.MemoryRecord, vector []float32) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, mnemo.WrapError(mnemo.KindFatal, fmt.Errorf("marshaling record %s: %w", record.ID, err))
	}
	dme := record.DiscreteMemoryExtracted
	if dme == "" {
		dme = mnemo.TriFalse
	}
	memoryType := record.MemoryType
	if memoryType == "" {
		memoryType = mnemo.MemoryTypeMessage
	}
	fields := map[string]any{
		"json":                      string(data),
		"text":                      record.Text,
		"session_id":                record.SessionID,
		"user_id":                   record.UserID,
		"namespace":                 record.Namespace,
		"memory_type":               string(memoryType),
		"topics":                    joinTags(record.Topics),
		"entities":                  joinTags(record.Entities),
		"discrete_memory_extracted": string(dme),
		"memory_hash":               record.MemoryHash,
		"created_at":                record.CreatedAt.Unix(),
		"last_accessed":             record.LastAccessed.Unix(),
	}
	if record.EventDate != nil {
		fields["event_date"] = record.EventDate.Unix()
	}
	if vector != nil {
		fields["vector"] = encodeVector(vector)
	}
	return fields, nil
}

func joinTags(tags []string) string {
	out := ""
	for i, tag := range tags {
		if i > 0 {
			out += ","
		}
		out += tag
	}
	return out
}

// encodeVector packs float32s little-endian, the layout RediSearch expects.
func encodeVector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}
