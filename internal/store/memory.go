package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/web3-frozen/onchain-ingest/internal/metrics"
)

// Memory is an in-process store with the same contract as Store. Documents
// are held as encoded JSON.
type Memory struct {
	mu     sync.Mutex
	docs   map[string][]json.RawMessage
	keyIdx map[string]map[string]int
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string][]json.RawMessage),
		keyIdx: make(map[string]map[string]int),
	}
}

func (m *Memory) InsertAppend(_ context.Context, collection string, docs []any) (int, error) {
	if err := checkCollection("insert", collection); err != nil {
		return 0, err
	}
	encoded := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return 0, &PersistenceError{Op: "insert", Collection: collection, Err: fmt.Errorf("encode doc %d: %w", i, err)}
		}
		encoded[i] = b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, &PersistenceError{Op: "insert", Collection: collection, Err: errClosed}
	}
	m.docs[collection] = append(m.docs[collection], encoded...)
	metrics.RecordsWrittenTotal.WithLabelValues(collection, ModeAppend).Add(float64(len(docs)))
	return len(docs), nil
}

func (m *Memory) UpsertByKey(_ context.Context, collection, key string, doc any) (UpsertResult, error) {
	if err := checkCollection("upsert", collection); err != nil {
		return UpsertResult{}, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return UpsertResult{}, &PersistenceError{Op: "upsert", Collection: collection, Err: fmt.Errorf("encode doc: %w", err)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return UpsertResult{}, &PersistenceError{Op: "upsert", Collection: collection, Err: errClosed}
	}

	idx := m.keyIdx[collection]
	if idx == nil {
		idx = make(map[string]int)
		m.keyIdx[collection] = idx
	}
	var res UpsertResult
	if i, ok := idx[key]; ok {
		m.docs[collection][i] = b
		res.MatchedExisting = true
	} else {
		idx[key] = len(m.docs[collection])
		m.docs[collection] = append(m.docs[collection], b)
		res.Inserted = true
	}
	metrics.RecordsWrittenTotal.WithLabelValues(collection, ModeUpsert).Inc()
	metrics.UpsertsTotal.WithLabelValues(collection, res.Outcome()).Inc()
	return res, nil
}

// Docs returns the encoded documents of a collection in insertion order.
func (m *Memory) Docs(collection string) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.docs[collection]...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var errClosed = fmt.Errorf("store closed")
