package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const badgerPrefix = "msg:"

// Badger stores records in a BadgerDB directory. Similarity is computed by
// scanning the stored embeddings.
type Badger struct {
	db     *badger.DB
	logger zerolog.Logger
}

// OpenBadger opens (or creates) the database directory at dir.
func OpenBadger(dir string, logger zerolog.Logger) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("database directory is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	b := &Badger{
		db:     db,
		logger: logger.With().Str("component", "store").Str("backend", BackendBadger).Logger(),
	}
	b.logger.Info().Str("path", dir).Msg("Message store opened")
	return b, nil
}

// badgerKey orders records chronologically: the 19-digit zero padded unix
// nanos sort lexicographically and the id breaks ties.
func badgerKey(rec Record) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", badgerPrefix, rec.Timestamp.UnixNano(), rec.ID))
}

// Append stores rec.
func (b *Badger) Append(_ context.Context, rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec), value)
	})
}

// Recent returns the newest limit records, oldest first.
func (b *Badger) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	records := make([]Record, 0, limit)
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts from the greatest key not above the seek key.
		seekKey := append([]byte(badgerPrefix), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			var rec Record
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent messages: %w", err)
	}

	slices.Reverse(records)
	return records, nil
}

// Similar ranks embedded records by cosine similarity to vec.
func (b *Badger) Similar(_ context.Context, vec []float32, k int) ([]Record, error) {
	if k <= 0 || len(vec) == 0 {
		return []Record{}, nil
	}

	type scored struct {
		rec   Record
		score float64
	}
	var candidates []scored

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			}); err != nil {
				return err
			}
			if len(rec.Embedding) != len(vec) {
				continue
			}
			candidates = append(candidates, scored{rec: rec, score: cosineSimilarity(vec, rec.Embedding)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return lo.Map(candidates, func(c scored, _ int) Record {
		c.rec.Embedding = nil
		return c.rec
	}), nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
