package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"response-broker/internal/domain"
)

var (
	boltBucket = []byte("conversation")
	boltLogKey = []byte("log")
)

// BoltStore keeps the whole exchange log as one JSON document in a local
// bbolt file. Every append rewrites the document inside a single update
// transaction.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: bolt path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("repository: create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("repository: open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(boltBucket)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ReadAll returns the full log in append order.
func (s *BoltStore) ReadAll(ctx context.Context) ([]domain.ExchangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.ExchangeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var e error
		out, e = decodeLog(tx.Bucket(boltBucket))
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ReadAll: %w", err)
	}
	return out, nil
}

func (s *BoltStore) ReadChannel(ctx context.Context, channel string) ([]domain.ExchangeRecord, error) {
	all, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExchangeRecord, 0, len(all))
	for _, rec := range all {
		if rec.Channel == channel {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *BoltStore) Append(ctx context.Context, rec domain.ExchangeRecord) error {
	if strings.TrimSpace(rec.Channel) == "" {
		return errors.New("repository: Append: channel is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		records, err := decodeLog(b)
		if err != nil {
			return err
		}
		records = append(records, rec)
		enc, err := json.Marshal(records)
		if err != nil {
			return err
		}
		return b.Put(boltLogKey, enc)
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

func decodeLog(b *bolt.Bucket) ([]domain.ExchangeRecord, error) {
	if b == nil {
		return nil, errors.New("bucket missing")
	}
	raw := b.Get(boltLogKey)
	if len(raw) == 0 {
		return nil, nil
	}
	var records []domain.ExchangeRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return records, nil
}
