package results

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/nus-sys/neobft-artifact/internal/runner"
)

// Store persists round results so a sweep can be inspected after the run.
// One bucket per crypto variant, keyed by fault parameter and iteration.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the result database at the given path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record writes one round result
func (s *Store) Record(crypto string, f, iter int, result runner.RoundResult) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(crypto))
		if err != nil {
			return err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put([]byte(key(f, iter)), data)
	})
}

// List returns every recorded result for a crypto variant, keyed by
// "f=FF/iter=II". An unknown variant yields an empty map.
func (s *Store) List(crypto string) (map[string]runner.RoundResult, error) {
	results := make(map[string]runner.RoundResult)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(crypto))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var result runner.RoundResult
			if err := json.Unmarshal(v, &result); err != nil {
				return fmt.Errorf("decode %s: %w", string(k), err)
			}
			results[string(k)] = result
			return nil
		})
	})
	return results, err
}

// Close closes the result database
func (s *Store) Close() error {
	return s.db.Close()
}

func key(f, iter int) string {
	return fmt.Sprintf("f=%02d/iter=%02d", f, iter)
}
