package common

import (
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	RegistryRiddlesBucket = "registry:riddles"
	RegistryActiveBucket  = "registry:active"

	EntryPlayersBucket = "entry:players"

	GuessStatesBucket  = "guess:states"
	GuessRetriesBucket = "guess:retries"
	GuessWinnersBucket = "guess:winners"

	TokenBalancesBucket   = "token:balances"
	TokenAllowancesBucket = "token:allowances"

	FeedEventsBucket = "feed:events"
)

type DatabaseService struct {
	DB *bolt.DB
}

func NewDatabaseService(i do.Injector) (*DatabaseService, error) {
	dataDir := do.MustInvokeNamed[string](i, "data-dir")

	err := os.MkdirAll(dataDir, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create database path: %w", err)
	}

	dbPath := path.Join(dataDir, "enigma.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = InitBuckets(db)
	if err != nil {
		return nil, err
	}

	return &DatabaseService{
		DB: db,
	}, nil
}

func InitBuckets(db *bolt.DB) error {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{
			RegistryRiddlesBucket,
			RegistryActiveBucket,
			EntryPlayersBucket,
			GuessStatesBucket,
			GuessRetriesBucket,
			GuessWinnersBucket,
			TokenBalancesBucket,
			TokenAllowancesBucket,
			FeedEventsBucket,
		} {
			_, err := tx.CreateBucketIfNotExists([]byte(bucket))
			if err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database buckets: %w", err)
	}

	return nil
}

func (s *DatabaseService) Shutdown() error {
	//nolint:wrapcheck
	return s.DB.Close()
}

func Int64ToBytes(i int64) []byte {
	buf := make([]byte, 8)
	//nolint:gosec // Intentional conversion for binary encoding
	binary.LittleEndian.PutUint64(buf, uint64(i))

	return buf
}

func BytesToInt64(b []byte, _default int64) int64 {
	if len(b) == 0 {
		return _default
	}

	//nolint:gosec // Intentional conversion from binary encoding
	return int64(binary.LittleEndian.Uint64(b))
}

// Uint64ToKey encodes a sequence number big-endian so bbolt iterates
// keys in insertion order.
func Uint64ToKey(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)

	return buf
}
