// Package voicestore persists voice-note payloads. Audio blobs are written
// to a BadgerDB value store keyed by generated filename; the coordinator
// only ever sees the filename, never the payload.
package voicestore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrEmptyPayload is returned for an upload with no audio data. Nothing
	// is stored and no filename is generated.
	ErrEmptyPayload = errors.New("empty voice payload")

	// ErrNotFound is returned when no payload exists under the filename.
	ErrNotFound = errors.New("voice message not found")
)

const keyPrefix = "voice:"

// Store is a durable blob store for voice notes.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open creates or opens the store at the given path.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening voice store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// OpenInMemory opens a non-persistent store for tests.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening in-memory voice store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save durably writes one voice payload and returns its generated
// filename. The write is transactional: either the whole payload is stored
// under the returned name or an error is returned and nothing is kept.
func (s *Store) Save(sender string, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	kind := mimetype.Detect(payload)
	filename := "voice_" + uuid.New().String() + kind.Extension()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+filename), payload)
	})
	if err != nil {
		return "", fmt.Errorf("writing voice payload: %w", err)
	}

	s.log.Info("voice payload stored",
		"filename", filename, "sender", sender, "bytes", len(payload), "type", kind.String())
	return filename, nil
}

// Load fetches a stored payload and its sniffed content type.
func (s *Store) Load(filename string) ([]byte, string, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + filename))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading voice payload: %w", err)
	}

	return payload, mimetype.Detect(payload).String(), nil
}
