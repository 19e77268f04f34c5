package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChainFL/internal/retry"
)

const (
	// objectsDir holds content-addressed writes.
	objectsDir = "objects/"

	// historyDir holds round-numbered global model snapshots.
	historyDir = "history/"

	// GlobalKey is the canonical location of the current global model.
	GlobalKey = "global/current.json"

	// defaultPublishAttempts bounds retries when replacing the global model.
	defaultPublishAttempts = 3

	// defaultPublishBackoff is the first delay between publish attempts.
	defaultPublishBackoff = 200 * time.Millisecond
)

// Options tunes a Store.
type Options struct {
	PublishAttempts int           // PublishAttempts bounds global model replacement tries
	PublishBackoff  time.Duration // PublishBackoff is the first delay between tries
}

// Store reads, writes, verifies and publishes model artifacts.
// Writes go to the primary backend; reads resolve a URI against every backend.
type Store struct {
	primary Backend      // primary receives all writes
	readers []Backend    // readers resolve URIs, primary first
	publish retry.Policy // publish governs PublishGlobal retries
}

// NewStore creates a store writing to primary. Extra backends are read-only
// fallbacks, e.g. a FileBackend for client-local paths when primary is S3.
func NewStore(primary Backend, opts Options, extra ...Backend) *Store {
	if opts.PublishAttempts <= 0 {
		opts.PublishAttempts = defaultPublishAttempts
	}
	if opts.PublishBackoff <= 0 {
		opts.PublishBackoff = defaultPublishBackoff
	}

	return &Store{
		primary: primary,
		readers: append([]Backend{primary}, extra...),
		publish: retry.Policy{
			Attempts:   opts.PublishAttempts,
			Initial:    opts.PublishBackoff,
			Max:        4 * opts.PublishBackoff,
			Multiplier: 2,
		},
	}
}

// Write stores data content-addressed and returns its ref.
func (s *Store) Write(ctx context.Context, data []byte) (ContentRef, error) {
	hash := HashBytes(data)
	key := objectsDir + hash + ".json"

	exists, err := s.primary.Exists(ctx, key)
	if err != nil {
		return ContentRef{}, fmt.Errorf("check object:\n%w", err)
	}

	if !exists {
		if err := s.primary.Put(ctx, key, data); err != nil {
			return ContentRef{}, fmt.Errorf("write object:\n%w", err)
		}
	}

	return ContentRef{URI: s.primary.URI(key), SHA256: hash}, nil
}

// Read returns the bytes at ref.URI. A missing artifact yields ErrNotFound.
func (s *Store) Read(ctx context.Context, ref ContentRef) ([]byte, error) {
	b, key, err := s.resolve(ref.URI)
	if err != nil {
		return nil, err
	}

	return b.Get(ctx, key)
}

// Verify recomputes the digest of the artifact and compares it with ref.
func (s *Store) Verify(ctx context.Context, ref ContentRef) (bool, error) {
	data, err := s.Read(ctx, ref)
	if err != nil {
		return false, err
	}

	return ref.Matches(data), nil
}

// ReadVerified reads ref and fails with ErrHashMismatch when the digest differs.
func (s *Store) ReadVerified(ctx context.Context, ref ContentRef) ([]byte, error) {
	data, err := s.Read(ctx, ref)
	if err != nil {
		return nil, err
	}

	if !ref.Matches(data) {
		return data, fmt.Errorf("%s: %w", ref.URI, ErrHashMismatch)
	}

	return data, nil
}

// PublishGlobal atomically replaces the canonical global model with ref's bytes.
// Replacement is retried with backoff; exhaustion yields ErrPublishFailed.
func (s *Store) PublishGlobal(ctx context.Context, ref ContentRef) (ContentRef, error) {
	data, err := s.ReadVerified(ctx, ref)
	if err != nil {
		return ContentRef{}, fmt.Errorf("%w: read source:\n%w", ErrPublishFailed, err)
	}

	err = retry.Do(ctx, s.publish, nil, func() error {
		return s.primary.Put(ctx, GlobalKey, data)
	})
	if err != nil {
		return ContentRef{}, fmt.Errorf("%w:\n%w", ErrPublishFailed, err)
	}

	return ContentRef{URI: s.primary.URI(GlobalKey), SHA256: ref.SHA256}, nil
}

// Global returns the ref of the current canonical global model.
func (s *Store) Global(ctx context.Context) (ContentRef, error) {
	data, err := s.primary.Get(ctx, GlobalKey)
	if err != nil {
		return ContentRef{}, err
	}

	return ContentRef{URI: s.primary.URI(GlobalKey), SHA256: HashBytes(data)}, nil
}

// InitGlobal writes data as the global model unless one already exists.
func (s *Store) InitGlobal(ctx context.Context, data []byte) (ContentRef, error) {
	exists, err := s.primary.Exists(ctx, GlobalKey)
	if err != nil {
		return ContentRef{}, fmt.Errorf("check global:\n%w", err)
	}

	if !exists {
		if err := s.primary.Put(ctx, GlobalKey, data); err != nil {
			return ContentRef{}, fmt.Errorf("write global:\n%w", err)
		}
	}

	return s.Global(ctx)
}

// Snapshot archives ref under the immutable slot for round.
// An existing snapshot with identical content is left in place.
func (s *Store) Snapshot(ctx context.Context, round uint64, ref ContentRef) (ContentRef, error) {
	key := snapshotKey(round)

	existing, err := s.ReadSnapshot(ctx, round)
	switch {
	case err == nil:
		if !ref.Matches(existing) {
			return ContentRef{}, fmt.Errorf("snapshot for round %d already exists with different content", round)
		}
		return ContentRef{URI: s.primary.URI(key), SHA256: ref.SHA256}, nil
	case !errors.Is(err, ErrNotFound):
		return ContentRef{}, err
	}

	data, err := s.ReadVerified(ctx, ref)
	if err != nil {
		return ContentRef{}, fmt.Errorf("read source:\n%w", err)
	}

	packed, err := compress(data)
	if err != nil {
		return ContentRef{}, err
	}

	if err := s.primary.Put(ctx, key, packed); err != nil {
		return ContentRef{}, fmt.Errorf("write snapshot:\n%w", err)
	}

	return ContentRef{URI: s.primary.URI(key), SHA256: ref.SHA256}, nil
}

// ReadSnapshot returns the decompressed global model archived for round.
func (s *Store) ReadSnapshot(ctx context.Context, round uint64) ([]byte, error) {
	packed, err := s.primary.Get(ctx, snapshotKey(round))
	if err != nil {
		return nil, err
	}

	return decompress(packed)
}

// resolve finds the backend able to serve uri.
func (s *Store) resolve(uri string) (Backend, string, error) {
	for _, b := range s.readers {
		if key, ok := b.Key(uri); ok {
			return b, key, nil
		}
	}

	return nil, "", fmt.Errorf("no backend for %q: %w", uri, ErrNotFound)
}
