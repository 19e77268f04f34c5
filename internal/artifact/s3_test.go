package artifact

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// s3Stub is a minimal path-style S3 endpoint holding objects in memory.
type s3Stub struct {
	mu      sync.Mutex
	objects map[string][]byte // objects maps "/bucket/key" to content
	denied  map[string]bool   // denied paths answer 403
}

func newS3Stub() *s3Stub {
	return &s3Stub{objects: make(map[string][]byte), denied: make(map[string]bool)}
}

func (s *s3Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path

	if s.denied[path] {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		if r.Method != http.MethodHead {
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		s.objects[path] = data
		w.WriteHeader(http.StatusOK)

	case http.MethodGet, http.MethodHead:
		data, ok := s.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(data)
		}

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// object returns what the stub holds at path.
func (s *s3Stub) object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[path]
	return data, ok
}

// newStubBackend points an S3Backend at a fresh stub.
func newStubBackend(t *testing.T, prefix string) (*S3Backend, *s3Stub) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))

	stub := newS3Stub()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	b, err := NewS3Backend(context.Background(), S3Config{
		Bucket:          "models",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		Prefix:          prefix,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Backend: %v", err)
	}

	return b, stub
}

// =============================================================================
// URIs
// =============================================================================

func TestS3URIAndKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		uri    string
		key    string
		ok     bool
	}{
		{"no prefix", "", "s3://models/objects/a.json", "objects/a.json", true},
		{"with prefix", "fl/", "s3://models/fl/objects/a.json", "objects/a.json", true},
		{"outside prefix", "fl/", "s3://models/other/objects/a.json", "", false},
		{"other bucket", "", "s3://weights/objects/a.json", "", false},
		{"local path", "", "/var/lib/models/a.json", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &S3Backend{bucket: "models", prefix: tt.prefix}

			key, ok := b.Key(tt.uri)
			if ok != tt.ok || key != tt.key {
				t.Fatalf("Key(%q) = %q, %v, want %q, %v", tt.uri, key, ok, tt.key, tt.ok)
			}

			if ok && b.URI(key) != tt.uri {
				t.Errorf("URI(%q) = %q, want %q", key, b.URI(key), tt.uri)
			}
		})
	}
}

// =============================================================================
// Object operations
// =============================================================================

func TestS3PutGetExists(t *testing.T) {
	b, stub := newStubBackend(t, "fl/")
	ctx := context.Background()
	data := []byte(`{"weights":[1,2]}`)

	if err := b.Put(ctx, "objects/a.json", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got, ok := stub.object("/models/fl/objects/a.json"); !ok || string(got) != string(data) {
		t.Fatalf("stub holds %q, %v", got, ok)
	}

	got, err := b.Get(ctx, "objects/a.json")
	if err != nil || string(got) != string(data) {
		t.Fatalf("Get = %q, %v", got, err)
	}

	ok, err := b.Exists(ctx, "objects/a.json")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v, want true", ok, err)
	}
}

func TestS3MissingObjectIsNotFound(t *testing.T) {
	b, _ := newStubBackend(t, "")
	ctx := context.Background()

	if _, err := b.Get(ctx, "objects/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing err = %v, want ErrNotFound", err)
	}

	ok, err := b.Exists(ctx, "objects/missing.json")
	if err != nil || ok {
		t.Errorf("Exists missing = %v, %v, want false, nil", ok, err)
	}
}

func TestS3DeniedIsNotNotFound(t *testing.T) {
	b, stub := newStubBackend(t, "")
	ctx := context.Background()

	stub.denied["/models/objects/secret.json"] = true

	if _, err := b.Get(ctx, "objects/secret.json"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get denied err = %v, want a non-NotFound error", err)
	}

	if _, err := b.Exists(ctx, "objects/secret.json"); err == nil {
		t.Error("Exists on denied object returned no error")
	}
}

func TestStoreOverS3(t *testing.T) {
	b, _ := newStubBackend(t, "fl/")
	s := NewStore(b, Options{})
	ctx := context.Background()

	data := mustEncode(t, []float64{0.5, 1.5})

	ref, err := s.Write(ctx, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !strings.HasPrefix(ref.URI, "s3://models/fl/objects/") {
		t.Errorf("ref URI = %s", ref.URI)
	}

	ok, err := s.Verify(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}

	gone := ContentRef{URI: b.URI("objects/" + HashBytes([]byte("gone")) + ".json"), SHA256: HashBytes([]byte("gone"))}
	if _, err := s.Read(ctx, gone); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read missing err = %v, want ErrNotFound", err)
	}
}
