package blobstore

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFingerprintDeterminism(t *testing.T) {
	seen := make(map[string][]byte)
	for i := 0; i < 64; i++ {
		buf := make([]byte, 128+i)
		if _, err := rand.Read(buf); err != nil {
			t.Fatalf("rand: %v", err)
		}
		fp := FingerprintBytes(buf)
		if len(fp) != 64 {
			t.Fatalf("fingerprint length = %d, want 64", len(fp))
		}
		if prev, ok := seen[fp.String()]; ok && !bytes.Equal(prev, buf) {
			t.Fatalf("distinct buffers collided on %s", fp)
		}
		seen[fp.String()] = buf

		dup := append([]byte(nil), buf...)
		if FingerprintBytes(dup) != fp {
			t.Fatalf("identical bytes produced different fingerprints")
		}
	}
}

func TestIngestIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	data := []byte("photoA")
	first, err := store.Ingest(data, "JPEG")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := store.Ingest(data, "jpg")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first != second {
		t.Fatalf("fingerprints differ: %s vs %s", first, second)
	}

	matches, err := filepath.Glob(filepath.Join(store.BasePath(), "*", "*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("stored blobs = %d, want 1", len(matches))
	}

	got, mime, err := store.Open(first)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("blob bytes mismatch")
	}
	if mime != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mime)
	}
}

func TestIngestIgnoresConflictingExtension(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	data := []byte("same bytes, different claimed formats")
	first, err := store.Ingest(data, "jpg")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := store.Ingest(data, "png")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first != second {
		t.Fatalf("fingerprints differ: %s vs %s", first, second)
	}

	matches, err := filepath.Glob(filepath.Join(store.BasePath(), "*", "*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("stored blobs = %d, want 1: content decides existence, not extension", len(matches))
	}
}

func TestIngestConcurrentIdenticalUploads(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	data := []byte("simultaneous upload payload")

	const n = 16
	fps := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			fp, err := store.Ingest(data, "png")
			if err != nil {
				t.Errorf("ingest %d: %v", slot, err)
				return
			}
			fps[slot] = fp.String()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if fps[i] != fps[0] {
			t.Fatalf("fingerprint %d = %s, want %s", i, fps[i], fps[0])
		}
	}

	got, _, err := store.Open(FingerprintBytes(data))
	if err != nil {
		t.Fatalf("open after concurrent ingest: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("blob corrupted by concurrent ingest")
	}
}

func TestIngestRejectsEmptyPayload(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Ingest(nil, "jpg"); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	entries, _ := os.ReadDir(store.BasePath())
	if len(entries) != 0 {
		t.Fatalf("empty payload should not create blobs")
	}
}
