package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"framelens/internal/blobstore"
	"framelens/internal/domain"
	"framelens/internal/providers/image"
)

type memCache struct {
	mu      sync.Mutex
	records map[domain.Fingerprint]domain.AnalysisRecord
}

func newMemCache() *memCache {
	return &memCache{records: make(map[domain.Fingerprint]domain.AnalysisRecord)}
}

func (m *memCache) Get(_ context.Context, fp domain.Fingerprint) (*domain.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[fp]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAnalysisNotFound, fp)
	}
	return &record, nil
}

func (m *memCache) Put(_ context.Context, record domain.AnalysisRecord) (*domain.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.Fingerprint]; ok {
		return &existing, nil
	}
	record.CreatedAt = time.Now().UTC()
	m.records[record.Fingerprint] = record
	return &record, nil
}

func (m *memCache) Recent(_ context.Context, limit int) ([]domain.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AnalysisRecord, 0, limit)
	for _, record := range m.records {
		if len(out) == limit {
			break
		}
		out = append(out, record)
	}
	return out, nil
}

type stubCritic struct {
	calls    atomic.Int32
	delay    time.Duration
	critique domain.Critique
	err      error
}

func (s *stubCritic) Analyze(ctx context.Context, _ []byte, _ string, _ map[string]string) (*domain.Critique, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	critique := s.critique
	return &critique, nil
}

type stubPlanner struct {
	calls atomic.Int32
	err   error
}

func (s *stubPlanner) Plan(_ context.Context, _ domain.AnalysisRecord) ([3]domain.EditingInstruction, error) {
	s.calls.Add(1)
	if s.err != nil {
		return [3]domain.EditingInstruction{}, s.err
	}
	return testInstructions(), nil
}

func testCritique() domain.Critique {
	return domain.Critique{
		OverallImpression: "a quiet street scene with strong leading lines",
		Scores:            domain.Scores{Exposure: 7, Composition: 8, Lighting: 6, Color: 7, Storytelling: 6},
		Strengths:         []string{"strong diagonal composition", "well controlled highlights"},
		Improvements:      []string{"shadows are slightly crushed"},
		Tips:              []string{"expose for the shadows next time"},
	}
}

func newTestOrchestrator(t *testing.T, critic *stubCritic, planner *stubPlanner, editor *stubEditor) (*Orchestrator, *memCache) {
	t.Helper()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	cache := newMemCache()
	exec := NewExecutor(editor, zerolog.Nop())
	return NewOrchestrator(blobs, cache, critic, planner, exec, zerolog.Nop()), cache
}

func okEditor() *stubEditor {
	return &stubEditor{
		enhance: func(_ context.Context, _ image.SourceImage, instruction domain.EditingInstruction) (*image.Enhanced, error) {
			return &image.Enhanced{
				Data:   []byte("edited-" + string(instruction.Variant)),
				MIME:   "image/png",
				Report: domain.ChangeReport{Summary: "adjusted " + string(instruction.Variant)},
			}, nil
		},
	}
}

func TestAnalyzeComputesOnceForIdenticalBytes(t *testing.T) {
	critic := &stubCritic{critique: testCritique()}
	orc, _ := newTestOrchestrator(t, critic, &stubPlanner{}, okEditor())
	upload := []byte("identical photo bytes")

	first, err := orc.Analyze(context.Background(), upload, "jpg", map[string]string{"ISO": "200"})
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := orc.Analyze(context.Background(), upload, "jpg", map[string]string{"ISO": "200"})
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if got := critic.calls.Load(); got != 1 {
		t.Fatalf("critic calls = %d, want 1", got)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Fatalf("fingerprints diverge: %s vs %s", first.Fingerprint, second.Fingerprint)
	}
	if first.Critique.OverallImpression != second.Critique.OverallImpression {
		t.Fatal("repeat upload should return the stored critique")
	}
}

func TestAnalyzeCoalescesConcurrentIdenticalUploads(t *testing.T) {
	critic := &stubCritic{critique: testCritique(), delay: 40 * time.Millisecond}
	orc, _ := newTestOrchestrator(t, critic, &stubPlanner{}, okEditor())
	upload := []byte("burst of the same photo")

	const uploaders = 12
	records := make([]*domain.AnalysisRecord, uploaders)
	errs := make([]error, uploaders)
	var wg sync.WaitGroup
	for i := 0; i < uploaders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = orc.Analyze(context.Background(), upload, "png", nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < uploaders; i++ {
		if errs[i] != nil {
			t.Fatalf("uploader %d: %v", i, errs[i])
		}
		if records[i].Fingerprint != records[0].Fingerprint {
			t.Fatalf("uploader %d got a different record", i)
		}
	}
	if got := critic.calls.Load(); got != 1 {
		t.Fatalf("critic calls = %d, want exactly 1 for coalesced uploads", got)
	}
}

func TestAnalyzeSurvivesCallerCancellation(t *testing.T) {
	critic := &stubCritic{critique: testCritique(), delay: 30 * time.Millisecond}
	orc, cache := newTestOrchestrator(t, critic, &stubPlanner{}, okEditor())
	upload := []byte("upload whose caller walks away")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		orc.Analyze(ctx, upload, "jpg", nil)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	fp := blobstore.FingerprintBytes(upload)
	deadline := time.After(time.Second)
	for {
		if _, err := cache.Get(context.Background(), fp); err == nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("analysis never reached the cache after caller cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestAnalyzeDoesNotCacheFailures(t *testing.T) {
	critic := &stubCritic{err: fmt.Errorf("%w: model overloaded", domain.ErrUpstreamUnavailable)}
	orc, _ := newTestOrchestrator(t, critic, &stubPlanner{}, okEditor())
	upload := []byte("photo the model refuses")

	if _, err := orc.Analyze(context.Background(), upload, "jpg", nil); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}

	critic.err = nil
	critic.critique = testCritique()
	record, err := orc.Analyze(context.Background(), upload, "jpg", nil)
	if err != nil {
		t.Fatalf("retry after upstream recovery: %v", err)
	}
	if record.Critique.OverallImpression == "" {
		t.Fatal("retry should produce a real critique")
	}
	if got := critic.calls.Load(); got != 2 {
		t.Fatalf("critic calls = %d, want 2: failures must not poison the cache", got)
	}
}

func TestEnhanceRequiresStoredAnalysis(t *testing.T) {
	critic := &stubCritic{critique: testCritique()}
	planner := &stubPlanner{}
	editor := okEditor()
	orc, _ := newTestOrchestrator(t, critic, planner, editor)

	fp := blobstore.FingerprintBytes([]byte("never analyzed"))
	_, err := orc.Enhance(context.Background(), fp)
	if !errors.Is(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("err = %v, want ErrAnalysisNotFound", err)
	}
	if planner.calls.Load() != 0 || editor.calls.Load() != 0 || critic.calls.Load() != 0 {
		t.Fatal("a missing analysis must be rejected before any upstream call")
	}
}

func TestEnhanceProducesAllThreeVariants(t *testing.T) {
	critic := &stubCritic{critique: testCritique()}
	editor := okEditor()
	orc, _ := newTestOrchestrator(t, critic, &stubPlanner{}, editor)
	upload := []byte("analyzed then enhanced")

	record, err := orc.Analyze(context.Background(), upload, "jpg", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	set, err := orc.Enhance(context.Background(), record.Fingerprint)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if set.Fingerprint != record.Fingerprint {
		t.Fatalf("set fingerprint = %s, want %s", set.Fingerprint, record.Fingerprint)
	}
	for i, result := range set.Results {
		if result.Failed() {
			t.Fatalf("slot %d failed: %v", i, result.Err)
		}
		if result.Variant != domain.Variants[i] {
			t.Fatalf("slot %d variant = %s, want %s", i, result.Variant, domain.Variants[i])
		}
		if !bytes.Equal(result.Image, []byte("edited-"+string(domain.Variants[i]))) {
			t.Fatalf("slot %d carries wrong image payload", i)
		}
		if result.Report.Summary == "" {
			t.Fatalf("slot %d missing change report", i)
		}
	}
}
