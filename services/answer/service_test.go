package answer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/services"
	"github.com/upb/legal-rag/services/budget"
	"github.com/upb/legal-rag/services/cache"
	"github.com/upb/legal-rag/services/metrics"
	"github.com/upb/legal-rag/services/promptbuild"
	"github.com/upb/legal-rag/services/providers"
	"github.com/upb/legal-rag/services/retrieval"
)

type fakeChunkRepo struct {
	chunks []models.Chunk
	err    error
}

func (f *fakeChunkRepo) ListWithEmbeddings(ctx context.Context) ([]models.Chunk, error) {
	return f.chunks, f.err
}

type fakeEmbedder struct {
	vector []float64
	err    error
	calls  atomic.Int32
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeGenerator struct {
	completion *providers.Completion
	err        error
	delay      time.Duration
	calls      atomic.Int32
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Complete(ctx context.Context, prompt string, model string) (*providers.Completion, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

type capturingLogRepo struct {
	mu      sync.Mutex
	records []*models.QueryLogRecord
}

func (r *capturingLogRepo) Insert(ctx context.Context, rec *models.QueryLogRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *capturingLogRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.QueryLogRecord, error) {
	return nil, nil
}

func (r *capturingLogRepo) snapshot() []*models.QueryLogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.QueryLogRecord, len(r.records))
	copy(out, r.records)
	return out
}

type testHarness struct {
	service   *Service
	chunks    *fakeChunkRepo
	embedder  *fakeEmbedder
	generator *fakeGenerator
	cache     *cache.ResponseCache
	logRepo   *capturingLogRepo
	recorder  *metrics.Recorder
}

func testCompletion() *providers.Completion {
	return &providers.Completion{
		Text:      "thirty days written notice",
		TokensIn:  1000,
		TokensOut: 500,
		Cost:      decimal.RequireFromString("0.90"),
		Provider:  "fake",
		Model:     "gpt-4o-mini",
	}
}

func testChunks() []models.Chunk {
	return []models.Chunk{
		{
			DocumentID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			ChunkIndex: 0,
			Content:    "Termination requires thirty days notice.",
			Embedding:  []float64{1, 0},
		},
		{
			DocumentID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			ChunkIndex: 1,
			Content:    "The lessee shall provide written notice.",
			Embedding:  []float64{0.9, 0.1},
		},
		{
			DocumentID: uuid.MustParse("33333333-3333-3333-3333-333333333333"),
			ChunkIndex: 0,
			Content:    "Unrelated indemnification clause.",
			Embedding:  []float64{0, 1},
		},
	}
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := zap.NewNop()

	h := &testHarness{
		chunks:    &fakeChunkRepo{chunks: testChunks()},
		embedder:  &fakeEmbedder{vector: []float64{1, 0}},
		generator: &fakeGenerator{completion: testCompletion()},
		logRepo:   &capturingLogRepo{},
	}
	h.cache = cache.NewResponseCache(cache.NewMemoryStore(100), time.Minute, logger)
	h.recorder = metrics.NewRecorder(h.logRepo, logger, metrics.Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, h.recorder.Start())
	t.Cleanup(func() { _ = h.recorder.Stop(2 * time.Second) })

	h.service = NewService(
		h.chunks,
		h.embedder,
		h.generator,
		retrieval.NewRanker(350, logger),
		budget.NewBudgeter(logger),
		promptbuild.NewComposer(logger),
		h.cache,
		h.recorder,
		5*time.Second,
		logger,
	)
	return h
}

func testRequest() *models.AnswerRequest {
	return &models.AnswerRequest{
		Query:            "What notice is required for termination?",
		K:                2,
		MaxContextTokens: 2000,
	}
}

func TestService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("computes an answer with citations", func(t *testing.T) {
		h := newHarness(t)

		resp, err := h.service.Ask(ctx, "user-1", testRequest())
		require.NoError(t, err)

		assert.Equal(t, "thirty days written notice", resp.Answer)
		assert.Equal(t, "fake", resp.Provider)
		assert.Equal(t, "gpt-4o-mini", resp.Model)
		assert.Equal(t, 1000, resp.TokensIn)
		assert.Equal(t, 500, resp.TokensOut)
		assert.True(t, resp.Cost.Equal(decimal.RequireFromString("0.90")))
		assert.False(t, resp.Cached)

		// k=2 keeps the two closest chunks, best first
		require.Len(t, resp.Citations, 2)
		assert.Equal(t, uuid.MustParse("11111111-1111-1111-1111-111111111111"), resp.Citations[0].DocumentID)
		assert.Equal(t, uuid.MustParse("22222222-2222-2222-2222-222222222222"), resp.Citations[1].DocumentID)
		assert.True(t, resp.Citations[0].Score >= resp.Citations[1].Score)

		assert.Equal(t, int32(1), h.embedder.calls.Load())
		assert.Equal(t, int32(1), h.generator.calls.Load())
	})

	t.Run("second identical request is served from cache", func(t *testing.T) {
		h := newHarness(t)
		req := testRequest()

		first, err := h.service.Ask(ctx, "user-1", req)
		require.NoError(t, err)
		assert.False(t, first.Cached)

		second, err := h.service.Ask(ctx, "user-1", req)
		require.NoError(t, err)
		assert.True(t, second.Cached)

		// Only the cached flag differs
		assert.Equal(t, first.Answer, second.Answer)
		assert.Equal(t, first.Citations, second.Citations)
		assert.True(t, first.Cost.Equal(second.Cost))

		assert.Equal(t, int32(1), h.generator.calls.Load())
		assert.Equal(t, int32(1), h.embedder.calls.Load())
	})

	t.Run("different users never share cache entries", func(t *testing.T) {
		h := newHarness(t)
		req := testRequest()

		_, err := h.service.Ask(ctx, "user-1", req)
		require.NoError(t, err)

		resp, err := h.service.Ask(ctx, "user-2", req)
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, int32(2), h.generator.calls.Load())
	})

	t.Run("empty corpus skips generation", func(t *testing.T) {
		h := newHarness(t)
		h.chunks.chunks = nil

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrNoCandidates))
		assert.Equal(t, int32(0), h.generator.calls.Load())
	})

	t.Run("embedding unavailability maps to unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.embedder.err = providers.NewUnavailableError("fake", "missing API key")

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.Error(t, err)
		assert.True(t, services.IsUnavailableError(err))
		assert.Equal(t, int32(0), h.generator.calls.Load())
	})

	t.Run("generation failure is external and never cached", func(t *testing.T) {
		h := newHarness(t)
		h.generator.err = providers.NewProviderError("fake", "PROVIDER_ERROR", "overloaded", 503, true, nil)

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.Error(t, err)
		assert.True(t, services.IsExternalError(err))

		// The failure left no cache entry: a retry hits the provider again
		h.generator.err = nil
		resp, err := h.service.Ask(ctx, "user-1", testRequest())
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, int32(2), h.generator.calls.Load())
	})

	t.Run("generation unavailability maps to unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.generator.err = providers.NewUnavailableError("fake", "missing API key")

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.Error(t, err)
		assert.True(t, services.IsUnavailableError(err))
	})

	t.Run("chunk store failure is internal", func(t *testing.T) {
		h := newHarness(t)
		h.chunks.err = errors.New("connection refused")

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.Error(t, err)
		assert.True(t, services.IsInternalError(err))
	})
}

func TestService_Ask_QueryLog(t *testing.T) {
	ctx := context.Background()

	t.Run("successful request is logged", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return len(h.logRepo.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

		rec := h.logRepo.snapshot()[0]
		assert.Equal(t, "user-1", rec.UserID)
		assert.Equal(t, testRequest().Query, rec.Query)
		assert.Equal(t, "fake", rec.Provider)
		assert.False(t, rec.Cached)
		assert.False(t, rec.Failed)
		assert.True(t, rec.Cost.Equal(decimal.RequireFromString("0.90")))
	})

	t.Run("cache hit is logged with cached flag", func(t *testing.T) {
		h := newHarness(t)
		req := testRequest()

		_, err := h.service.Ask(ctx, "user-1", req)
		require.NoError(t, err)
		_, err = h.service.Ask(ctx, "user-1", req)
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return len(h.logRepo.snapshot()) == 2 }, time.Second, 10*time.Millisecond)

		records := h.logRepo.snapshot()
		assert.False(t, records[0].Cached)
		assert.True(t, records[1].Cached)
	})

	t.Run("failure is logged with error code", func(t *testing.T) {
		h := newHarness(t)
		h.chunks.chunks = nil

		_, err := h.service.Ask(ctx, "user-1", testRequest())
		require.Error(t, err)

		assert.Eventually(t, func() bool { return len(h.logRepo.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

		rec := h.logRepo.snapshot()[0]
		assert.True(t, rec.Failed)
		require.NotNil(t, rec.ErrorCode)
		assert.Equal(t, "not_found", *rec.ErrorCode)
		assert.True(t, rec.Cost.IsZero())
	})
}

func TestService_Ask_Singleflight(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent identical requests share one computation", func(t *testing.T) {
		h := newHarness(t)
		h.generator.delay = 100 * time.Millisecond

		const concurrency = 8
		responses := make([]*models.AnswerResponse, concurrency)
		errs := make([]error, concurrency)

		var wg sync.WaitGroup
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				responses[n], errs[n] = h.service.Ask(ctx, "user-1", testRequest())
			}(i)
		}
		wg.Wait()

		for i := 0; i < concurrency; i++ {
			require.NoError(t, errs[i])
			require.NotNil(t, responses[i])
			assert.Equal(t, "thirty days written notice", responses[i].Answer)
		}

		assert.Equal(t, int32(1), h.generator.calls.Load(), "expected exactly one provider invocation")

		// Exactly one participant reports the computation as its own
		var uncached int
		for _, resp := range responses {
			if !resp.Cached {
				uncached++
			}
		}
		assert.Equal(t, 1, uncached)
	})

	t.Run("caller cancellation does not abort the shared computation", func(t *testing.T) {
		h := newHarness(t)
		h.generator.delay = 150 * time.Millisecond

		cancelCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			_, err := h.service.Ask(cancelCtx, "user-1", testRequest())
			done <- err
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()
		require.Error(t, <-done)

		// The flight finishes on its detached context and lands in the
		// cache, so the next request is a hit.
		assert.Eventually(t, func() bool {
			resp, err := h.service.Ask(ctx, "user-1", testRequest())
			return err == nil && resp.Cached
		}, time.Second, 20*time.Millisecond)
		assert.Equal(t, int32(1), h.generator.calls.Load())
	})
}
