package answer

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/repositories"
	"github.com/upb/legal-rag/services"
	"github.com/upb/legal-rag/services/budget"
	"github.com/upb/legal-rag/services/cache"
	"github.com/upb/legal-rag/services/metrics"
	"github.com/upb/legal-rag/services/promptbuild"
	"github.com/upb/legal-rag/services/providers"
	"github.com/upb/legal-rag/services/retrieval"
)

// Service orchestrates the complete ask pipeline:
// cache lookup -> retrieve -> budget -> compose -> generate ->
// cache write -> query log. It is the sole caller of every other
// component and the single point translating their failures into the
// service error taxonomy.
type Service struct {
	chunkRepo      repositories.ChunkRepository
	embedder       providers.EmbeddingProvider
	generator      providers.GenerationProvider
	ranker         *retrieval.Ranker
	budgeter       *budget.Budgeter
	composer       *promptbuild.Composer
	responseCache  *cache.ResponseCache
	recorder       *metrics.Recorder
	logger         *zap.Logger
	requestTimeout time.Duration

	// flight collapses concurrent cache misses with identical
	// fingerprints into one computation.
	flight singleflight.Group
}

// NewService creates an answer service with all dependencies
func NewService(
	chunkRepo repositories.ChunkRepository,
	embedder providers.EmbeddingProvider,
	generator providers.GenerationProvider,
	ranker *retrieval.Ranker,
	budgeter *budget.Budgeter,
	composer *promptbuild.Composer,
	responseCache *cache.ResponseCache,
	recorder *metrics.Recorder,
	requestTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		chunkRepo:      chunkRepo,
		embedder:       embedder,
		generator:      generator,
		ranker:         ranker,
		budgeter:       budgeter,
		composer:       composer,
		responseCache:  responseCache,
		recorder:       recorder,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// flightResult is the shared outcome of one collapsed computation. The
// first caller to claim it reports cached=false; joined waiters report
// cached=true, so exactly one cached=false record exists per generation
// call.
type flightResult struct {
	resp    *models.AnswerResponse
	claimed atomic.Bool
}

// Ask answers the request for the given externally-verified user
// identifier. The service never authenticates; it trusts its caller.
func (s *Service) Ask(ctx context.Context, userID string, req *models.AnswerRequest) (*models.AnswerResponse, error) {
	fingerprint := cache.Fingerprint(userID, req.Query, req.K, req.Model)

	if cached := s.responseCache.Get(ctx, fingerprint); cached != nil {
		served := *cached
		served.Cached = true
		s.logger.Info("serving cached answer",
			zap.String("fingerprint", fingerprint[:16]),
			zap.String("user_id", userID))
		s.record(models.NewQueryLogRecord(userID, req.Query, &served))
		return &served, nil
	}

	// The computation runs on a context detached from this caller so a
	// joined waiter's cancellation cannot abort the flight for others.
	// The configured request timeout still bounds it.
	flightCtx := ctx
	ch := s.flight.DoChan(fingerprint, func() (interface{}, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(flightCtx), s.requestTimeout)
		defer cancel()
		return s.compute(computeCtx, fingerprint, userID, req)
	})

	select {
	case <-ctx.Done():
		return nil, services.WrapInternal("request cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(*flightResult)
		served := *result.resp
		if !result.claimed.CompareAndSwap(false, true) {
			served.Cached = true
		}
		s.record(models.NewQueryLogRecord(userID, req.Query, &served))
		return &served, nil
	}
}

// compute runs the full miss path. It executes at most once per
// in-flight fingerprint. Failures are logged here, once per
// computation, and never written to the cache.
func (s *Service) compute(ctx context.Context, fingerprint string, userID string, req *models.AnswerRequest) (*flightResult, error) {
	start := time.Now()

	// A near-simultaneous computation may have finished between this
	// caller's lookup and the flight start.
	if cached := s.responseCache.Get(ctx, fingerprint); cached != nil {
		result := &flightResult{resp: cached}
		result.claimed.Store(true)
		return result, nil
	}

	s.logger.Debug("computing answer",
		zap.String("fingerprint", fingerprint[:16]),
		zap.Int("k", req.K),
		zap.Int("max_context_tokens", req.MaxContextTokens))

	items, err := s.retrieve(ctx, req)
	if err != nil {
		s.recordFailure(userID, req, err, start)
		return nil, err
	}

	budgeted := s.budgeter.Fit(items, req.MaxContextTokens, req.Model)
	if len(budgeted) == 0 {
		// Unreachable while retrieval is non-empty; folded into the
		// same user-facing condition regardless.
		err := services.ErrNoCandidates
		s.recordFailure(userID, req, err, start)
		return nil, err
	}

	prompt := s.composer.Build(req.Query, budgeted)

	genStart := time.Now()
	completion, err := s.generator.Complete(ctx, prompt, req.Model)
	latencyMs := time.Since(genStart).Milliseconds()
	if err != nil {
		mapped := s.mapGenerationError(err)
		s.recordFailure(userID, req, mapped, start)
		return nil, mapped
	}

	citations := make([]models.Citation, len(budgeted))
	for i, item := range budgeted {
		citations[i] = models.CitationFromItem(item)
	}

	resp := &models.AnswerResponse{
		Answer:    completion.Text,
		Citations: citations,
		Provider:  completion.Provider,
		Model:     completion.Model,
		TokensIn:  completion.TokensIn,
		TokensOut: completion.TokensOut,
		Cost:      completion.Cost,
		LatencyMs: latencyMs,
		Cached:    false,
	}

	// Cached if and only if generation succeeded.
	s.responseCache.Put(ctx, fingerprint, resp)

	s.logger.Info("answer computed",
		zap.String("fingerprint", fingerprint[:16]),
		zap.String("provider", resp.Provider),
		zap.String("model", resp.Model),
		zap.Int("citations", len(citations)),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.String("cost_usd", resp.Cost.String()),
		zap.Int64("latency_ms", latencyMs))

	return &flightResult{resp: resp}, nil
}

// retrieve embeds the query and ranks stored chunks against it.
func (s *Service) retrieve(ctx context.Context, req *models.AnswerRequest) ([]models.RetrievalItem, error) {
	queryVec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		if providers.IsUnavailable(err) {
			return nil, services.NewDomainError(services.ErrorTypeUnavailable, "embedding provider unavailable", err)
		}
		return nil, services.WrapExternal("embedding failed", err)
	}

	chunks, err := s.chunkRepo.ListWithEmbeddings(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to read chunk store", err)
	}
	if len(chunks) == 0 {
		return nil, services.ErrNoCandidates
	}

	return s.ranker.Rank(queryVec, chunks, req.K)
}

func (s *Service) mapGenerationError(err error) error {
	if providers.IsUnavailable(err) {
		return services.NewDomainError(services.ErrorTypeUnavailable, "generation provider unavailable", err)
	}
	return services.WrapExternal("generation failed", err)
}

func (s *Service) record(rec *models.QueryLogRecord) {
	if err := s.recorder.Record(rec); err != nil {
		s.logger.Error("failed to record query log", zap.Error(err))
	}
}

// recordFailure writes one failure record per failed computation so the
// aggregated metrics see unsuccessful traffic too.
func (s *Service) recordFailure(userID string, req *models.AnswerRequest, err error, start time.Time) {
	rec := models.NewFailedQueryLogRecord(
		userID,
		req.Query,
		req.Model,
		services.ErrorCode(err),
		time.Since(start).Milliseconds(),
	)
	s.record(rec)
}
