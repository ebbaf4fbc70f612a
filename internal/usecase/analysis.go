package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicrezo/inference-gateway/internal/detection"
	"github.com/civicrezo/inference-gateway/internal/logging"
	"github.com/civicrezo/inference-gateway/internal/repository"
	"github.com/civicrezo/inference-gateway/internal/roboflow"
)

// ErrPersistenceDisabled is returned by reporting operations when no database
// was configured.
var ErrPersistenceDisabled = errors.New("analysis persistence is not configured")

const rawResultTTL = 5 * time.Minute

// AnalysisRepository defines the persistence operations needed by the use case.
type AnalysisRepository interface {
	Save(ctx context.Context, log *repository.AnalysisLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.AnalysisLog, error)
	FindBySourceHash(ctx context.Context, sourceHash, excludeRequestID string) ([]*repository.AnalysisLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// DuplicateReport lists other analyses that processed the same image source.
type DuplicateReport struct {
	Request    *repository.AnalysisLog
	Duplicates []*repository.AnalysisLog
}

// AnalysisUseCase runs the workflow collaborator and derives normalized
// predictions plus the admission decision. The repository and cache are
// optional; a nil value disables that concern without changing responses.
type AnalysisUseCase struct {
	repo           AnalysisRepository
	cache          Cache
	workflow       roboflow.Client
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Analysis is the full outcome of one workflow run.
type Analysis struct {
	RequestID string
	Raw       json.RawMessage
	Result    detection.Result
	Decision  detection.Decision
	CacheHit  bool
}

// NewAnalysisUseCase constructs a new use case instance.
func NewAnalysisUseCase(repo AnalysisRepository, cache Cache, workflow roboflow.Client, logger *zap.Logger) *AnalysisUseCase {
	return &AnalysisUseCase{
		repo:           repo,
		cache:          cache,
		workflow:       workflow,
		logger:         logger.Named("analysis_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Analyze resolves the raw workflow output for an image source, from cache
// when allowed, and derives the normalized result and admission decision.
// Only collaborator failures surface as errors; cache and persistence
// problems degrade to log entries.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, imageSource string, useCache bool) (*Analysis, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze", requestID)
	start := time.Now()

	hash := sha1.Sum([]byte(imageSource))
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := fmt.Sprintf("workflow:%s", hashHex)

	analysis := &Analysis{RequestID: requestID}

	if useCache && uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, requestID, "cache.get.workflow_result", cacheKey)
		switch {
		case err == nil:
			analysis.Raw = json.RawMessage(cached)
			analysis.CacheHit = true
		case errors.Is(err, redis.Nil):
		default:
			opLogger.Warn("failed to read workflow result cache", zap.Error(err))
		}
	}

	if !analysis.CacheHit {
		raw, err := uc.workflow.RunWorkflow(ctx, imageSource, useCache)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.run_workflow", requestID, err)
			opLogger.Error("workflow execution failed", zap.Error(wrapped))
			return nil, wrapped
		}
		analysis.Raw = raw

		if useCache && uc.cache != nil && len(raw) > 0 {
			if err := uc.withRedisRetry(ctx, requestID, "cache.set.workflow_result", func() error {
				return uc.cache.Set(ctx, cacheKey, string(raw), rawResultTTL)
			}); err != nil {
				opLogger.Warn("failed to cache workflow result", zap.Error(err))
			}
		}
	}

	analysis.Result = detection.Normalize(analysis.Raw)
	if analysis.Result.Malformed {
		// Fail-open: a damaged collaborator payload is reported to callers as
		// an empty detection, but must stay visible in logs.
		opLogger.Warn("workflow result malformed, treating as no detection",
			zap.Bool("cache_hit", analysis.CacheHit))
	}
	analysis.Decision = detection.Decide(analysis.Result)

	uc.persist(ctx, opLogger, analysis, hashHex, time.Since(start))

	return analysis, nil
}

func (uc *AnalysisUseCase) persist(ctx context.Context, opLogger *zap.Logger, analysis *Analysis, sourceHash string, latency time.Duration) {
	if uc.repo == nil {
		return
	}

	log := &repository.AnalysisLog{
		RequestID:     analysis.RequestID,
		SourceHash:    sourceHash,
		TopConfidence: analysis.Result.TopConfidence,
		DetectedIssue: analysis.Decision.DetectedIssue,
		AllowUpload:   analysis.Decision.AllowUpload,
		Malformed:     analysis.Result.Malformed,
		CacheHit:      analysis.CacheHit,
		LatencyMs:     latency.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := uc.repo.Save(ctx, log); err != nil {
		opLogger.Warn("failed to persist analysis log", zap.Error(err))
	}
}

// GetAnalysis loads a persisted analysis log by request id.
func (uc *AnalysisUseCase) GetAnalysis(ctx context.Context, requestID string) (*repository.AnalysisLog, error) {
	if uc.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}

// GetDuplicateReport builds a duplicate detection report for an analysis.
func (uc *AnalysisUseCase) GetDuplicateReport(ctx context.Context, requestID string) (*DuplicateReport, error) {
	if uc.repo == nil {
		return nil, ErrPersistenceDisabled
	}

	log, err := uc.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindBySourceHash(ctx, log.SourceHash, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *AnalysisUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *AnalysisUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
