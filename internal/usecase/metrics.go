package usecase

import "context"

// MetricsSummary represents aggregated gateway insights.
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AdmittedRequests  int64   `json:"admitted_requests"`
	AdmissionRate     float64 `json:"admission_rate"`
	AverageConfidence float64 `json:"average_confidence"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates analysis metrics from persisted logs.
func (uc *AnalysisUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrPersistenceDisabled
	}

	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:     aggregation.TotalCount,
		AdmittedRequests:  aggregation.AdmittedCount,
		AverageConfidence: aggregation.AverageConfidence,
		AverageLatencyMs:  aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.AdmissionRate = float64(aggregation.AdmittedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
