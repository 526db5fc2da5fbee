package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/alerting"
	"github.com/aidly/aidly-api/pkg/config"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/jobs"
)

// JobTypeAggregation labels queued aggregation runs.
const JobTypeAggregation = "aggregation"

type aggregator interface {
	Aggregate(ctx context.Context, date time.Time, metricType models.MetricType) (*models.AggregationResult, error)
}

// AggregationJobs runs aggregations on a background queue. Failures are retried by
// the queue and escalated once retries run out; callers never see them.
type AggregationJobs struct {
	aggregator aggregator
	alerter    alerting.Alerter
	queue      *jobs.Queue
	logger     *zap.Logger
}

// NewAggregationJobs wires the aggregation queue. cfg.MaxRetries counts total attempts.
func NewAggregationJobs(agg aggregator, alerter alerting.Alerter, cfg config.AggregationConfig, logger *zap.Logger) *AggregationJobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &AggregationJobs{aggregator: agg, alerter: alerter, logger: logger}
	retries := cfg.MaxRetries - 1
	if retries < 0 {
		retries = 0
	}
	j.queue = jobs.NewQueue(JobTypeAggregation, j.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 32,
		MaxRetries: retries,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.Timeout,
		OnFailure:  j.escalate,
		Logger:     logger,
	})
	return j
}

// Start launches the worker.
func (j *AggregationJobs) Start(ctx context.Context) { j.queue.Start(ctx) }

// Stop drains the worker.
func (j *AggregationJobs) Stop() { j.queue.Stop() }

// Enqueue schedules an aggregation and returns its job id.
func (j *AggregationJobs) Enqueue(req models.AggregationRequest) (string, error) {
	if !req.Type.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown metric type %q", req.Type))
	}
	req.Date = truncateDay(req.Date)
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeAggregation, Payload: req}
	if err := j.queue.Enqueue(job); err != nil {
		return "", fmt.Errorf("enqueue aggregation: %w", err)
	}
	j.logger.Sugar().Infow("aggregation queued", "job_id", job.ID, "date", req.Date.Format(dateLayout), "type", req.Type)
	return job.ID, nil
}

func (j *AggregationJobs) handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(models.AggregationRequest)
	if !ok {
		return fmt.Errorf("unexpected aggregation payload %T", job.Payload)
	}
	_, err := j.aggregator.Aggregate(ctx, req.Date, req.Type)
	return err
}

func (j *AggregationJobs) escalate(job jobs.Job, err error) {
	tags := map[string]string{"job_id": job.ID, "queue": JobTypeAggregation}
	if req, ok := job.Payload.(models.AggregationRequest); ok {
		tags["date"] = req.Date.Format(dateLayout)
		tags["type"] = string(req.Type)
	}
	if j.alerter != nil {
		j.alerter.Critical(context.Background(), "metrics aggregation failed permanently", err, tags)
		return
	}
	j.logger.Error("metrics aggregation failed permanently", zap.Any("tags", tags), zap.Error(err))
}
