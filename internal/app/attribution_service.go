package app

import (
	"context"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/metrics"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/attribution"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

// AttributionService records which task produced which catalog object. The
// catalog API calls it whenever an object is created under a task-bound
// capability token.
type AttributionService struct {
	attributions attribution.Repository
	tasks        task.Repository
	logger       *logger.Logger
}

// NewAttributionService creates an AttributionService.
func NewAttributionService(attributions attribution.Repository, tasks task.Repository, log *logger.Logger) *AttributionService {
	return &AttributionService{
		attributions: attributions,
		tasks:        tasks,
		logger:       log.With("component", "attribution_service"),
	}
}

// ProducedObject is one object reported as created under a task.
type ProducedObject struct {
	Key  string
	Type string
}

// Record writes attribution tuples for objects produced by the given task.
// Re-creating an object the task already produced is absorbed as a no-op,
// so natural-key re-creation never duplicates provenance and never errors.
func (s *AttributionService) Record(ctx context.Context, taskID shared.ID, objects []ProducedObject) (int, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return 0, err
	}

	records := make([]*attribution.Attribution, 0, len(objects))
	for _, obj := range objects {
		rec, err := attribution.New(taskID, t.PluginID, obj.Key, obj.Type)
		if err != nil {
			return 0, err
		}
		rec.Organization = t.Organization
		records = append(records, rec)
	}

	inserted, err := s.attributions.RecordBatch(ctx, records)
	if err != nil {
		return 0, err
	}
	metrics.AttributionsRecordedTotal.WithLabelValues(t.PluginID).Add(float64(inserted))

	s.logger.Debug("attributions recorded",
		"task_id", taskID.String(),
		"reported", len(objects),
		"inserted", inserted,
	)
	return inserted, nil
}

// ListByObject returns the provenance trail of one object key.
func (s *AttributionService) ListByObject(ctx context.Context, objectKey string, page pagination.Pagination) (pagination.Result[*attribution.Attribution], error) {
	return s.attributions.ListByObject(ctx, objectKey, page)
}

// ListByTask returns everything a task produced.
func (s *AttributionService) ListByTask(ctx context.Context, taskID shared.ID) ([]*attribution.Attribution, error) {
	return s.attributions.ListByTask(ctx, taskID)
}
