package projects

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-supply-cache/entitycache"
	"github.com/goliatone/go-supply-cache/invalidation"
	"go.uber.org/zap"
)

func (s *Service) enqueue(ctx context.Context, op entitycache.Operation, project *Project) error {
	item, err := s.entities.Enqueue(ctx, op, project)
	if err != nil {
		return err
	}
	s.logger.Info("mutation queued while offline",
		zap.String("queue_id", item.ID),
		zap.String("operation", string(op)),
		zap.String("project", Key(project)),
	)
	return nil
}

// Pending returns the queued offline mutations.
func (s *Service) Pending(ctx context.Context) []entitycache.QueueItem {
	return s.entities.Pending(ctx)
}

// DeadLetters returns the offline mutations that were given up on.
func (s *Service) DeadLetters(ctx context.Context) []entitycache.QueueItem {
	return s.entities.DeadLetters(ctx)
}

// SyncOffline replays the offline queue against the repository. Each replayed write
// emits its mutation event like a direct write would.
func (s *Service) SyncOffline(ctx context.Context) (entitycache.DrainReport, error) {
	if !s.IsOnline() {
		return entitycache.DrainReport{}, ErrOffline
	}

	report := s.entities.Drain(ctx, s.replay)
	s.logger.Info("offline queue drained",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("retrying", report.Retrying),
		zap.Int("dead_lettered", report.DeadLettered),
	)
	return report, nil
}

func (s *Service) replay(ctx context.Context, item entitycache.QueueItem) error {
	var project Project
	if err := item.Decode(&project); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "decode queued project")
	}

	var err error
	switch item.Operation {
	case entitycache.OperationCreate:
		_, err = s.create(ctx, &project)
	case entitycache.OperationUpdate:
		_, err = s.update(ctx, &project)
	case entitycache.OperationDelete:
		err = s.remove(ctx, project.ID)
	default:
		err = goerrors.New("unknown queued operation "+string(item.Operation), goerrors.CategoryBadInput)
	}
	return err
}

// NewStateReader reads the current state of projects from the entity cache, for
// conditional invalidation rules.
func NewStateReader(entities *entitycache.EntityCache[*Project]) invalidation.StateReader {
	return invalidation.StateReaderFunc(func(ctx context.Context, table, recordID string) (map[string]any, bool) {
		if table != Table || recordID == "" {
			return nil, false
		}
		project, ok := entities.Get(ctx, recordID)
		if !ok {
			return nil, false
		}
		return project.Fields(), true
	})
}
