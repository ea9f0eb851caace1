package service

import (
	"context"
	"errors"
	"fmt"

	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/pkg/events"

	"github.com/google/uuid"
)

// HealthRefreshDurable names the bus consumer that refreshes health snapshots.
const HealthRefreshDurable = "cluster-health-refresh"

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService refreshes the health snapshot of every cluster touched by
// a successful topology event.
type consumerService struct {
	subscriber     events.Subscriber
	clusterService IClusterService
	logger         logger.ILogger
}

func NewConsumerService(
	subscriber events.Subscriber,
	clusterService IClusterService,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:     subscriber,
		clusterService: clusterService,
		logger:         log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	return cs.subscriber.Subscribe(ctx, "CLUSTER_*", HealthRefreshDurable, cs.processEvent)
}

func (cs *consumerService) processEvent(ctx context.Context, event events.Event) error {
	data := event.Payload()
	if ok, _ := data["success"].(bool); !ok {
		return nil
	}

	rawUser, _ := data["user_id"].(string)
	userId, err := uuid.Parse(rawUser)
	if err != nil {
		// Undecodable events are acknowledged so they are not redelivered.
		cs.logger.Warn(logger.ModuleEvents, "Cluster event without user id", map[string]interface{}{
			"event_type": event.EventType(),
		})
		return nil
	}

	ids := parseUUIDs(events.StringIDs(data, "target_cluster_ids"))
	if source, ok := data["source_cluster_id"].(string); ok {
		ids = append(ids, parseUUIDs([]string{source})...)
	}
	if len(ids) == 0 {
		return nil
	}

	refreshed, err := cs.clusterService.RefreshHealth(ctx, userId, ids)
	if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrInvalidArgument) {
		// Retrying cannot help; acknowledge.
		cs.logger.Warn(logger.ModuleEvents, "Skipping health refresh", map[string]interface{}{
			"event_type": event.EventType(),
			"user_id":    userId.String(),
			"error":      err.Error(),
		})
		return nil
	}
	if err != nil {
		cs.logger.Error(logger.ModuleEvents, "Failed to refresh cluster health", map[string]interface{}{
			"event_type": event.EventType(),
			"user_id":    userId.String(),
			"error":      err.Error(),
		})
		return fmt.Errorf("refresh health: %w", err)
	}

	cs.logger.Debug(logger.ModuleEvents, "Cluster health refreshed", map[string]interface{}{
		"event_type": event.EventType(),
		"clusters":   refreshed,
	})
	return nil
}
