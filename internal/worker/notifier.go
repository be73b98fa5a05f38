package worker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
)

// Notifier announces job transitions. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, update models.JobUpdate)
}

// JobUpdatesChannel is the pub/sub channel carrying updates for one job.
func JobUpdatesChannel(jobID string) string {
	return "job_updates:" + jobID
}

type RedisNotifier struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewRedisNotifier(client *redis.Client, log logrus.FieldLogger) *RedisNotifier {
	return &RedisNotifier{client: client, log: log}
}

func (n *RedisNotifier) Notify(ctx context.Context, update models.JobUpdate) {
	data, err := json.Marshal(models.WSMessage{Type: "status_update", Payload: update})
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, JobUpdatesChannel(update.JobID), data).Err(); err != nil {
		n.log.WithError(err).WithField("job_id", update.JobID).Warn("failed to publish job update")
	}
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, models.JobUpdate) {}
