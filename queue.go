/*
Copyright 2025 Quanta Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/internal/notification"
	redis_db "github.com/quantaledger/bridge/internal/redis-db"
	"github.com/quantaledger/bridge/model"
)

const DeadLetterTask = "bridge:dead_letter"

// DeadLetterPayload is the task body queued when a command exhausts its retry
// budget or fails terminally. Workers fan it out to the configured
// notification channels; the row itself stays in the outbox for inspection.
type DeadLetterPayload struct {
	CommandID    string            `json:"command_id"`
	TenantID     string            `json:"tenant_id"`
	CommandType  model.CommandType `json:"command_type"`
	ErrorCode    string            `json:"error_code"`
	ErrorMessage string            `json:"error_message"`
	Attempts     int               `json:"attempts"`
}

// Queue publishes dead-letter tasks onto the shared Redis-backed queue.
type Queue struct {
	Client *asynq.Client
	queue  string
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	rds, err := redis_db.NewRedisClient([]string{conf.Redis.Dns})
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client: asynq.NewClientFromRedisClient(rds.Client()),
		queue:  conf.Queue.DeadLetterQueue,
	}, nil
}

// EnqueueDeadLetter records a terminally failed command for operator
// attention. Enqueue failures are logged but never block the dispatcher; the
// outbox row is the durable record.
func (q *Queue) EnqueueDeadLetter(ctx context.Context, payload DeadLetterPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(DeadLetterTask, body,
		asynq.TaskID(fmt.Sprintf("dead_letter_%s", payload.CommandID)),
		asynq.Queue(q.queue),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logrus.Infof("dead letter enqueued: command %s task %s", payload.CommandID, info.ID)
	return nil
}

func (q *Queue) Close() error {
	return q.Client.Close()
}

// NewDeadLetterServer builds the asynq worker that drains the dead-letter
// queue and fires notifications.
func NewDeadLetterServer(conf *config.Configuration) (*asynq.Server, *asynq.ServeMux, error) {
	rds, err := redis_db.NewRedisClient([]string{conf.Redis.Dns})
	if err != nil {
		return nil, nil, err
	}
	srv := asynq.NewServerFromRedisClient(rds.Client(), asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{conf.Queue.DeadLetterQueue: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(DeadLetterTask, handleDeadLetter)
	return srv, mux, nil
}

func handleDeadLetter(ctx context.Context, task *asynq.Task) error {
	var payload DeadLetterPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("undecodable dead letter task: %v", err)
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"command_id":   payload.CommandID,
		"tenant_id":    payload.TenantID,
		"command_type": payload.CommandType,
		"error_code":   payload.ErrorCode,
		"attempts":     payload.Attempts,
	}).Error("command dead-lettered")

	notification.NotifyError(fmt.Errorf("command %s (%s) dead-lettered after %d attempts: %s: %s",
		payload.CommandID, payload.CommandType, payload.Attempts, payload.ErrorCode, payload.ErrorMessage))
	return nil
}
