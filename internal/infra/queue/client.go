package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/metrics"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// QueueNotification 通知投递任务所在队列
const QueueNotification = "notification"

// Client 任务队列客户端接口
type Client interface {
	EnqueueDeliverNotification(payload tasks.DeliverNotificationPayload) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueDeliverNotification(payload tasks.DeliverNotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeDeliverNotification, data)

	// 通知投递失败重试 3 次
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Queue(QueueNotification),
	)
	if err != nil {
		metrics.NotificationEnqueueTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	metrics.NotificationEnqueueTotal.WithLabelValues("ok").Inc()
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
