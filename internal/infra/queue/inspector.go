package queue

import (
	"fmt"

	"backend/internal/config"

	"github.com/hibiken/asynq"
)

// QueueStats 通知队列运行状态
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// Inspector 队列状态检查器，用于运维端点展示通知队列积压情况
type Inspector struct {
	inspector *asynq.Inspector
}

// NewInspector 创建队列检查器
func NewInspector(cfg config.RedisConfig) *Inspector {
	return &Inspector{
		inspector: asynq.NewInspector(asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Stats 获取通知队列统计信息
func (i *Inspector) Stats() (*QueueStats, error) {
	info, err := i.inspector.GetQueueInfo(QueueNotification)
	if err != nil {
		return nil, fmt.Errorf("查询队列状态失败: %w", err)
	}
	return &QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Failed:    info.Failed,
	}, nil
}

// Close 关闭检查器连接
func (i *Inspector) Close() error {
	return i.inspector.Close()
}
