package notification

import (
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/worker/tasks"

	"go.uber.org/zap"
)

// Event 通知事件，由审批引擎等业务方产生
type Event struct {
	UserIDs       []string // 直接接收人
	RoleIDs       []string // 按角色扩散的接收人
	Type          string
	Channel       string
	Subject       string
	Message       string
	ReferenceType string
	ReferenceID   string
}

// Dispatcher 通知分发器，将事件投递到任务队列。
// 投递失败只记录日志，绝不影响业务流程。
type Dispatcher struct {
	queue queue.Client
}

// NewDispatcher 创建通知分发器，queue 为 nil 时仅记录日志
func NewDispatcher(q queue.Client) *Dispatcher {
	return &Dispatcher{queue: q}
}

// Dispatch 异步投递通知事件
func (d *Dispatcher) Dispatch(event Event) {
	if len(event.UserIDs) == 0 && len(event.RoleIDs) == 0 {
		logger.Warn("通知事件没有任何接收人",
			zap.String("type", event.Type),
			zap.String("reference_id", event.ReferenceID),
		)
		return
	}

	if event.Channel == "" {
		event.Channel = ChannelInApp
	}

	if d.queue == nil {
		logger.Debug("任务队列未配置，跳过通知投递",
			zap.String("type", event.Type),
			zap.String("reference_id", event.ReferenceID),
		)
		return
	}

	payload := tasks.DeliverNotificationPayload{
		UserIDs:       event.UserIDs,
		RoleIDs:       event.RoleIDs,
		Type:          event.Type,
		Channel:       event.Channel,
		Subject:       event.Subject,
		Message:       event.Message,
		ReferenceType: event.ReferenceType,
		ReferenceID:   event.ReferenceID,
	}
	if err := d.queue.EnqueueDeliverNotification(payload); err != nil {
		logger.Error("通知任务入队失败",
			zap.String("type", event.Type),
			zap.String("reference_id", event.ReferenceID),
			zap.Error(err),
		)
	}
}
