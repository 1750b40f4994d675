package tasks

// Task Types
const (
	TypeDeliverNotification = "notification:deliver"
)

// DeliverNotificationPayload 通知投递任务载荷
// UserIDs 为直接接收人，RoleIDs 在投递时解析为角色成员
type DeliverNotificationPayload struct {
	UserIDs       []string `json:"user_ids"`
	RoleIDs       []string `json:"role_ids"`
	Type          string   `json:"type"`
	Channel       string   `json:"channel"`
	Subject       string   `json:"subject"`
	Message       string   `json:"message"`
	ReferenceType string   `json:"reference_type"`
	ReferenceID   string   `json:"reference_id"`
}
