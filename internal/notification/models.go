package notification

import (
	"time"

	"backend/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 通知类型
const (
	TypeSubmissionReceived = "SUBMISSION_RECEIVED" // 表单已接收
	TypeApprovalRequired   = "APPROVAL_REQUIRED"   // 待审批
	TypeApproved           = "APPROVED"            // 已通过
	TypeRejected           = "REJECTED"            // 已驳回
	TypeChangesRequested   = "CHANGES_REQUESTED"   // 退回补正
	TypeDocumentSigned     = "DOCUMENT_SIGNED"     // 文件已签章
	TypeGeneral            = "GENERAL"             // 一般通知
)

// 通知渠道
const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
	ChannelPush  = "PUSH"
	ChannelInApp = "IN_APP"
)

// 通知状态
const (
	StatusPending   = "PENDING"
	StatusSent      = "SENT"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Notification 通知记录
type Notification struct {
	ID      string `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID  string `json:"userId" gorm:"type:varchar(36);not null;index"`
	Type    string `json:"type" gorm:"size:50;not null"`
	Channel string `json:"channel" gorm:"size:20;not null;default:'IN_APP'"`
	Status  string `json:"status" gorm:"size:20;not null;default:'PENDING';index"`
	Subject string `json:"subject" gorm:"size:500"`
	Message string `json:"message" gorm:"size:2000"`

	// ReferenceType/ReferenceID 指向触发通知的业务对象
	ReferenceType string `json:"referenceType" gorm:"size:50"`
	ReferenceID   string `json:"referenceId" gorm:"type:varchar(36);index"`

	IsRead       bool       `json:"isRead" gorm:"not null;default:false;index"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty" gorm:"size:1000"`
	RetryCount   int        `json:"retryCount" gorm:"not null;default:0"`

	common.TimestampModel
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// BeforeCreate 创建前生成 UUID
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
