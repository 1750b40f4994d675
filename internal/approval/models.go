package approval

import (
	"time"

	"backend/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审批实例状态
const (
	StatusPending    = "PENDING"     // 待启动
	StatusInProgress = "IN_PROGRESS" // 进行中
	StatusApproved   = "APPROVED"    // 已通过
	StatusRejected   = "REJECTED"    // 已驳回
	StatusCancelled  = "CANCELLED"   // 已取消
)

// 审批动作类型
const (
	ActionApprove        = "APPROVE"         // 同意
	ActionReject         = "REJECT"          // 驳回
	ActionRequestChanges = "REQUEST_CHANGES" // 退回补正
	ActionComment        = "COMMENT"         // 批注
)

// Approval 审批实例
// 一个表单提交至多存在一个审批实例，由 form_submission_id 唯一索引保证
type Approval struct {
	ID               string `json:"id" gorm:"type:varchar(36);primaryKey"`
	FormSubmissionID string `json:"formSubmissionId" gorm:"type:varchar(36);not null;uniqueIndex"`
	WorkflowID       string `json:"workflowId" gorm:"type:varchar(36);not null;index"`
	WorkflowCode     string `json:"workflowCode" gorm:"size:100;not null"`
	Status           string `json:"status" gorm:"size:30;not null;default:'IN_PROGRESS';index"`
	CurrentStepOrder int    `json:"currentStepOrder" gorm:"not null;default:1"`
	InitiatedBy      string `json:"initiatedBy" gorm:"type:varchar(36);not null;index"`

	// LockVersion 乐观锁版本号，每次状态变更递增
	LockVersion int `json:"-" gorm:"not null;default:0"`

	StartedAt   time.Time  `json:"startedAt" gorm:"not null"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Actions []ApprovalAction `json:"actions,omitempty" gorm:"foreignKey:ApprovalID"`

	common.TimestampModel
}

// TableName 指定表名
func (Approval) TableName() string {
	return "approvals"
}

// BeforeCreate 创建前生成 UUID
func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ApprovalAction 审批动作记录（只增不改）
type ApprovalAction struct {
	ID         string `json:"id" gorm:"type:varchar(36);primaryKey"`
	ApprovalID string `json:"approvalId" gorm:"type:varchar(36);not null;index"`
	StepID     string `json:"stepId" gorm:"type:varchar(36);not null;index"`
	StepOrder  int    `json:"stepOrder" gorm:"not null"`
	ActionType string `json:"actionType" gorm:"size:30;not null"`
	ActorID    string `json:"actorId" gorm:"type:varchar(36);not null;index"`
	Comment    string `json:"comment" gorm:"size:2000"`
	IPAddress  string `json:"ipAddress,omitempty" gorm:"size:45"`

	ActionedAt time.Time `json:"actionedAt" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// TableName 指定表名
func (ApprovalAction) TableName() string {
	return "approval_actions"
}

// BeforeCreate 创建前生成 UUID
func (a *ApprovalAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsValidActionType 检查动作类型是否合法
func IsValidActionType(actionType string) bool {
	switch actionType {
	case ActionApprove, ActionReject, ActionRequestChanges, ActionComment:
		return true
	}
	return false
}
