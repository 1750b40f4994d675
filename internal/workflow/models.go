package workflow

import (
	"backend/internal/common"
	"backend/internal/directory"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalWorkflow 审批流程模板
type ApprovalWorkflow struct {
	ID           string `json:"id" gorm:"type:varchar(36);primaryKey"`
	WorkflowCode string `json:"workflowCode" gorm:"size:100;not null;uniqueIndex"`
	WorkflowName string `json:"workflowName" gorm:"size:255;not null"`
	Description  string `json:"description" gorm:"size:1000"`
	FormType     string `json:"formType" gorm:"size:100;not null;index"`
	IsActive     bool   `json:"isActive" gorm:"not null;default:true"`

	// RequiresDigitalSignature 最终通过时是否需要数字签章
	RequiresDigitalSignature bool `json:"requiresDigitalSignature" gorm:"not null;default:false"`

	Steps []ApprovalStep `json:"steps" gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE"`

	common.TimestampModel
}

// TableName 指定表名
func (ApprovalWorkflow) TableName() string {
	return "approval_workflows"
}

// BeforeCreate 创建前生成 UUID
func (w *ApprovalWorkflow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// StepAt 返回指定序号的步骤，未找到返回 nil
func (w *ApprovalWorkflow) StepAt(order int) *ApprovalStep {
	for i := range w.Steps {
		if w.Steps[i].StepOrder == order {
			return &w.Steps[i]
		}
	}
	return nil
}

// ApprovalStep 审批步骤
type ApprovalStep struct {
	ID         string `json:"id" gorm:"type:varchar(36);primaryKey"`
	WorkflowID string `json:"workflowId" gorm:"type:varchar(36);not null;uniqueIndex:idx_workflow_step_order"`
	StepOrder  int    `json:"stepOrder" gorm:"not null;uniqueIndex:idx_workflow_step_order"`
	StepName   string `json:"stepName" gorm:"size:255;not null"`

	// ApproverUsers 直接指定的审批人
	ApproverUsers []directory.User `json:"approverUsers,omitempty" gorm:"many2many:approval_step_approver_users"`
	// ApproverRoles 按角色指定的审批人
	ApproverRoles []directory.Role `json:"approverRoles,omitempty" gorm:"many2many:approval_step_approver_roles"`

	// RequiresAllApprovers 为 true 时，本步骤需要全部审批人同意才进入下一步
	RequiresAllApprovers bool `json:"requiresAllApprovers" gorm:"not null;default:false"`
	// IsFinalStep 是否为最终步骤
	IsFinalStep bool `json:"isFinalStep" gorm:"not null;default:false"`
	// RequiresSignature 本步骤通过时是否需要审批人签章
	RequiresSignature bool `json:"requiresSignature" gorm:"not null;default:false"`
	// AutoApproveHours 超时自动通过的小时数，nil 表示不自动通过
	AutoApproveHours *int `json:"autoApproveHours,omitempty"`

	common.TimestampModel
}

// TableName 指定表名
func (ApprovalStep) TableName() string {
	return "approval_steps"
}

// BeforeCreate 创建前生成 UUID
func (s *ApprovalStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
