package submission

import (
	"time"

	"backend/internal/common"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 表单提交状态
const (
	StatusDraft       = "DRAFT"        // 草稿
	StatusSubmitted   = "SUBMITTED"    // 已提交
	StatusUnderReview = "UNDER_REVIEW" // 审核中（退回补正后保持此状态，就地修改）
	StatusApproved    = "APPROVED"     // 已通过
	StatusRejected    = "REJECTED"     // 已驳回
	StatusWithdrawn   = "WITHDRAWN"    // 已撤回
)

// FormSubmission 表单提交记录
type FormSubmission struct {
	ID               string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	SubmissionNumber string         `json:"submissionNumber" gorm:"size:50;not null;uniqueIndex"`
	FormType         string         `json:"formType" gorm:"size:100;not null;index"`
	Title            string         `json:"title" gorm:"size:255;not null"`
	Data             datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Status           string         `json:"status" gorm:"size:30;not null;default:'DRAFT';index"`
	SubmittedBy      string         `json:"submittedBy" gorm:"type:varchar(36);not null;index"`

	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	common.TimestampModel
}

// TableName 指定表名
func (FormSubmission) TableName() string {
	return "form_submissions"
}

// BeforeCreate 创建前生成 UUID
func (s *FormSubmission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
