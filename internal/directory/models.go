package directory

import (
	"time"

	"backend/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 用户
type User struct {
	ID           string `json:"id" gorm:"type:varchar(36);primaryKey"`
	Username     string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Email        string `json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `json:"-" gorm:"size:255;not null"`
	FullName     string `json:"fullName" gorm:"size:200"`
	Department   string `json:"department" gorm:"size:200"`
	IsActive     bool   `json:"isActive" gorm:"not null;default:true"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`

	Roles []Role `json:"roles,omitempty" gorm:"many2many:user_roles"`

	common.TimestampModel
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate 创建前生成 UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Role 角色
type Role struct {
	ID          string `json:"id" gorm:"type:varchar(36);primaryKey"`
	RoleName    string `json:"roleName" gorm:"size:100;not null;uniqueIndex"`
	Description string `json:"description" gorm:"size:500"`

	common.TimestampModel
}

// TableName 指定表名
func (Role) TableName() string {
	return "roles"
}

// BeforeCreate 创建前生成 UUID
func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// UserRole 用户角色关联
type UserRole struct {
	UserID    string    `json:"userId" gorm:"type:varchar(36);primaryKey"`
	RoleID    string    `json:"roleId" gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// TableName 指定表名
func (UserRole) TableName() string {
	return "user_roles"
}
