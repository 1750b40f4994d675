package directory

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/common"
	"backend/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service 用户与角色目录服务
type Service struct {
	*common.BaseService
}

// NewService 创建目录服务
func NewService(db *gorm.DB) *Service {
	return &Service{
		BaseService: common.NewBaseService(db),
	}
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Username   string   `json:"username" binding:"required,min=3,max=100"`
	Email      string   `json:"email" binding:"required,email"`
	Password   string   `json:"password" binding:"required,min=8"`
	FullName   string   `json:"full_name"`
	Department string   `json:"department"`
	RoleIDs    []string `json:"role_ids"`
}

// CreateUser 创建用户
func (s *Service) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	user := &User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Department:   req.Department,
		IsActive:     true,
	}

	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("创建用户失败: %w", err)
		}
		for _, roleID := range req.RoleIDs {
			link := &UserRole{UserID: user.ID, RoleID: roleID}
			if err := tx.Create(link).Error; err != nil {
				return fmt.Errorf("分配角色失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("用户创建成功",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
	)
	return user, nil
}

// GetUser 根据ID获取用户（含角色）
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.GetDBWithContext(ctx).
		Preload("Roles").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeUserNotFound)
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// GetByUsername 根据用户名获取用户（含角色）
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.GetDBWithContext(ctx).
		Preload("Roles").
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewBusinessErrorWithCode(common.CodeUserNotFound)
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// Authenticate 校验用户名密码，成功返回用户
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		var bizErr *common.BusinessError
		if errors.As(err, &bizErr) && bizErr.Code == common.CodeUserNotFound {
			return nil, common.NewBusinessErrorWithCode(common.CodeInvalidCredentials)
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, common.NewBusinessErrorWithCode(common.CodeUserDisabled)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.NewBusinessErrorWithCode(common.CodeInvalidCredentials)
	}

	return user, nil
}

// RoleIDsOf 获取用户的角色ID列表
func (s *Service) RoleIDsOf(ctx context.Context, userID string) ([]string, error) {
	var roleIDs []string
	err := s.GetDBWithContext(ctx).
		Model(&UserRole{}).
		Where("user_id = ?", userID).
		Pluck("role_id", &roleIDs).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户角色失败: %w", err)
	}
	return roleIDs, nil
}

// RoleNamesOf 获取用户的角色名称列表（用于令牌声明）
func (s *Service) RoleNamesOf(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.GetDBWithContext(ctx).
		Model(&Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Pluck("roles.role_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户角色失败: %w", err)
	}
	return names, nil
}

// UsersWithRole 获取拥有指定角色的用户ID列表
func (s *Service) UsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	var userIDs []string
	err := s.GetDBWithContext(ctx).
		Model(&UserRole{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("查询角色成员失败: %w", err)
	}
	return userIDs, nil
}

// AssignRole 为用户分配角色
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	exists, err := s.Exists(ctx, &Role{}, "id = ?", roleID)
	if err != nil {
		return fmt.Errorf("查询角色失败: %w", err)
	}
	if !exists {
		return common.NewBusinessErrorWithCode(common.CodeRoleNotFound)
	}

	link := &UserRole{UserID: userID, RoleID: roleID}
	if err := s.GetDBWithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("分配角色失败: %w", err)
	}
	return nil
}

// CreateRole 创建角色
func (s *Service) CreateRole(ctx context.Context, roleName, description string) (*Role, error) {
	role := &Role{RoleName: roleName, Description: description}
	if err := s.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("创建角色失败: %w", err)
	}
	return role, nil
}

// ListRoles 列出所有角色
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.GetDBWithContext(ctx).Order("role_name").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("查询角色列表失败: %w", err)
	}
	return roles, nil
}

// ListUsers 分页列出用户
func (s *Service) ListUsers(ctx context.Context, req common.PaginationRequest) ([]User, int64, error) {
	var total int64
	if err := s.GetDBWithContext(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计用户失败: %w", err)
	}

	var users []User
	query := s.GetDBWithContext(ctx).Preload("Roles").Order("created_at DESC")
	err := s.ApplyPaginationRequest(query, req).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询用户列表失败: %w", err)
	}
	return users, total, nil
}
