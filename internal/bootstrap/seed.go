package bootstrap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"backend/internal/common"
	"backend/internal/config"
	"backend/internal/directory"
	"backend/internal/logger"
	"backend/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 系统内置角色
const (
	RoleAdministrator = "administrator"
	RoleBackOffice    = "back_office"
	RoleOfficer       = "officer"
)

// Seed 写入初始数据：内置角色、初始管理员和默认审批流程。
// 幂等：已存在的数据不会重复创建。
func Seed(ctx context.Context, db *gorm.DB, cfg *config.BootstrapConfig) error {
	if !cfg.Seed {
		return nil
	}

	dirSvc := directory.NewService(db)
	wfSvc := workflow.NewService(db)

	roles, err := seedRoles(ctx, db, dirSvc)
	if err != nil {
		return err
	}

	admin, err := seedAdmin(ctx, db, dirSvc, cfg, roles[RoleAdministrator])
	if err != nil {
		return err
	}

	if err := seedDefaultWorkflow(ctx, wfSvc, roles); err != nil {
		return err
	}

	logger.Info("初始数据写入完成", zap.String("admin_user_id", admin.ID))
	return nil
}

func seedRoles(ctx context.Context, db *gorm.DB, svc *directory.Service) (map[string]*directory.Role, error) {
	defs := []struct {
		name string
		desc string
	}{
		{RoleAdministrator, "系统管理员"},
		{RoleBackOffice, "内勤审核"},
		{RoleOfficer, "经办人"},
	}

	roles := make(map[string]*directory.Role, len(defs))
	for _, def := range defs {
		var existing directory.Role
		err := db.WithContext(ctx).Where("role_name = ?", def.name).First(&existing).Error
		if err == nil {
			roles[def.name] = &existing
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("查询角色失败: %w", err)
		}

		role, err := svc.CreateRole(ctx, def.name, def.desc)
		if err != nil {
			return nil, err
		}
		logger.Info("内置角色已创建", zap.String("role_name", def.name))
		roles[def.name] = role
	}
	return roles, nil
}

func seedAdmin(ctx context.Context, db *gorm.DB, svc *directory.Service, cfg *config.BootstrapConfig, adminRole *directory.Role) (*directory.User, error) {
	var existing directory.User
	err := db.WithContext(ctx).Where("username = ?", "admin").First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询管理员失败: %w", err)
	}

	password := cfg.AdminPassword
	if password == "" {
		password = generatePassword()
		logger.Warn("未配置初始管理员密码，已随机生成",
			zap.String("username", "admin"),
			zap.String("password", password),
		)
	}

	email := cfg.AdminEmail
	if email == "" {
		email = "admin@example.com"
	}

	admin, err := svc.CreateUser(ctx, &directory.CreateUserRequest{
		Username: "admin",
		Email:    email,
		Password: password,
		FullName: "系统管理员",
		RoleIDs:  []string{adminRole.ID},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("初始管理员已创建", zap.String("email", email))
	return admin, nil
}

// seedDefaultWorkflow 创建默认的两级审批流程：内勤初审、管理员终审。
func seedDefaultWorkflow(ctx context.Context, svc *workflow.Service, roles map[string]*directory.Role) error {
	const code = "DEFAULT_TWO_STEP"
	if _, err := svc.GetByCode(ctx, code); err == nil {
		return nil
	} else {
		var bizErr *common.BusinessError
		if !errors.As(err, &bizErr) || bizErr.Code != common.CodeWorkflowNotFound {
			return err
		}
	}

	_, err := svc.Create(ctx, &workflow.CreateRequest{
		WorkflowCode: code,
		WorkflowName: "默认两级审批",
		Description:  "内勤初审后由管理员终审的通用流程",
		FormType:     "GENERAL",
		Steps: []workflow.StepRequest{
			{
				StepOrder:       1,
				StepName:        "内勤初审",
				ApproverRoleIDs: []string{roles[RoleBackOffice].ID},
			},
			{
				StepOrder:       2,
				StepName:        "管理员终审",
				ApproverRoleIDs: []string{roles[RoleAdministrator].ID},
			},
		},
	})
	if err != nil {
		return err
	}
	logger.Info("默认审批流程已创建", zap.String("workflow_code", code))
	return nil
}

func generatePassword() string {
	raw := uuid.New()
	return hex.EncodeToString(raw[:])[:16]
}
