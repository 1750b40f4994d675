package approval

import (
	"context"
	"fmt"

	"backend/internal/directory"
	"backend/internal/logger"
	"backend/internal/workflow"

	"go.uber.org/zap"
)

// Authorizer 审批权限解析器，基于步骤配置判断用户能否审批
type Authorizer struct {
	directory *directory.Service
}

// NewAuthorizer 创建权限解析器
func NewAuthorizer(dir *directory.Service) *Authorizer {
	return &Authorizer{directory: dir}
}

// CanAct 判断用户是否可以对指定步骤执行审批动作：
// 用户被步骤直接指定，或用户的角色与步骤审批角色存在交集
func (a *Authorizer) CanAct(ctx context.Context, step *workflow.ApprovalStep, userID string) (bool, error) {
	for _, user := range step.ApproverUsers {
		if user.ID == userID {
			return true, nil
		}
	}

	if len(step.ApproverRoles) == 0 {
		return false, nil
	}

	userRoleIDs, err := a.directory.RoleIDsOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("解析用户角色失败: %w", err)
	}

	roleSet := make(map[string]bool, len(userRoleIDs))
	for _, id := range userRoleIDs {
		roleSet[id] = true
	}
	for _, role := range step.ApproverRoles {
		if roleSet[role.ID] {
			return true, nil
		}
	}
	return false, nil
}

// ResolveActors 解析步骤的全部审批人（直接指定 + 角色成员，去重）。
// 角色没有任何成员时记录告警，便于发现配置缺口。
func (a *Authorizer) ResolveActors(ctx context.Context, step *workflow.ApprovalStep) ([]string, error) {
	seen := make(map[string]bool)
	var actors []string

	for _, user := range step.ApproverUsers {
		if !seen[user.ID] {
			seen[user.ID] = true
			actors = append(actors, user.ID)
		}
	}

	for _, role := range step.ApproverRoles {
		members, err := a.directory.UsersWithRole(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("解析角色成员失败: %w", err)
		}
		if len(members) == 0 {
			logger.Warn("审批角色没有任何成员",
				zap.String("step_id", step.ID),
				zap.String("role_id", role.ID),
				zap.String("role_name", role.RoleName),
			)
		}
		for _, userID := range members {
			if !seen[userID] {
				seen[userID] = true
				actors = append(actors, userID)
			}
		}
	}

	return actors, nil
}
