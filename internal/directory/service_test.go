package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"backend/internal/common"
	"backend/internal/logger"
)

func setupDirectoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if err := logger.Init("error", "console", "stdout"); err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}

	dsn := fmt.Sprintf("file:directory_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	if err := db.AutoMigrate(&User{}, &Role{}, &UserRole{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db
}

func TestCreateUserWithRoles(t *testing.T) {
	db := setupDirectoryTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "officer", "经办人")
	if err != nil {
		t.Fatalf("创建角色失败: %v", err)
	}

	user, err := svc.CreateUser(ctx, &CreateUserRequest{
		Username: "zhangsan",
		Email:    "zhangsan@example.com",
		Password: "password123",
		FullName: "张三",
		RoleIDs:  []string{role.ID},
	})
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	if user.ID == "" {
		t.Fatal("用户ID未生成")
	}
	if user.PasswordHash == "password123" {
		t.Fatal("密码未加密存储")
	}

	roleIDs, err := svc.RoleIDsOf(ctx, user.ID)
	if err != nil {
		t.Fatalf("查询用户角色失败: %v", err)
	}
	if len(roleIDs) != 1 || roleIDs[0] != role.ID {
		t.Fatalf("用户角色不匹配: %v", roleIDs)
	}

	names, err := svc.RoleNamesOf(ctx, user.ID)
	if err != nil {
		t.Fatalf("查询角色名称失败: %v", err)
	}
	if len(names) != 1 || names[0] != "officer" {
		t.Fatalf("角色名称不匹配: %v", names)
	}
}

func TestAuthenticate(t *testing.T) {
	db := setupDirectoryTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, &CreateUserRequest{
		Username: "lisi",
		Email:    "lisi@example.com",
		Password: "secret-pass-1",
	})
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	t.Run("正确密码", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "lisi", "secret-pass-1")
		if err != nil {
			t.Fatalf("认证失败: %v", err)
		}
		if user.Username != "lisi" {
			t.Fatalf("返回用户不匹配: %s", user.Username)
		}
	})

	t.Run("错误密码", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "lisi", "wrong-pass")
		assertBusinessCode(t, err, common.CodeInvalidCredentials)
	})

	t.Run("用户不存在", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody", "whatever")
		assertBusinessCode(t, err, common.CodeInvalidCredentials)
	})

	t.Run("用户已禁用", func(t *testing.T) {
		if err := db.Model(&User{}).Where("username = ?", "lisi").
			Update("is_active", false).Error; err != nil {
			t.Fatalf("禁用用户失败: %v", err)
		}
		_, err := svc.Authenticate(ctx, "lisi", "secret-pass-1")
		assertBusinessCode(t, err, common.CodeUserDisabled)
	})
}

func TestUsersWithRole(t *testing.T) {
	db := setupDirectoryTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "back_office", "内勤")
	if err != nil {
		t.Fatalf("创建角色失败: %v", err)
	}

	var memberIDs []string
	for i := 0; i < 3; i++ {
		user, err := svc.CreateUser(ctx, &CreateUserRequest{
			Username: fmt.Sprintf("member%d", i),
			Email:    fmt.Sprintf("member%d@example.com", i),
			Password: "password123",
			RoleIDs:  []string{role.ID},
		})
		if err != nil {
			t.Fatalf("创建用户失败: %v", err)
		}
		memberIDs = append(memberIDs, user.ID)
	}

	// 无该角色的用户不应出现在结果中
	if _, err := svc.CreateUser(ctx, &CreateUserRequest{
		Username: "outsider",
		Email:    "outsider@example.com",
		Password: "password123",
	}); err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	userIDs, err := svc.UsersWithRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("查询角色成员失败: %v", err)
	}
	if len(userIDs) != len(memberIDs) {
		t.Fatalf("角色成员数量不匹配: 期望 %d，实际 %d", len(memberIDs), len(userIDs))
	}
}

func TestAssignRoleNotFound(t *testing.T) {
	db := setupDirectoryTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, &CreateUserRequest{
		Username: "wangwu",
		Email:    "wangwu@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	err = svc.AssignRole(ctx, user.ID, "missing-role")
	assertBusinessCode(t, err, common.CodeRoleNotFound)
}

func assertBusinessCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatal("期望返回错误，实际为 nil")
	}
	bizErr, ok := err.(*common.BusinessError)
	if !ok {
		t.Fatalf("期望业务错误，实际: %v", err)
	}
	if bizErr.Code != code {
		t.Fatalf("错误码不匹配: 期望 %d，实际 %d", code, bizErr.Code)
	}
}
