package submission

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"backend/internal/common"
	"backend/internal/logger"
)

func setupSubmissionTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if err := logger.Init("error", "console", "stdout"); err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}

	dsn := fmt.Sprintf("file:submission_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	if err := db.AutoMigrate(&FormSubmission{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db
}

func TestCreateAndSubmit(t *testing.T) {
	db := setupSubmissionTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	sub, err := svc.Create(ctx, "user-1", &CreateRequest{
		FormType: "LEAVE_REQUEST",
		Title:    "年假申请",
		Data:     datatypes.JSON(`{"days": 3}`),
	})
	if err != nil {
		t.Fatalf("创建表单提交失败: %v", err)
	}
	if sub.Status != StatusDraft {
		t.Fatalf("初始状态应为 DRAFT，实际: %s", sub.Status)
	}
	if !strings.HasPrefix(sub.SubmissionNumber, "FS-") {
		t.Fatalf("提交编号格式错误: %s", sub.SubmissionNumber)
	}

	submitted, err := svc.Submit(ctx, sub.ID, "user-1")
	if err != nil {
		t.Fatalf("提交表单失败: %v", err)
	}
	if submitted.Status != StatusSubmitted {
		t.Fatalf("提交后状态应为 SUBMITTED，实际: %s", submitted.Status)
	}
	if submitted.SubmittedAt == nil {
		t.Fatal("提交时间未记录")
	}
}

func TestSubmitGuards(t *testing.T) {
	db := setupSubmissionTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	sub, err := svc.Create(ctx, "user-1", &CreateRequest{
		FormType: "EXPENSE_CLAIM",
		Title:    "报销单",
	})
	if err != nil {
		t.Fatalf("创建表单提交失败: %v", err)
	}

	t.Run("非提交人不能提交", func(t *testing.T) {
		_, err := svc.Submit(ctx, sub.ID, "user-2")
		assertBusinessCode(t, err, common.CodeForbidden)
	})

	t.Run("重复提交被拒绝", func(t *testing.T) {
		if _, err := svc.Submit(ctx, sub.ID, "user-1"); err != nil {
			t.Fatalf("首次提交失败: %v", err)
		}
		_, err := svc.Submit(ctx, sub.ID, "user-1")
		assertBusinessCode(t, err, common.CodeInvalidRequest)
	})

	t.Run("审核中不能重新提交", func(t *testing.T) {
		if err := db.Model(&FormSubmission{}).Where("id = ?", sub.ID).
			Update("status", StatusUnderReview).Error; err != nil {
			t.Fatalf("更新状态失败: %v", err)
		}
		_, err := svc.Submit(ctx, sub.ID, "user-1")
		assertBusinessCode(t, err, common.CodeInvalidRequest)
	})
}

func TestWithdraw(t *testing.T) {
	db := setupSubmissionTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	sub, err := svc.Create(ctx, "user-1", &CreateRequest{
		FormType: "TRAVEL_REQUEST",
		Title:    "出差申请",
	})
	if err != nil {
		t.Fatalf("创建表单提交失败: %v", err)
	}

	// 草稿状态不允许撤回
	_, err = svc.Withdraw(ctx, sub.ID, "user-1")
	assertBusinessCode(t, err, common.CodeInvalidRequest)

	if _, err := svc.Submit(ctx, sub.ID, "user-1"); err != nil {
		t.Fatalf("提交表单失败: %v", err)
	}

	withdrawn, err := svc.Withdraw(ctx, sub.ID, "user-1")
	if err != nil {
		t.Fatalf("撤回表单失败: %v", err)
	}
	if withdrawn.Status != StatusWithdrawn {
		t.Fatalf("撤回后状态应为 WITHDRAWN，实际: %s", withdrawn.Status)
	}
}

func TestSetStatusTx(t *testing.T) {
	db := setupSubmissionTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	sub, err := svc.Create(ctx, "user-1", &CreateRequest{
		FormType: "LEAVE_REQUEST",
		Title:    "年假申请",
	})
	if err != nil {
		t.Fatalf("创建表单提交失败: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.SetStatusTx(tx, sub.ID, StatusApproved, true)
	})
	if err != nil {
		t.Fatalf("事务内更新状态失败: %v", err)
	}

	updated, err := svc.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("查询表单提交失败: %v", err)
	}
	if updated.Status != StatusApproved {
		t.Fatalf("状态应为 APPROVED，实际: %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatal("完结时间未记录")
	}

	// 不存在的ID返回 NotFound
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.SetStatusTx(tx, "missing-id", StatusApproved, false)
	})
	assertBusinessCode(t, err, common.CodeSubmissionNotFound)
}

func TestListForUser(t *testing.T) {
	db := setupSubmissionTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, "user-1", &CreateRequest{
			FormType: "LEAVE_REQUEST",
			Title:    fmt.Sprintf("申请 %d", i),
		}); err != nil {
			t.Fatalf("创建表单提交失败: %v", err)
		}
	}
	if _, err := svc.Create(ctx, "user-2", &CreateRequest{
		FormType: "LEAVE_REQUEST",
		Title:    "他人申请",
	}); err != nil {
		t.Fatalf("创建表单提交失败: %v", err)
	}

	subs, total, err := svc.ListForUser(ctx, "user-1", common.ListRequest{})
	if err != nil {
		t.Fatalf("查询表单提交列表失败: %v", err)
	}
	if total != 3 || len(subs) != 3 {
		t.Fatalf("列表结果不匹配: total=%d len=%d", total, len(subs))
	}

	// 状态过滤
	req := common.ListRequest{}
	req.Status = StatusDraft
	_, total, err = svc.ListForUser(ctx, "user-2", req)
	if err != nil {
		t.Fatalf("查询表单提交列表失败: %v", err)
	}
	if total != 1 {
		t.Fatalf("状态过滤结果不匹配: total=%d", total)
	}
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
