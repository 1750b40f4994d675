package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/logger"
)

func setupWorkflowServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if err := logger.Init("error", "console", "stdout"); err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}

	dsn := fmt.Sprintf("file:workflow_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	models := []any{
		&directory.User{}, &directory.Role{}, &directory.UserRole{},
		&ApprovalWorkflow{}, &ApprovalStep{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db
}

func seedApprover(t *testing.T, db *gorm.DB, username string) *directory.User {
	t.Helper()
	user := &directory.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return user
}

func seedRole(t *testing.T, db *gorm.DB, name string) *directory.Role {
	t.Helper()
	role := &directory.Role{RoleName: name}
	if err := db.Create(role).Error; err != nil {
		t.Fatalf("创建测试角色失败: %v", err)
	}
	return role
}

func TestCreateWorkflow(t *testing.T) {
	db := setupWorkflowServiceTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	approver := seedApprover(t, db, "approver1")
	role := seedRole(t, db, "back_office")

	wf, err := svc.Create(ctx, &CreateRequest{
		WorkflowCode: "LEAVE_APPROVAL",
		WorkflowName: "请假审批",
		FormType:     "LEAVE_REQUEST",
		Steps: []StepRequest{
			{StepOrder: 1, StepName: "初审", ApproverRoleIDs: []string{role.ID}},
			{StepOrder: 2, StepName: "终审", ApproverUserIDs: []string{approver.ID}},
		},
	})
	if err != nil {
		t.Fatalf("创建审批流程失败: %v", err)
	}

	if len(wf.Steps) != 2 {
		t.Fatalf("步骤数量不匹配: %d", len(wf.Steps))
	}
	if wf.Steps[0].IsFinalStep {
		t.Fatal("第一步不应为最终步骤")
	}
	if !wf.Steps[1].IsFinalStep {
		t.Fatal("最后一步应标记为最终步骤")
	}
	if len(wf.Steps[0].ApproverRoles) != 1 {
		t.Fatalf("第一步审批角色数量不匹配: %d", len(wf.Steps[0].ApproverRoles))
	}
	if len(wf.Steps[1].ApproverUsers) != 1 {
		t.Fatalf("第二步审批人数量不匹配: %d", len(wf.Steps[1].ApproverUsers))
	}
}

func TestCreateWorkflowValidation(t *testing.T) {
	db := setupWorkflowServiceTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	approver := seedApprover(t, db, "approver1")

	tests := []struct {
		name  string
		steps []StepRequest
	}{
		{"无步骤", nil},
		{"步骤无审批人", []StepRequest{
			{StepOrder: 1, StepName: "初审"},
		}},
		{"序号不连续", []StepRequest{
			{StepOrder: 1, StepName: "初审", ApproverUserIDs: []string{approver.ID}},
			{StepOrder: 3, StepName: "终审", ApproverUserIDs: []string{approver.ID}},
		}},
		{"序号重复", []StepRequest{
			{StepOrder: 1, StepName: "初审", ApproverUserIDs: []string{approver.ID}},
			{StepOrder: 1, StepName: "终审", ApproverUserIDs: []string{approver.ID}},
		}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, &CreateRequest{
				WorkflowCode: fmt.Sprintf("WF_%d", i),
				WorkflowName: "测试流程",
				FormType:     "TEST",
				Steps:        tt.steps,
			})
			assertBusinessCode(t, err, common.CodeWorkflowInvalid)
		})
	}
}

func TestCreateWorkflowDuplicateCode(t *testing.T) {
	db := setupWorkflowServiceTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	approver := seedApprover(t, db, "approver1")
	req := &CreateRequest{
		WorkflowCode: "EXPENSE_APPROVAL",
		WorkflowName: "报销审批",
		FormType:     "EXPENSE_CLAIM",
		Steps: []StepRequest{
			{StepOrder: 1, StepName: "审核", ApproverUserIDs: []string{approver.ID}},
		},
	}

	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("首次创建失败: %v", err)
	}
	_, err := svc.Create(ctx, req)
	assertBusinessCode(t, err, common.CodeConflict)
}

func TestGetByCode(t *testing.T) {
	db := setupWorkflowServiceTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	approver := seedApprover(t, db, "approver1")
	wf, err := svc.Create(ctx, &CreateRequest{
		WorkflowCode: "TRAVEL_APPROVAL",
		WorkflowName: "出差审批",
		FormType:     "TRAVEL_REQUEST",
		Steps: []StepRequest{
			{StepOrder: 1, StepName: "审核", ApproverUserIDs: []string{approver.ID}},
		},
	})
	if err != nil {
		t.Fatalf("创建审批流程失败: %v", err)
	}

	found, err := svc.GetByCode(ctx, "TRAVEL_APPROVAL")
	if err != nil {
		t.Fatalf("按编码查询失败: %v", err)
	}
	if found.ID != wf.ID {
		t.Fatalf("查询结果不匹配: %s != %s", found.ID, wf.ID)
	}

	// 停用后不可按编码查询
	if err := svc.SetActive(ctx, wf.ID, false); err != nil {
		t.Fatalf("停用审批流程失败: %v", err)
	}
	_, err = svc.GetByCode(ctx, "TRAVEL_APPROVAL")
	assertBusinessCode(t, err, common.CodeWorkflowNotFound)
}

func TestUpdateReplacesSteps(t *testing.T) {
	db := setupWorkflowServiceTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	a1 := seedApprover(t, db, "approver1")
	a2 := seedApprover(t, db, "approver2")

	wf, err := svc.Create(ctx, &CreateRequest{
		WorkflowCode: "PROC_APPROVAL",
		WorkflowName: "采购审批",
		FormType:     "PROCUREMENT",
		Steps: []StepRequest{
			{StepOrder: 1, StepName: "审核", ApproverUserIDs: []string{a1.ID}},
		},
	})
	if err != nil {
		t.Fatalf("创建审批流程失败: %v", err)
	}

	name := "采购审批（新）"
	updated, err := svc.Update(ctx, wf.ID, &UpdateRequest{
		WorkflowName: &name,
		Steps: []StepRequest{
			{StepOrder: 1, StepName: "初审", ApproverUserIDs: []string{a1.ID}},
			{StepOrder: 2, StepName: "复审", ApproverUserIDs: []string{a2.ID}},
		},
	})
	if err != nil {
		t.Fatalf("更新审批流程失败: %v", err)
	}

	if updated.WorkflowName != name {
		t.Fatalf("名称未更新: %s", updated.WorkflowName)
	}
	if len(updated.Steps) != 2 {
		t.Fatalf("步骤未替换: %d", len(updated.Steps))
	}
	if !updated.Steps[1].IsFinalStep {
		t.Fatal("新的最后一步应标记为最终步骤")
	}

	var stepCount int64
	db.Model(&ApprovalStep{}).Where("workflow_id = ?", wf.ID).Count(&stepCount)
	if stepCount != 2 {
		t.Fatalf("数据库中残留旧步骤: %d", stepCount)
	}
}

func TestListWorkflows(t *testing.T) {
	db := setupWorkflowServiceTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	approver := seedApprover(t, db, "approver1")
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, &CreateRequest{
			WorkflowCode: fmt.Sprintf("WF_LIST_%d", i),
			WorkflowName: fmt.Sprintf("流程 %d", i),
			FormType:     "TEST",
			Steps: []StepRequest{
				{StepOrder: 1, StepName: "审核", ApproverUserIDs: []string{approver.ID}},
			},
		}); err != nil {
			t.Fatalf("创建审批流程失败: %v", err)
		}
	}

	workflows, total, err := svc.List(ctx, common.ListRequest{})
	if err != nil {
		t.Fatalf("查询审批流程列表失败: %v", err)
	}
	if total != 3 || len(workflows) != 3 {
		t.Fatalf("列表结果不匹配: total=%d len=%d", total, len(workflows))
	}

	req := common.ListRequest{}
	req.Keyword = "WF_LIST_1"
	_, total, err = svc.List(ctx, req)
	if err != nil {
		t.Fatalf("关键词查询失败: %v", err)
	}
	if total != 1 {
		t.Fatalf("关键词过滤结果不匹配: total=%d", total)
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
