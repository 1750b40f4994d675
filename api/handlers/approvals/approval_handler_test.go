package approvals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend/internal/approval"
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/directory"
	"backend/internal/logger"
	"backend/internal/submission"
	"backend/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// 测试专用用户头，代替 JWT 中间件注入用户上下文
const testUserHeader = "X-Test-User"

type handlerFixture struct {
	db          *gorm.DB
	directory   *directory.Service
	workflows   *workflow.Service
	submissions *submission.Service
	engine      *approval.Engine
	router      *gin.Engine
}

func setupHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := logger.Init("error", "console", "stdout"); err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}

	dsn := fmt.Sprintf("file:approval_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(
		&directory.User{}, &directory.Role{}, &directory.UserRole{},
		&workflow.ApprovalWorkflow{}, &workflow.ApprovalStep{},
		&submission.FormSubmission{},
		&approval.Approval{}, &approval.ApprovalAction{},
	); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	dirSvc := directory.NewService(db)
	wfSvc := workflow.NewService(db)
	subSvc := submission.NewService(db)
	engine := approval.NewEngine(db, wfSvc, subSvc, approval.NewAuthorizer(dirSvc))

	handler := NewApprovalHandler(engine)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID := c.GetHeader(testUserHeader); userID != "" {
			c.Set(string(auth.UserContextKey), &auth.UserContext{UserID: userID})
		}
		c.Next()
	})
	router.POST("/api/approvals/:id/action", handler.ProcessAction)
	router.POST("/api/approvals/:id/approve", handler.Approve)
	router.POST("/api/approvals/:id/reject", handler.Reject)
	router.GET("/api/approvals/pending", handler.ListPending)
	router.GET("/api/approvals/:id", handler.GetApproval)

	return &handlerFixture{
		db:          db,
		directory:   dirSvc,
		workflows:   wfSvc,
		submissions: subSvc,
		engine:      engine,
		router:      router,
	}
}

func (f *handlerFixture) request(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("编码请求体失败: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(testUserHeader, userID)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) approver(t *testing.T) string {
	t.Helper()
	user, err := f.directory.CreateUser(context.Background(), &directory.CreateUserRequest{
		Username: fmt.Sprintf("approver-%d", time.Now().UnixNano()),
		Email:    fmt.Sprintf("a%d@example.com", time.Now().UnixNano()),
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("创建审批人失败: %v", err)
	}
	return user.ID
}

// newApproval 创建单步流程并发起审批，返回审批实例ID与表单ID
func (f *handlerFixture) newApproval(t *testing.T, approverID string) (string, string) {
	t.Helper()
	ctx := context.Background()

	submitter, err := f.directory.CreateUser(ctx, &directory.CreateUserRequest{
		Username: fmt.Sprintf("submitter-%d", time.Now().UnixNano()),
		Email:    fmt.Sprintf("s%d@example.com", time.Now().UnixNano()),
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("创建提交人失败: %v", err)
	}

	wf, err := f.workflows.Create(ctx, &workflow.CreateRequest{
		WorkflowCode: fmt.Sprintf("WF-%d", time.Now().UnixNano()),
		WorkflowName: "单步审批",
		FormType:     "GENERAL",
		Steps: []workflow.StepRequest{
			{StepOrder: 1, StepName: "审核", ApproverUserIDs: []string{approverID}},
		},
	})
	if err != nil {
		t.Fatalf("创建流程失败: %v", err)
	}

	sub, err := f.submissions.Create(ctx, submitter.ID, &submission.CreateRequest{
		FormType: "GENERAL",
		Title:    "测试表单",
	})
	if err != nil {
		t.Fatalf("创建表单失败: %v", err)
	}
	if _, err := f.submissions.Submit(ctx, sub.ID, submitter.ID); err != nil {
		t.Fatalf("提交表单失败: %v", err)
	}

	appr, err := f.engine.Initiate(ctx, sub.ID, wf.ID, submitter.ID)
	if err != nil {
		t.Fatalf("发起审批失败: %v", err)
	}
	return appr.ID, sub.ID
}

func TestProcessActionHTTP(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	approvalID, _ := f.newApproval(t, approverID)

	w := f.request(t, approverID, http.MethodPost,
		"/api/approvals/"+approvalID+"/action",
		gin.H{"action_type": "APPROVE", "comment": "同意"},
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, approval.StatusApproved, resp.Data.Status)
}

func TestApproveShortcutDefaultsComment(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	approvalID, _ := f.newApproval(t, approverID)

	w := f.request(t, approverID, http.MethodPost,
		"/api/approvals/"+approvalID+"/approve", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	appr, err := f.engine.Get(context.Background(), approvalID)
	assert.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, appr.Status)
	if assert.Len(t, appr.Actions, 1) {
		assert.Equal(t, "Approved", appr.Actions[0].Comment)
	}
}

func TestApproveShortcutBySubmissionID(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	approvalID, submissionID := f.newApproval(t, approverID)

	// 快捷端点以文档为中心：路径参数传表单提交 ID 同样生效
	w := f.request(t, approverID, http.MethodPost,
		"/api/approvals/"+submissionID+"/approve", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	appr, err := f.engine.Get(context.Background(), approvalID)
	assert.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, appr.Status)
}

func TestRejectShortcutBySubmissionID(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	approvalID, submissionID := f.newApproval(t, approverID)

	w := f.request(t, approverID, http.MethodPost,
		"/api/approvals/"+submissionID+"/reject",
		gin.H{"comment": "材料不全"},
	)
	assert.Equal(t, http.StatusOK, w.Code)

	appr, err := f.engine.Get(context.Background(), approvalID)
	assert.NoError(t, err)
	assert.Equal(t, approval.StatusRejected, appr.Status)
}

func TestRejectShortcutHTTP(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	approvalID, _ := f.newApproval(t, approverID)

	w := f.request(t, approverID, http.MethodPost,
		"/api/approvals/"+approvalID+"/reject",
		gin.H{"comment": "材料不全"},
	)
	assert.Equal(t, http.StatusOK, w.Code)

	appr, err := f.engine.Get(context.Background(), approvalID)
	assert.NoError(t, err)
	assert.Equal(t, approval.StatusRejected, appr.Status)
}

func TestUnauthorizedActorReturns403(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	outsiderID := f.approver(t)
	approvalID, _ := f.newApproval(t, approverID)

	w := f.request(t, outsiderID, http.MethodPost,
		"/api/approvals/"+approvalID+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp struct {
		Code int `json:"code"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.CodeForbidden, resp.Code)
}

func TestApprovalNotFoundReturns404(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)

	w := f.request(t, approverID, http.MethodPost,
		"/api/approvals/missing-id/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPendingHTTP(t *testing.T) {
	f := setupHandlerFixture(t)
	approverID := f.approver(t)
	approvalID, _ := f.newApproval(t, approverID)

	w := f.request(t, approverID, http.MethodGet, "/api/approvals/pending", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
			Pagination struct {
				Total int64 `json:"total"`
			} `json:"pagination"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.Pagination.Total)
	if assert.Len(t, resp.Data.Items, 1) {
		assert.Equal(t, approvalID, resp.Data.Items[0].ID)
	}
}
