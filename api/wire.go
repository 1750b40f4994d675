package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	approvalHandlers "backend/api/handlers/approvals"
	authHandlers "backend/api/handlers/auth"
	notificationHandlers "backend/api/handlers/notifications"
	submissionHandlers "backend/api/handlers/submissions"
	userHandlers "backend/api/handlers/users"
	workflowHandlers "backend/api/handlers/workflows"

	"backend/internal/approval"
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/config"
	"backend/internal/directory"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/notification"
	"backend/internal/signature"
	"backend/internal/submission"
	"backend/internal/worker"
	"backend/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器，集中完成服务装配
type AppContainer struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Queue          queue.Client
	QueueInspector *queue.Inspector

	JWTService *auth.JWTService

	Directory     *directory.Service
	Workflows     *workflow.Service
	Submissions   *submission.Service
	Notifications *notification.Service
	Dispatcher    *notification.Dispatcher
	Signer        signature.Signer
	Engine        *approval.Engine

	Worker *worker.Server
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Auth         *authHandlers.AuthHandler
	User         *userHandlers.UserHandler
	Workflow     *workflowHandlers.WorkflowHandler
	Submission   *submissionHandlers.SubmissionHandler
	Approval     *approvalHandlers.ApprovalHandler
	Notification *notificationHandlers.NotificationHandler
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	c := &AppContainer{
		Config: cfg,
		DB:     db,
	}

	// Redis：模板缓存与 JWT 黑名单使用；不可用时降级运行
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis 不可用，模板缓存与令牌黑名单已禁用", zap.Error(err))
		redisClient = nil
	}
	c.Redis = redisClient

	// 任务队列
	c.Queue = queue.NewClient(cfg.Redis)
	c.QueueInspector = queue.NewInspector(cfg.Redis)

	// JWT
	jwtSecret := strings.TrimSpace(cfg.JWT.Secret)
	if jwtSecret == "" {
		jwtSecret = strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	}
	if jwtSecret == "" {
		// 生产模式必须显式配置密钥，防止使用弱默认值
		if strings.EqualFold(cfg.Server.Mode, "release") {
			logger.Fatal("JWT 密钥未配置，生产环境禁止使用默认密钥")
		}
		jwtSecret = "default_jwt_secret_key_change_in_production"
		logger.Warn("JWT 密钥未配置，已回退为开发默认值")
	}
	issuer := cfg.JWT.Issuer
	if issuer == "" {
		issuer = "efiling"
	}
	var jwtRedis redis.UniversalClient
	if redisClient != nil {
		jwtRedis = redisClient
	}
	c.JWTService = auth.NewJWTService(jwtSecret, issuer, jwtRedis)

	// 领域服务
	c.Directory = directory.NewService(db)

	var wfOpts []workflow.ServiceOption
	if redisClient != nil {
		wfOpts = append(wfOpts, workflow.WithRedisCache(redisClient))
	}
	c.Workflows = workflow.NewService(db, wfOpts...)

	c.Submissions = submission.NewService(db)

	emailSender := notification.NewEmailSender(&cfg.Notification)
	c.Notifications = notification.NewService(db, c.Directory, notification.WithEmailSender(emailSender))
	c.Dispatcher = notification.NewDispatcher(c.Queue)

	signer, err := signature.NewEd25519Signer(db)
	if err != nil {
		return nil, fmt.Errorf("初始化签名服务失败: %w", err)
	}
	c.Signer = signer

	c.Engine = approval.NewEngine(db, c.Workflows, c.Submissions,
		approval.NewAuthorizer(c.Directory),
		approval.WithDispatcher(c.Dispatcher),
		approval.WithSigner(c.Signer),
	)

	// 异步 Worker（通知投递）
	c.Worker = worker.NewServer(cfg.Redis, c.Notifications, logger.Get())

	return c, nil
}

// InitHandlers 初始化 HTTP 处理器
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Auth:         authHandlers.NewAuthHandler(c.JWTService, c.Directory),
		User:         userHandlers.NewUserHandler(c.Directory),
		Workflow:     workflowHandlers.NewWorkflowHandler(c.Workflows),
		Submission:   submissionHandlers.NewSubmissionHandler(c.Submissions, c.Workflows, c.Engine),
		Approval:     approvalHandlers.NewApprovalHandler(c.Engine),
		Notification: notificationHandlers.NewNotificationHandler(c.Notifications),
	}
}

// Close 释放容器持有的连接
func (c *AppContainer) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			logger.Warn("关闭队列客户端失败", zap.Error(err))
		}
	}
	if c.QueueInspector != nil {
		if err := c.QueueInspector.Close(); err != nil {
			logger.Warn("关闭队列检查器失败", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("关闭 Redis 连接失败", zap.Error(err))
		}
	}
}

// QueueStatsHandler 通知队列状态端点（管理员）
func (c *AppContainer) QueueStatsHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		stats, err := c.QueueInspector.Stats()
		if err != nil {
			common.ResponseError(ctx, common.CodeServiceUnavailable, "队列状态不可用")
			return
		}
		common.ResponseSuccess(ctx, stats)
	}
}
