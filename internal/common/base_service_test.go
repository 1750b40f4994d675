package common

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// filingRecord 测试用的模型
type filingRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"size:255"`
	Status      string `gorm:"size:50"`
	SubmittedBy string `gorm:"size:100"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	if err := db.AutoMigrate(&filingRecord{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	return db
}

// seedTestData 插入测试数据
func seedTestData(t *testing.T, db *gorm.DB) {
	records := []filingRecord{
		{Title: "年假申请", Status: "SUBMITTED", SubmittedBy: "user-1"},
		{Title: "报销单", Status: "UNDER_REVIEW", SubmittedBy: "user-1"},
		{Title: "设备采购", Status: "SUBMITTED", SubmittedBy: "user-2"},
		{Title: "出差申请", Status: "APPROVED", SubmittedBy: "user-2"},
	}

	for _, r := range records {
		if err := db.Create(&r).Error; err != nil {
			t.Fatalf("插入测试数据失败: %v", err)
		}
	}
}

// TestPagination 测试分页
func TestPagination(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name        string
		page        int
		pageSize    int
		expectCount int
	}{
		{"Page 1, size 2", 1, 2, 2},
		{"Page 2, size 2", 2, 2, 2},
		{"Page 3, size 2", 3, 2, 0},
		{"Page 1, size 10", 1, 10, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := db.Model(&filingRecord{})
			query = service.ApplyPagination(query, tt.page, tt.pageSize)

			var records []filingRecord
			err := query.Find(&records).Error
			assert.NoError(t, err)
			assert.Equal(t, tt.expectCount, len(records))
		})
	}
}

// TestApplySorting 测试排序
func TestApplySorting(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name          string
		sortBy        string
		sortOrder     string
		allowedFields []string
		expectFirst   string
	}{
		{"Sort by title ASC", "title", "asc", []string{"title", "status"}, "出差申请"},
		{"Sort by status ASC", "status", "asc", []string{"title", "status"}, "出差申请"},
		{"Disallowed field falls back", "submitted_by; DROP TABLE", "asc", []string{"title"}, ""},
		{"Default sort", "", "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := db.Model(&filingRecord{})
			query = service.ApplySorting(query, tt.sortBy, tt.sortOrder, tt.allowedFields)

			var records []filingRecord
			err := query.Find(&records).Error
			assert.NoError(t, err)

			if tt.expectFirst != "" && len(records) > 0 {
				assert.Equal(t, tt.expectFirst, records[0].Title)
			}
		})
	}
}

// TestApplyStatusFilter 测试状态过滤
func TestApplyStatusFilter(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name        string
		status      string
		expectCount int64
	}{
		{"Filter SUBMITTED", "SUBMITTED", 2},
		{"Filter APPROVED", "APPROVED", 1},
		{"No filter", "", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := db.Model(&filingRecord{})
			query = service.ApplyStatusFilter(query, tt.status)

			var count int64
			err := query.Count(&count).Error
			assert.NoError(t, err)
			assert.Equal(t, tt.expectCount, count)
		})
	}
}

// TestApplyKeywordSearch 测试关键词搜索
func TestApplyKeywordSearch(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	query := db.Model(&filingRecord{})
	query = service.ApplyKeywordSearch(query, "申请", []string{"title"})

	var count int64
	err := query.Count(&count).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

// TestCRUD 测试通用CRUD操作
func TestCRUD(t *testing.T) {
	db := setupTestDB(t)
	service := NewBaseService(db)
	ctx := context.Background()

	record := &filingRecord{Title: "新建申请", Status: "DRAFT", SubmittedBy: "user-3"}
	err := service.Create(ctx, record)
	assert.NoError(t, err)
	assert.NotZero(t, record.ID)
	assert.NotZero(t, record.CreatedAt)

	record.Status = "SUBMITTED"
	err = service.Update(ctx, record)
	assert.NoError(t, err)

	exists, err := service.Exists(ctx, &filingRecord{}, "status = ?", "SUBMITTED")
	assert.NoError(t, err)
	assert.True(t, exists)

	count, err := service.Count(ctx, &filingRecord{}, "submitted_by = ?", "user-3")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = service.Delete(ctx, record)
	assert.NoError(t, err)
}

// TestTransaction 测试事务
func TestTransaction(t *testing.T) {
	db := setupTestDB(t)
	service := NewBaseService(db)
	ctx := context.Background()

	t.Run("Successful transaction", func(t *testing.T) {
		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			r1 := &filingRecord{Title: "TX 申请 1", Status: "SUBMITTED"}
			r2 := &filingRecord{Title: "TX 申请 2", Status: "SUBMITTED"}

			if err := tx.Create(r1).Error; err != nil {
				return err
			}
			if err := tx.Create(r2).Error; err != nil {
				return err
			}

			return nil
		})

		assert.NoError(t, err)

		var count int64
		db.Model(&filingRecord{}).Where("title LIKE ?", "TX 申请%").Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Failed transaction (rollback)", func(t *testing.T) {
		var countBefore int64
		db.Model(&filingRecord{}).Count(&countBefore)

		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			r := &filingRecord{Title: "回滚申请", Status: "SUBMITTED"}
			if err := tx.Create(r).Error; err != nil {
				return err
			}

			return gorm.ErrInvalidTransaction
		})

		assert.Error(t, err)

		var countAfter int64
		db.Model(&filingRecord{}).Count(&countAfter)
		assert.Equal(t, countBefore, countAfter)
	})
}
