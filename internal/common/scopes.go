package common

import "gorm.io/gorm"

// ByStatus 按状态过滤
// 使用方法：db.Scopes(common.ByStatus("IN_PROGRESS")).Find(&approvals)
func ByStatus(status string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == "" {
			return db
		}
		return db.Where("status = ?", status)
	}
}

// BySubmitter 按提交人过滤
// 使用方法：db.Scopes(common.BySubmitter(userID)).Find(&submissions)
func BySubmitter(userID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("submitted_by = ?", userID)
	}
}

// ActiveOnly 仅查询启用中的记录
// 使用方法：db.Scopes(common.ActiveOnly()).Find(&workflows)
func ActiveOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ?", true)
	}
}
