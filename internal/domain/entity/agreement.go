// Package entity 定义领域实体
package entity

import (
	"time"
)

// AgreementStatus 使用协议状态
type AgreementStatus string

const (
	AgreementStatusActive   AgreementStatus = "active"
	AgreementStatusExpiring AgreementStatus = "expiring"
	AgreementStatusExpired  AgreementStatus = "expired"
	AgreementStatusMissing  AgreementStatus = "missing"
)

// ComplianceAgreement 按提供商跟踪的使用协议。
// 本核心只读该数据，协议的维护属于外部系统。
type ComplianceAgreement struct {
	ID        string          `json:"id" gorm:"primaryKey"`
	Provider  Provider        `json:"provider" gorm:"column:provider;index"`
	Status    AgreementStatus `json:"status" gorm:"column:status"`
	ExpiresAt time.Time       `json:"expires_at" gorm:"column:expires_at"`
	Terms     string          `json:"terms" gorm:"column:terms"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName GORM 表名
func (ComplianceAgreement) TableName() string {
	return "compliance_agreements"
}

// IsExpired 检查协议在指定时刻是否已过期
func (a *ComplianceAgreement) IsExpired(now time.Time) bool {
	if a == nil {
		return true
	}
	if a.Status == AgreementStatusExpired {
		return true
	}
	return !a.ExpiresAt.IsZero() && !a.ExpiresAt.After(now)
}

// DaysUntilExpiry 距离到期的整数天数，已过期时为负
func (a *ComplianceAgreement) DaysUntilExpiry(now time.Time) int {
	if a == nil || a.ExpiresAt.IsZero() {
		return 0
	}
	return int(a.ExpiresAt.Sub(now).Hours() / 24)
}
