package model

import "gorm.io/datatypes"

// StrategyModel 持久化用户保存的策略，腿以 JSON 存储。
type StrategyModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;index"`
	Name          string         `gorm:"column:name"`
	Expiry        string         `gorm:"column:expiry"`
	Notes         string         `gorm:"column:notes"`
	LegsJSON      datatypes.JSON `gorm:"column:legs_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (StrategyModel) TableName() string { return "strategies" }

// ReportModel 持久化已生成的报告。
type ReportModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	StrategyID    int64          `gorm:"column:strategy_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Model         string         `gorm:"column:model"`
	Summary       string         `gorm:"column:summary"`
	Outlook       string         `gorm:"column:outlook"`
	RiskLevel     string         `gorm:"column:risk_level"`
	ContentJSON   datatypes.JSON `gorm:"column:content_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (ReportModel) TableName() string { return "reports" }

// CreditEntryModel 是额度账本的一条流水（正为充值，负为消耗）。
type CreditEntryModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Account       string `gorm:"column:account;index"`
	Delta         string `gorm:"column:delta"` // 十进制字符串，避免浮点误差
	Reason        string `gorm:"column:reason"`
	RefID         string `gorm:"column:ref_id"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (CreditEntryModel) TableName() string { return "credit_entries" }
