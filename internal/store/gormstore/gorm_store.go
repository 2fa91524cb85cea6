// Package gormstore implements strategy/report/credit persistence
// using Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"thetamind/internal/payoff"
	"thetamind/internal/report"
	storemodel "thetamind/internal/store/model"
	"thetamind/internal/strategy"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.StrategyModel{},
		&storemodel.ReportModel{},
		&storemodel.CreditEntryModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 少量并行支撑 HTTP 并发读，同时控制锁竞争
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- 策略 ---

// SaveStrategy 新建或更新策略，返回带 ID 的副本。
func (s *GormStore) SaveStrategy(ctx context.Context, st strategy.Strategy) (strategy.Strategy, error) {
	legs, err := json.Marshal(st.Legs)
	if err != nil {
		return strategy.Strategy{}, fmt.Errorf("序列化策略腿失败: %w", err)
	}
	now := time.Now()
	m := storemodel.StrategyModel{
		ID:            st.ID,
		Symbol:        st.Symbol,
		Name:          st.Name,
		Expiry:        st.Expiry,
		Notes:         st.Notes,
		LegsJSON:      datatypes.JSON(legs),
		UpdatedAtUnix: now.Unix(),
	}
	if st.ID == 0 {
		m.CreatedAtUnix = now.Unix()
		if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
			return strategy.Strategy{}, err
		}
	} else {
		res := s.db.WithContext(ctx).Model(&storemodel.StrategyModel{}).
			Where("id = ?", st.ID).
			Updates(map[string]any{
				"symbol":     m.Symbol,
				"name":       m.Name,
				"expiry":     m.Expiry,
				"notes":      m.Notes,
				"legs_json":  m.LegsJSON,
				"updated_at": m.UpdatedAtUnix,
			})
		if res.Error != nil {
			return strategy.Strategy{}, res.Error
		}
		if res.RowsAffected == 0 {
			return strategy.Strategy{}, ErrNotFound
		}
	}
	return s.GetStrategy(ctx, firstNonZero(m.ID, st.ID))
}

func (s *GormStore) GetStrategy(ctx context.Context, id int64) (strategy.Strategy, error) {
	var m storemodel.StrategyModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return strategy.Strategy{}, ErrNotFound
		}
		return strategy.Strategy{}, err
	}
	return toStrategy(m)
}

func (s *GormStore) ListStrategies(ctx context.Context, symbol string, limit int) ([]strategy.Strategy, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&storemodel.StrategyModel{}).Order("updated_at DESC").Limit(limit)
	if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []storemodel.StrategyModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]strategy.Strategy, 0, len(rows))
	for _, m := range rows {
		st, err := toStrategy(m)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *GormStore) DeleteStrategy(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&storemodel.StrategyModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func toStrategy(m storemodel.StrategyModel) (strategy.Strategy, error) {
	var legs []payoff.Leg
	if len(m.LegsJSON) > 0 {
		if err := json.Unmarshal(m.LegsJSON, &legs); err != nil {
			return strategy.Strategy{}, fmt.Errorf("解析策略腿失败 (id=%d): %w", m.ID, err)
		}
	}
	return strategy.Strategy{
		ID:        m.ID,
		Symbol:    m.Symbol,
		Name:      m.Name,
		Expiry:    m.Expiry,
		Notes:     m.Notes,
		Legs:      legs,
		CreatedAt: time.Unix(m.CreatedAtUnix, 0),
		UpdatedAt: time.Unix(m.UpdatedAtUnix, 0),
	}, nil
}

// --- 报告 ---

func (s *GormStore) SaveReport(ctx context.Context, r report.Report) (report.Report, error) {
	content, err := json.Marshal(r.Content)
	if err != nil {
		return report.Report{}, fmt.Errorf("序列化报告内容失败: %w", err)
	}
	m := storemodel.ReportModel{
		StrategyID:    r.StrategyID,
		Symbol:        r.Symbol,
		Model:         r.Model,
		Summary:       r.Content.Summary,
		Outlook:       r.Content.Outlook,
		RiskLevel:     r.Content.RiskLevel,
		ContentJSON:   datatypes.JSON(content),
		CreatedAtUnix: r.CreatedAt.Unix(),
	}
	if m.CreatedAtUnix <= 0 {
		m.CreatedAtUnix = time.Now().Unix()
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return report.Report{}, err
	}
	r.ID = m.ID
	return r, nil
}

func (s *GormStore) GetReport(ctx context.Context, id int64) (report.Report, error) {
	var m storemodel.ReportModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return report.Report{}, ErrNotFound
		}
		return report.Report{}, err
	}
	return toReport(m)
}

func (s *GormStore) ListReports(ctx context.Context, symbol string, limit int) ([]report.Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&storemodel.ReportModel{}).Order("created_at DESC").Limit(limit)
	if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []storemodel.ReportModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]report.Report, 0, len(rows))
	for _, m := range rows {
		r, err := toReport(m)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func toReport(m storemodel.ReportModel) (report.Report, error) {
	var content report.Content
	if len(m.ContentJSON) > 0 {
		if err := json.Unmarshal(m.ContentJSON, &content); err != nil {
			return report.Report{}, fmt.Errorf("解析报告内容失败 (id=%d): %w", m.ID, err)
		}
	}
	return report.Report{
		ID:         m.ID,
		StrategyID: m.StrategyID,
		Symbol:     m.Symbol,
		Model:      m.Model,
		Content:    content,
		RawJSON:    string(m.ContentJSON),
		CreatedAt:  time.Unix(m.CreatedAtUnix, 0),
	}, nil
}

// --- 额度账本 ---

// AppendCreditEntry 追加一条额度流水。
func (s *GormStore) AppendCreditEntry(ctx context.Context, account, delta, reason, refID string) error {
	m := storemodel.CreditEntryModel{
		Account:       account,
		Delta:         delta,
		Reason:        reason,
		RefID:         refID,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// CreditEntries 返回账户的全部流水（升序）。
func (s *GormStore) CreditEntries(ctx context.Context, account string) ([]storemodel.CreditEntryModel, error) {
	var rows []storemodel.CreditEntryModel
	err := s.db.WithContext(ctx).
		Where("account = ?", account).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func firstNonZero(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
