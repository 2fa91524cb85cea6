// Package task runs and tracks pollable background jobs
// (report generation, chart export).
package task

import "time"

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const (
	KindReport      = "report"
	KindChartExport = "chart_export"
)

// Task 是一个可轮询的后台任务。
type Task struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	PayloadJSON string     `json:"payload,omitempty"`
	ResultJSON  string     `json:"result,omitempty"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal 报告任务是否已结束。
func (t Task) Terminal() bool {
	return t.Status == StatusDone || t.Status == StatusFailed
}
