package strategy

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"thetamind/internal/logger"
	"thetamind/internal/payoff"
)

// TemplateLeg 以相对现价的偏移描述一条模板腿。
type TemplateLeg struct {
	Type      string  `yaml:"type" json:"type"`
	Action    string  `yaml:"action" json:"action"`
	OffsetPct float64 `yaml:"offset_pct" json:"offset_pct"` // 行权价 = 现价 × (1 + offset_pct)
	Quantity  int     `yaml:"quantity" json:"quantity"`
}

// Template 是可围绕任意现价实例化的策略模板（跨式、铁鹰等）。
type Template struct {
	ID              string        `yaml:"id" json:"id"`
	Name            string        `yaml:"name" json:"name"`
	Description     string        `yaml:"description" json:"description,omitempty"`
	StrikeIncrement float64       `yaml:"strike_increment" json:"strike_increment,omitempty"`
	Legs            []TemplateLeg `yaml:"legs" json:"legs"`
}

// Instantiate 围绕 spot 实例化模板；行权价按 increment 取整。
// 权利金留空，由调用方的权利金解析链填充。
func (t Template) Instantiate(spot float64, expiry string) ([]payoff.Leg, error) {
	if spot <= 0 || math.IsNaN(spot) || math.IsInf(spot, 0) {
		return nil, fmt.Errorf("现价无效: %v", spot)
	}
	increment := t.StrikeIncrement
	if increment <= 0 {
		increment = defaultStrikeIncrement(spot)
	}
	legs := make([]payoff.Leg, 0, len(t.Legs))
	for _, tl := range t.Legs {
		qty := tl.Quantity
		if qty <= 0 {
			qty = 1
		}
		strike := math.Round(spot*(1+tl.OffsetPct)/increment) * increment
		if strike <= 0 {
			strike = increment
		}
		legs = append(legs, payoff.Leg{
			Type:     strings.ToLower(tl.Type),
			Action:   strings.ToLower(tl.Action),
			Strike:   strike,
			Quantity: qty,
			Expiry:   expiry,
		})
	}
	if len(legs) == 0 {
		return nil, fmt.Errorf("模板 %s 没有腿", t.ID)
	}
	return legs, nil
}

func defaultStrikeIncrement(spot float64) float64 {
	switch {
	case spot < 25:
		return 0.5
	case spot < 100:
		return 1
	case spot < 250:
		return 5
	default:
		return 10
	}
}

type templatesFile struct {
	Templates []Template `yaml:"templates"`
}

// Registry 管理策略模板，监听文件变更自动重载。
type Registry struct {
	path string

	mu        sync.RWMutex
	templates map[string]Template
	order     []string
	loadedAt  time.Time

	watcher *fsnotify.Watcher
}

// NewRegistry 读取模板文件并开始监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy template registry requires path")
	}
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("模板文件监听初始化失败，热重载不可用: %v", err)
		return r, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		logger.Warnf("模板目录监听失败，热重载不可用: %v", err)
		return r, nil
	}
	r.watcher = watcher
	go r.watch()
	return r, nil
}

func (r *Registry) watch() {
	for {
		select {
		case evt, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(r.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.reload(); err != nil {
				logger.Errorf("策略模板重载失败: %v", err)
				continue
			}
			logger.Infof("策略模板已重载（共 %d 个）", len(r.order))
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("模板文件监听错误: %v", err)
		}
	}
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("读取模板文件失败: %w", err)
	}
	var file templatesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("解析模板文件失败: %w", err)
	}
	templates := make(map[string]Template, len(file.Templates))
	order := make([]string, 0, len(file.Templates))
	for _, tpl := range file.Templates {
		id := strings.TrimSpace(tpl.ID)
		if id == "" {
			return fmt.Errorf("模板缺少 id")
		}
		if _, dup := templates[id]; dup {
			return fmt.Errorf("模板 id 重复: %s", id)
		}
		if len(tpl.Legs) == 0 {
			return fmt.Errorf("模板 %s 没有腿", id)
		}
		for i, leg := range tpl.Legs {
			lt := strings.ToLower(strings.TrimSpace(leg.Type))
			la := strings.ToLower(strings.TrimSpace(leg.Action))
			if lt != payoff.OptionCall && lt != payoff.OptionPut {
				return fmt.Errorf("模板 %s 第 %d 腿 type 无效", id, i+1)
			}
			if la != payoff.ActionBuy && la != payoff.ActionSell {
				return fmt.Errorf("模板 %s 第 %d 腿 action 无效", id, i+1)
			}
		}
		templates[id] = tpl
		order = append(order, id)
	}
	r.mu.Lock()
	r.templates = templates
	r.order = order
	r.loadedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// Close 停止文件监听。
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Template 返回指定 ID 的模板。
func (r *Registry) Template(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[strings.TrimSpace(id)]
	return tpl, ok
}

// List 按文件顺序返回全部模板。
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.templates[id])
	}
	return out
}

// IDs 返回排序后的模板 ID 列表。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
