package chart

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"thetamind/internal/payoff"
)

type ImageResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"base64"`
	HTML        []byte `json:"-"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

type PayoffInput struct {
	Symbol     string
	Title      string
	Spot       float64
	Points     []payoff.Point
	Metrics    payoff.Metrics
	BreakEvens []float64
	Width      int // 像素，<=0 时用默认值
	Height     int
}

func (in PayoffInput) size() (int, int) {
	w, h := in.Width, in.Height
	if w <= 0 {
		w = chartWidthPx
	}
	if h <= 0 {
		h = chartHeightPx
	}
	return w, h
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorProfit        = "#34d399"
	colorLoss          = "#f87171"
	colorPayoffLine    = "#3b82f6"
	colorBreakEven     = "#fbbf24"
	colorSpot          = "#a78bfa"

	chartWidthPx  = 1200
	chartHeightPx = 640
)

// BuildPayoffHTML 将到期损益曲线渲染为自包含的 echarts 页面，
// 盈亏平衡点与现价以竖向标线标出。
func BuildPayoffHTML(input PayoffInput) ([]byte, string, error) {
	if input.Symbol == "" {
		return nil, "", fmt.Errorf("symbol required for payoff render")
	}
	if len(input.Points) == 0 {
		return nil, "", fmt.Errorf("no payoff points for %s", input.Symbol)
	}

	title := input.Title
	if title == "" {
		title = fmt.Sprintf("%s 到期损益", strings.ToUpper(input.Symbol))
	}
	subtitle := fmt.Sprintf("净权利金 %.2f | 最大盈利 %s | 最大亏损 %.2f",
		input.Metrics.NetPremium, formatMaxProfit(input.Metrics.MaxProfit), input.Metrics.MaxLoss)

	width, height := input.size()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", width),
			Height:          fmt.Sprintf("%dpx", height),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "到期价格",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "盈亏",
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := make([]string, len(input.Points))
	data := make([]opts.LineData, len(input.Points))
	for i, p := range input.Points {
		xAxis[i] = fmt.Sprintf("%.2f", p.Price)
		data[i] = opts.LineData{Value: p.Profit}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("P/L", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorPayoffLine, Width: 3}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.12)}),
	)
	line.SetSeriesOptions(
		charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "零轴", YAxis: 0}),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol:    []string{"none", "none"},
			LineStyle: &opts.LineStyle{Color: colorTextSecondary, Type: "dashed", Opacity: opts.Float(0.6)},
		}),
	)

	addVerticalMarks(line, input)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, "", err
	}
	desc := describePayoff(input)
	return buf.Bytes(), desc, nil
}

// addVerticalMarks 叠加盈亏平衡点与现价的竖向标线。echarts 的 category 轴
// 不接受连续坐标，因此标线落在最接近的采样列上。
func addVerticalMarks(line *charts.Line, input PayoffInput) {
	for i, be := range input.BreakEvens {
		if idx, ok := nearestPointIndex(input.Points, be); ok {
			line.SetSeriesOptions(
				charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
					Name:  fmt.Sprintf("BE%d %.2f", i+1, be),
					XAxis: idx,
				}),
			)
		}
	}
	if input.Spot > 0 {
		if idx, ok := nearestPointIndex(input.Points, input.Spot); ok {
			line.SetSeriesOptions(
				charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
					Name:  fmt.Sprintf("现价 %.2f", input.Spot),
					XAxis: idx,
				}),
			)
		}
	}
}

func nearestPointIndex(points []payoff.Point, price float64) (int, bool) {
	if len(points) == 0 || math.IsNaN(price) {
		return 0, false
	}
	best := 0
	bestDist := math.Abs(points[0].Price - price)
	for i, p := range points {
		d := math.Abs(p.Price - price)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	// 超出采样窗口的价格不画标线
	span := points[len(points)-1].Price - points[0].Price
	if span > 0 && bestDist > span/float64(len(points)) {
		return 0, false
	}
	return best, true
}

func describePayoff(input PayoffInput) string {
	parts := []string{strings.ToUpper(input.Symbol)}
	parts = append(parts, fmt.Sprintf("净权利金 %.2f", input.Metrics.NetPremium))
	if len(input.BreakEvens) > 0 {
		bes := make([]string, len(input.BreakEvens))
		for i, be := range input.BreakEvens {
			bes[i] = fmt.Sprintf("%.2f", be)
		}
		parts = append(parts, "盈亏平衡 "+strings.Join(bes, "/"))
	} else {
		parts = append(parts, "无盈亏平衡点")
	}
	return strings.Join(parts, " | ")
}

func formatMaxProfit(v float64) string {
	if math.IsInf(v, 1) {
		return "无上限"
	}
	return fmt.Sprintf("%.2f", v)
}
