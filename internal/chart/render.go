package chart

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"thetamind/internal/logger"
)

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 探测本机是否能启动 headless Chrome。
// 结果缓存一次，后续调用直接返回。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// RenderPayoffPNG 构建损益图并截图为 PNG。headless 不可用时降级为
// 只返回 HTML，调用方据此决定导出格式。
func RenderPayoffPNG(ctx context.Context, input PayoffInput) (ImageResult, error) {
	html, desc, err := BuildPayoffHTML(input)
	if err != nil {
		return ImageResult{}, err
	}
	result := ImageResult{
		HTML:        html,
		Filename:    fmt.Sprintf("%s_payoff.png", strings.ToLower(input.Symbol)),
		Description: desc,
	}
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		logger.Warnf("headless 不可用，损益图降级为 HTML 导出: %v", err)
		result.Filename = fmt.Sprintf("%s_payoff.html", strings.ToLower(input.Symbol))
		return result, nil
	}
	width, height := input.size()
	png, err := renderHTMLToPNG(ctx, html, width, height)
	if err != nil {
		return ImageResult{}, err
	}
	result.Bytes = png
	result.Base64 = base64.StdEncoding.EncodeToString(png)
	return result, nil
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1200 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
