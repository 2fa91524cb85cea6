package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"thetamind/internal/billing"
	"thetamind/internal/gateway/marketdata"
	"thetamind/internal/logger"
	"thetamind/internal/market"
	"thetamind/internal/payoff"
	"thetamind/internal/store/gormstore"
	"thetamind/internal/strategy"
	"thetamind/internal/task"
)

// JobSubmitter 由 app 层实现，把报告生成/图表导出投递到后台任务队列。
type JobSubmitter interface {
	SubmitReport(ctx context.Context, strategyID int64) (task.Task, error)
	SubmitChartExport(ctx context.Context, strategyID int64) (task.Task, error)
}

// Router 暴露行情、损益、策略、报告与任务查询接口。
type Router struct {
	Market    *market.Service
	Store     *gormstore.GormStore
	Templates *strategy.Registry
	Billing   *billing.Service
	Tasks     *task.Store
	Jobs      JobSubmitter

	AdjacentWindow float64
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/market/quote", r.handleQuote)
	group.GET("/market/chain", r.handleChain)
	group.GET("/market/expirations", r.handleExpirations)

	group.POST("/payoff", r.handlePayoff)

	group.GET("/strategies", r.handleListStrategies)
	group.POST("/strategies", r.handleSaveStrategy)
	group.GET("/strategies/templates", r.handleListTemplates)
	group.POST("/strategies/templates/:id/instantiate", r.handleInstantiateTemplate)
	group.GET("/strategies/:id", r.handleGetStrategy)
	group.DELETE("/strategies/:id", r.handleDeleteStrategy)

	group.GET("/reports", r.handleListReports)
	group.POST("/reports", r.handleSubmitReport)
	group.GET("/reports/:id", r.handleGetReport)

	group.GET("/tasks", r.handleListTasks)
	group.GET("/tasks/:id", r.handleGetTask)

	group.POST("/export/payoff", r.handleExportPayoff)

	group.GET("/billing/balance", r.handleBalance)
}

func (r *Router) adjacentWindow() float64 {
	if r.AdjacentWindow > 0 {
		return r.AdjacentWindow
	}
	return payoff.DefaultAdjacentWindow
}

func (r *Router) handleQuote(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	quote, err := r.Market.Quote(c.Request.Context(), symbol)
	if err != nil {
		logger.Errorf("[api] quote failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

func (r *Router) handleChain(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	expiry := strings.TrimSpace(c.Query("expiry"))
	chain, err := r.Market.Chain(c.Request.Context(), symbol, expiry)
	if err != nil {
		logger.Errorf("[api] chain failed ip=%s symbol=%s expiry=%s err=%v", c.ClientIP(), symbol, expiry, err)
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	logger.Debugf("[api] chain ip=%s symbol=%s expiry=%s calls=%d puts=%d", c.ClientIP(), symbol, chain.Expiry, len(chain.Calls), len(chain.Puts))
	c.JSON(http.StatusOK, gin.H{"chain": chain})
}

func (r *Router) handleExpirations(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	dates, err := r.Market.Expirations(c.Request.Context(), symbol)
	if err != nil {
		logger.Errorf("[api] expirations failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "expirations": dates})
}

// handlePayoff 是核心计算入口：腿 + 现价 → 曲线、盈亏平衡点与指标。
// spot 缺省且带 symbol 时取实时报价；resolve_premiums 开启时按
// 精确行权价 → 临近行权价 → 存量权利金 的顺序补齐各腿权利金。
func (r *Router) handlePayoff(c *gin.Context) {
	var req payoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	ctx := c.Request.Context()

	spot := req.Spot
	if spot <= 0 && req.Symbol != "" {
		quote, err := r.Market.Quote(ctx, req.Symbol)
		if err != nil {
			logger.Warnf("[api] payoff quote fallback failed symbol=%s err=%v", req.Symbol, err)
			c.JSON(upstreamStatus(err), gin.H{"error": "现价获取失败: " + err.Error()})
			return
		}
		spot = quote.Last
	}

	legs := req.Legs
	if req.ResolvePremiums && req.Symbol != "" {
		chain, err := r.Market.Chain(ctx, req.Symbol, req.Expiry)
		if err != nil {
			// 链不可用时退回请求自带的权利金
			logger.Warnf("[api] payoff premium resolve skipped symbol=%s err=%v", req.Symbol, err)
		} else {
			legs = payoff.ResolveLegs(legs, chain, r.adjacentWindow())
		}
	}

	points := payoff.Compute(legs, spot)
	metrics := payoff.Summarize(legs, points)
	logger.Debugf("[api] payoff ip=%s symbol=%s legs=%d points=%d break_evens=%d",
		c.ClientIP(), req.Symbol, len(legs), len(points), len(metrics.BreakEvens))
	c.JSON(http.StatusOK, payoffResponse{
		Symbol:     req.Symbol,
		Spot:       spot,
		Legs:       legs,
		Points:     points,
		BreakEvens: metrics.BreakEvens,
		Metrics:    metrics,
	})
}

func (r *Router) handleSaveStrategy(c *gin.Context) {
	var st strategy.Strategy
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := st.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := r.Store.SaveStrategy(c.Request.Context(), st)
	if err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		logger.Errorf("[api] save strategy failed ip=%s symbol=%s err=%v", c.ClientIP(), st.Symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] strategy saved ip=%s id=%d symbol=%s legs=%d", c.ClientIP(), saved.ID, saved.Symbol, len(saved.Legs))
	c.JSON(http.StatusOK, gin.H{"strategy": saved})
}

func (r *Router) handleListStrategies(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := r.Store.ListStrategies(c.Request.Context(), symbol, limit)
	if err != nil {
		logger.Errorf("[api] list strategies failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

func (r *Router) handleGetStrategy(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}
	st, err := r.Store.GetStrategy(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": st})
}

func (r *Router) handleDeleteStrategy(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}
	if err := r.Store.DeleteStrategy(c.Request.Context(), id); err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] strategy deleted ip=%s id=%d", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleListTemplates(c *gin.Context) {
	if r.Templates == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "策略模板未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": r.Templates.List()})
}

// handleInstantiateTemplate 用模板围绕现价实例化一组腿，并补齐权利金后
// 返回预览曲线。结果不落库，由前端确认后再 POST /strategies 保存。
func (r *Router) handleInstantiateTemplate(c *gin.Context) {
	if r.Templates == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "策略模板未启用"})
		return
	}
	templateID := strings.TrimSpace(c.Param("id"))
	var req instantiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	tpl, ok := r.Templates.Template(templateID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found: " + templateID})
		return
	}

	ctx := c.Request.Context()
	spot := req.Spot
	if spot <= 0 {
		quote, err := r.Market.Quote(ctx, req.Symbol)
		if err != nil {
			c.JSON(upstreamStatus(err), gin.H{"error": "现价获取失败: " + err.Error()})
			return
		}
		spot = quote.Last
	}
	legs, err := tpl.Instantiate(spot, req.Expiry)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if chain, err := r.Market.Chain(ctx, req.Symbol, req.Expiry); err == nil {
		legs = payoff.ResolveLegs(legs, chain, r.adjacentWindow())
	} else {
		logger.Warnf("[api] template premium resolve skipped symbol=%s err=%v", req.Symbol, err)
	}

	points := payoff.Compute(legs, spot)
	metrics := payoff.Summarize(legs, points)
	logger.Infof("[api] template instantiated ip=%s template=%s symbol=%s spot=%.2f", c.ClientIP(), tpl.ID, req.Symbol, spot)
	c.JSON(http.StatusOK, gin.H{
		"template": tpl.ID,
		"payoff": payoffResponse{
			Symbol:     req.Symbol,
			Spot:       spot,
			Legs:       legs,
			Points:     points,
			BreakEvens: metrics.BreakEvens,
			Metrics:    metrics,
		},
	})
}

func (r *Router) handleSubmitReport(c *gin.Context) {
	if r.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "报告任务未启用"})
		return
	}
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StrategyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy_id 必填"})
		return
	}
	t, err := r.Jobs.SubmitReport(c.Request.Context(), req.StrategyID)
	if err != nil {
		if errors.Is(err, billing.ErrInsufficientCredits) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		logger.Errorf("[api] submit report failed ip=%s strategy=%d err=%v", c.ClientIP(), req.StrategyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] report task submitted ip=%s strategy=%d task=%s", c.ClientIP(), req.StrategyID, t.ID)
	c.JSON(http.StatusAccepted, gin.H{"task": t})
}

func (r *Router) handleListReports(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := r.Store.ListReports(c.Request.Context(), symbol, limit)
	if err != nil {
		logger.Errorf("[api] list reports failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list})
}

func (r *Router) handleGetReport(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}
	rep, err := r.Store.GetReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

func (r *Router) handleGetTask(c *gin.Context) {
	if r.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务存储未启用"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	t, err := r.Tasks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

func (r *Router) handleListTasks(c *gin.Context) {
	if r.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := r.Tasks.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

func (r *Router) handleExportPayoff(c *gin.Context) {
	if r.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "导出任务未启用"})
		return
	}
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StrategyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy_id 必填"})
		return
	}
	t, err := r.Jobs.SubmitChartExport(c.Request.Context(), req.StrategyID)
	if err != nil {
		if errors.Is(err, gormstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		logger.Errorf("[api] submit export failed ip=%s strategy=%d err=%v", c.ClientIP(), req.StrategyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] export task submitted ip=%s strategy=%d task=%s", c.ClientIP(), req.StrategyID, t.ID)
	c.JSON(http.StatusAccepted, gin.H{"task": t})
}

func (r *Router) handleBalance(c *gin.Context) {
	if r.Billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "计费未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":     r.Billing.Balance().String(),
		"report_cost": r.Billing.ReportCost().String(),
	})
}

// upstreamStatus 把上游行情错误映射为网关语义的状态码。
func upstreamStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, marketdata.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
