// Package http 模拟与场景服务接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
	"github.com/wyfcoding/creditrisk/internal/simulation/application"
)

type Handler struct {
	service *application.SimulationService
}

func NewHandler(service *application.SimulationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/simulations")
	{
		g.POST("/run", h.RunSimulation)
		g.POST("/contributions", h.RiskContributions)
		g.POST("/fan-paths", h.FanPaths)
		g.POST("/history", h.GenerateHistory)
		g.POST("/stress-metrics", h.StressMetrics)
	}
	s := r.Group("/scenarios")
	{
		s.GET("", h.ListScenarios)
		s.GET("/:id", h.GetScenario)
		s.POST("/compare", h.CompareScenarios)
		s.POST("", h.RegisterScenario)
	}
}

// CorrelationOverrideDTO 一对资产的相关系数覆写
type CorrelationOverrideDTO struct {
	AssetA string  `json:"asset_a" binding:"required"`
	AssetB string  `json:"asset_b" binding:"required"`
	Value  float64 `json:"value"`
}

// ScenarioDTO 场景的传输视图
// 相关系数覆写在领域内以资产对为 key，JSON 无法直接表达，这里展开成列表
type ScenarioDTO struct {
	ID                   string                   `json:"id"`
	Name                 string                   `json:"name"`
	Description          string                   `json:"description"`
	MarketDrawdown       float64                  `json:"market_drawdown"`
	VolatilityMultiplier float64                  `json:"volatility_multiplier"`
	PriceShocks          map[string]float64       `json:"price_shocks,omitempty"`
	CorrelationOverrides []CorrelationOverrideDTO `json:"correlation_overrides,omitempty"`
	PDMultiplier         float64                  `json:"pd_multiplier"`
	LGDMultiplier        float64                  `json:"lgd_multiplier"`
	CopulaDoF            float64                  `json:"copula_dof"`
	DefaultCorrelation   float64                  `json:"default_correlation"`
	SlippageMultiplier   float64                  `json:"slippage_multiplier"`
	CureProbability      float64                  `json:"cure_probability"`
}

func toScenarioDTO(s scenario.StressScenario) ScenarioDTO {
	dto := ScenarioDTO{
		ID:                   s.ID,
		Name:                 s.Name,
		Description:          s.Description,
		MarketDrawdown:       s.MarketDrawdown,
		VolatilityMultiplier: s.VolatilityMultiplier,
		PDMultiplier:         s.PDMultiplier,
		LGDMultiplier:        s.LGDMultiplier,
		CopulaDoF:            s.CopulaDoF,
		DefaultCorrelation:   s.DefaultCorrelation,
		SlippageMultiplier:   s.SlippageMultiplier,
		CureProbability:      s.CureProbability,
	}
	if len(s.PriceShocks) > 0 {
		dto.PriceShocks = make(map[string]float64, len(s.PriceShocks))
		for sym, shock := range s.PriceShocks {
			dto.PriceShocks[string(sym)] = shock
		}
	}
	for pair, rho := range s.CorrelationOverrides {
		dto.CorrelationOverrides = append(dto.CorrelationOverrides, CorrelationOverrideDTO{
			AssetA: string(pair[0]),
			AssetB: string(pair[1]),
			Value:  rho,
		})
	}
	return dto
}

func (d ScenarioDTO) toDomain() scenario.StressScenario {
	s := scenario.StressScenario{
		ID:                   d.ID,
		Name:                 d.Name,
		Description:          d.Description,
		MarketDrawdown:       d.MarketDrawdown,
		VolatilityMultiplier: d.VolatilityMultiplier,
		PDMultiplier:         d.PDMultiplier,
		LGDMultiplier:        d.LGDMultiplier,
		CopulaDoF:            d.CopulaDoF,
		DefaultCorrelation:   d.DefaultCorrelation,
		SlippageMultiplier:   d.SlippageMultiplier,
		CureProbability:      d.CureProbability,
	}
	if len(d.PriceShocks) > 0 {
		s.PriceShocks = make(map[lending.AssetSymbol]float64, len(d.PriceShocks))
		for sym, shock := range d.PriceShocks {
			s.PriceShocks[lending.AssetSymbol(sym)] = shock
		}
	}
	if len(d.CorrelationOverrides) > 0 {
		s.CorrelationOverrides = make(map[[2]lending.AssetSymbol]float64, len(d.CorrelationOverrides))
		for _, o := range d.CorrelationOverrides {
			key := [2]lending.AssetSymbol{lending.AssetSymbol(o.AssetA), lending.AssetSymbol(o.AssetB)}
			s.CorrelationOverrides[key] = o.Value
		}
	}
	return s
}

type RunSimulationReq struct {
	PortfolioID string            `json:"portfolio_id" binding:"required"`
	ScenarioID  string            `json:"scenario_id"`
	Custom      *ScenarioDTO      `json:"custom_scenario"`
	Prices      map[string]string `json:"prices" binding:"required"`
	HorizonDays int               `json:"horizon_days"`
	Trials      int               `json:"trials"`
	Seed        uint64            `json:"seed"`
}

func (r RunSimulationReq) toCmd() application.SimulateCmd {
	cmd := application.SimulateCmd{
		PortfolioID: r.PortfolioID,
		ScenarioID:  r.ScenarioID,
		Prices:      r.Prices,
		HorizonDays: r.HorizonDays,
		Trials:      r.Trials,
		Seed:        r.Seed,
	}
	if r.Custom != nil {
		custom := r.Custom.toDomain()
		cmd.Custom = &custom
	}
	return cmd
}

func (h *Handler) RunSimulation(c *gin.Context) {
	var req RunSimulationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScenarioID == "" && req.Custom == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario_id or custom_scenario is required"})
		return
	}

	result, err := h.service.RunSimulation(c.Request.Context(), req.toCmd())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) RiskContributions(c *gin.Context) {
	var req RunSimulationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScenarioID == "" && req.Custom == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario_id or custom_scenario is required"})
		return
	}

	contribs, result, err := h.service.RiskContributions(c.Request.Context(), req.toCmd())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributions": contribs, "result": result})
}

type FanPathsReq struct {
	Asset        string `json:"asset" binding:"required"`
	CurrentPrice string `json:"current_price" binding:"required"`
	HorizonDays  int    `json:"horizon_days"`
	NumPaths     int    `json:"num_paths"`
	Seed         uint64 `json:"seed"`
}

func (h *Handler) FanPaths(c *gin.Context) {
	var req FanPathsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	paths, err := h.service.FanPaths(application.FanPathsCmd{
		Asset:        req.Asset,
		CurrentPrice: req.CurrentPrice,
		HorizonDays:  req.HorizonDays,
		NumPaths:     req.NumPaths,
		Seed:         req.Seed,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": req.Asset, "paths": paths})
}

type HistoryReq struct {
	StartPrices  map[string]string `json:"start_prices" binding:"required"`
	TargetPrices map[string]string `json:"target_prices" binding:"required"`
	Years        int               `json:"years"`
	Seed         uint64            `json:"seed"`
}

func (h *Handler) GenerateHistory(c *gin.Context) {
	var req HistoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	series, err := h.service.GenerateHistory(application.HistoryCmd{
		StartPrices:  req.StartPrices,
		TargetPrices: req.TargetPrices,
		Years:        req.Years,
		Seed:         req.Seed,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": series})
}

type StressMetricsReq struct {
	PortfolioID string            `json:"portfolio_id" binding:"required"`
	ScenarioID  string            `json:"scenario_id" binding:"required"`
	Prices      map[string]string `json:"prices" binding:"required"`
}

func (h *Handler) StressMetrics(c *gin.Context) {
	var req StressMetricsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.StressMetrics(c.Request.Context(), req.PortfolioID, req.ScenarioID, req.Prices)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) ListScenarios(c *gin.Context) {
	scenarios, err := h.service.ListScenarios()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = toScenarioDTO(s)
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": dtos})
}

func (h *Handler) GetScenario(c *gin.Context) {
	s, err := h.service.GetScenario(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toScenarioDTO(s))
}

type CompareReq struct {
	ScenarioIDs []string `json:"scenario_ids" binding:"required,min=1"`
}

func (h *Handler) CompareScenarios(c *gin.Context) {
	var req CompareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comparison, err := h.service.CompareScenarios(req.ScenarioIDs)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (h *Handler) RegisterScenario(c *gin.Context) {
	var req ScenarioDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RegisterScenario(req.toDomain()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenario_id": req.ID})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scenario.ErrScenarioNotFound), errors.Is(err, lending.ErrPortfolioNotFound):
		return http.StatusNotFound
	case errors.Is(err, scenario.ErrInvalidScenario),
		errors.Is(err, lending.ErrUnknownAsset),
		errors.Is(err, lending.ErrNonFinitePrice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
