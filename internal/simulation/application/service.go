package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
	simulation "github.com/wyfcoding/creditrisk/internal/simulation/domain"
	"github.com/wyfcoding/creditrisk/pkg/metrics"
)

// ServiceConfig 模拟服务的运行参数
type ServiceConfig struct {
	// 未指定时使用的模拟次数
	DefaultTrials int
	// 单次请求允许的上限
	MaxTrials int
	// 并行 worker 数，0 取 GOMAXPROCS
	Workers int
}

// SimulationService 蒙特卡洛模拟应用服务
// 负责场景解析、请求参数裁剪、引擎编排与结果事件发布
type SimulationService struct {
	repo      lending.PortfolioRepository
	catalog   *scenario.Catalog
	universe  *lending.AssetUniverse
	publisher simulation.EventPublisher
	metrics   *metrics.Metrics
	cfg       ServiceConfig
	logger    *slog.Logger
}

// NewSimulationService 创建模拟服务
func NewSimulationService(
	repo lending.PortfolioRepository,
	catalog *scenario.Catalog,
	universe *lending.AssetUniverse,
	publisher simulation.EventPublisher,
	m *metrics.Metrics,
	cfg ServiceConfig,
	logger *slog.Logger,
) *SimulationService {
	if cfg.DefaultTrials <= 0 {
		cfg.DefaultTrials = 1000
	}
	if cfg.MaxTrials <= 0 {
		cfg.MaxTrials = 100000
	}
	return &SimulationService{
		repo:      repo,
		catalog:   catalog,
		universe:  universe,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With("module", "simulation_service"),
	}
}

// RunSimulation 执行一次组合损失模拟
func (s *SimulationService) RunSimulation(ctx context.Context, cmd SimulateCmd) (*SimulationResultDTO, error) {
	portfolio, stress, prices, err := s.prepare(ctx, cmd.PortfolioID, cmd.ScenarioID, cmd.Custom, cmd.Prices)
	if err != nil {
		return nil, err
	}

	orch := s.buildOrchestrator(cmd.Trials, cmd.Seed)
	horizon := cmd.HorizonDays
	if horizon <= 0 {
		horizon = 30
	}

	start := time.Now()
	result, err := orch.SimulatePortfolioLoss(ctx, portfolio, prices, stress, horizon)
	if err != nil {
		return nil, fmt.Errorf("simulate portfolio loss: %w", err)
	}
	elapsed := time.Since(start)

	simulationID := fmt.Sprintf("SIM-%d", idgen.GenID())
	s.observe(result, elapsed)
	s.publishCompleted(ctx, simulationID, portfolio.PortfolioID, result, elapsed)

	s.logger.InfoContext(ctx, "simulation completed",
		"simulation_id", simulationID,
		"portfolio_id", portfolio.PortfolioID,
		"scenario_id", result.ScenarioID,
		"trials", result.Trials,
		"var_95", result.VaR95.String(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return toResultDTO(simulationID, portfolio.PortfolioID, result, true), nil
}

// RiskContributions 计算逐贷款的边际 VaR 贡献
func (s *SimulationService) RiskContributions(ctx context.Context, cmd SimulateCmd) ([]RiskContributionDTO, *SimulationResultDTO, error) {
	portfolio, stress, prices, err := s.prepare(ctx, cmd.PortfolioID, cmd.ScenarioID, cmd.Custom, cmd.Prices)
	if err != nil {
		return nil, nil, err
	}

	orch := s.buildOrchestrator(cmd.Trials, cmd.Seed)
	horizon := cmd.HorizonDays
	if horizon <= 0 {
		horizon = 30
	}

	start := time.Now()
	contribs, result, err := orch.RiskContributions(ctx, portfolio, prices, stress, horizon)
	if err != nil {
		return nil, nil, fmt.Errorf("risk contributions: %w", err)
	}
	elapsed := time.Since(start)

	simulationID := fmt.Sprintf("SIM-%d", idgen.GenID())
	s.observe(result, elapsed)

	dtos := make([]RiskContributionDTO, len(contribs))
	for i, c := range contribs {
		dtos[i] = RiskContributionDTO{
			LoanID:        c.LoanID,
			MarginalVaR95: c.MarginalVaR95.String(),
			ShareOfVaR:    c.ShareOfVaR,
		}
	}
	return dtos, toResultDTO(simulationID, portfolio.PortfolioID, result, false), nil
}

// ListScenarios 返回目录中全部场景，按 ID 升序
func (s *SimulationService) ListScenarios() ([]scenario.StressScenario, error) {
	ids := s.catalog.IDs()
	out := make([]scenario.StressScenario, 0, len(ids))
	for _, id := range ids {
		sc, err := s.catalog.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// GetScenario 按 ID 查询单个场景
func (s *SimulationService) GetScenario(id string) (scenario.StressScenario, error) {
	return s.catalog.Get(id)
}

// CompareScenarios 对选定场景做参数横向对比
func (s *SimulationService) CompareScenarios(ids []string) (scenario.Comparison, error) {
	return s.catalog.Compare(ids)
}

// RegisterScenario 注册调用方自定义场景
func (s *SimulationService) RegisterScenario(sc scenario.StressScenario) error {
	if err := s.catalog.Register(sc); err != nil {
		return err
	}
	s.logger.Info("custom scenario registered", "scenario_id", sc.ID)
	return nil
}

// FanPaths 生成单资产 GBM 扇形图路径
func (s *SimulationService) FanPaths(cmd FanPathsCmd) ([][]float64, error) {
	price, err := decimal.NewFromString(cmd.CurrentPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid current price: %w", err)
	}
	if cmd.HorizonDays <= 0 {
		cmd.HorizonDays = 30
	}
	if cmd.NumPaths <= 0 {
		cmd.NumPaths = 50
	}

	ps := simulation.NewPriceSimulator(s.universe)
	rng := rand.New(rand.NewPCG(s.seedOrRandom(cmd.Seed), 0))
	return ps.SimulateFanPaths(rng, lending.AssetSymbol(cmd.Asset), price.InexactFloat64(), cmd.HorizonDays, cmd.NumPaths)
}

// GenerateHistory 合成多资产相关的小时级历史价格序列
func (s *SimulationService) GenerateHistory(cmd HistoryCmd) (map[string][]float64, error) {
	start, err := parsePriceFloats(cmd.StartPrices)
	if err != nil {
		return nil, err
	}
	target, err := parsePriceFloats(cmd.TargetPrices)
	if err != nil {
		return nil, err
	}
	if cmd.Years <= 0 {
		cmd.Years = 1
	}

	ps := simulation.NewPriceSimulator(s.universe)
	rng := rand.New(rand.NewPCG(s.seedOrRandom(cmd.Seed), 0))
	series, err := ps.GenerateHourlyHistory(rng, start, target, cmd.Years)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(series))
	for sym, prices := range series {
		out[string(sym)] = prices
	}
	return out, nil
}

// StressMetrics 在指定压力场景下重估组合的确定性指标
// 与蒙特卡洛不同，这里直接把场景回撤、PD 乘数、LGD 乘数套到公式上
func (s *SimulationService) StressMetrics(ctx context.Context, portfolioID, scenarioID string, priceInput map[string]string) (*StressMetricsDTO, error) {
	portfolio, stress, prices, err := s.prepare(ctx, portfolioID, scenarioID, nil, priceInput)
	if err != nil {
		return nil, err
	}

	dto := &StressMetricsDTO{
		PortfolioID: portfolio.PortfolioID,
		ScenarioID:  stress.ID,
	}

	totalExposure := 0.0
	totalCollateral := 0.0
	totalEL := 0.0
	for _, loan := range portfolio.Loans {
		policy, err := s.universe.Policy(loan.Collateral.Asset)
		if err != nil {
			return nil, err
		}
		basePD, err := loan.Rating.BaseAnnualPD()
		if err != nil {
			return nil, err
		}

		price, ok := prices[loan.Collateral.Asset]
		if !ok {
			return nil, fmt.Errorf("%w: %s", lending.ErrUnknownAsset, loan.Collateral.Asset)
		}

		// 场景回撤与冲击因子叠加作用在抵押品估值上
		stressedPrice := price.InexactFloat64() * (1 - stress.MarketDrawdown) * stress.PriceShock(loan.Collateral.Asset)
		collateralValue := loan.Collateral.Quantity.InexactFloat64() * stressedPrice
		principal := loan.Principal.InexactFloat64()

		ltv := lending.LoanToValue(principal, collateralValue)
		switch lending.MarginStatusFor(ltv, policy.Margin) {
		case lending.MarginCall:
			dto.LoansAtMarginCall++
		case lending.MarginLiquidation:
			dto.LoansAtLiquidation++
		}

		pd := lending.StressedPD(basePD*stress.PDMultiplier, stress.MarketDrawdown, loan.Leverage)
		slippage := math.Min(policy.Risk.LiquidationSlippage*stress.SlippageMultiplier, 1)
		lgd := math.Min(lending.LossGivenDefault(collateralValue, principal, slippage)*stress.LGDMultiplier, 1)

		totalExposure += principal
		totalCollateral += collateralValue
		totalEL += principal * pd * lgd
	}

	dto.TotalExposure = decimal.NewFromFloat(totalExposure).String()
	dto.StressedCollateral = decimal.NewFromFloat(totalCollateral).String()
	dto.TotalExpectedLoss = decimal.NewFromFloat(totalEL).String()
	if totalCollateral > 0 {
		dto.AggregateLTV = totalExposure / totalCollateral
	}
	return dto, nil
}

// prepare 解析模拟请求的三要素：组合、场景、价格
func (s *SimulationService) prepare(
	ctx context.Context,
	portfolioID, scenarioID string,
	custom *scenario.StressScenario,
	priceInput map[string]string,
) (*lending.Portfolio, scenario.StressScenario, lending.PriceMap, error) {
	portfolio, err := s.repo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, scenario.StressScenario{}, nil, err
	}

	var stress scenario.StressScenario
	if custom != nil {
		stress = *custom
		if err := stress.Validate(); err != nil {
			return nil, scenario.StressScenario{}, nil, err
		}
	} else {
		stress, err = s.catalog.Get(scenarioID)
		if err != nil {
			return nil, scenario.StressScenario{}, nil, err
		}
	}

	prices, err := parsePriceInput(priceInput)
	if err != nil {
		return nil, scenario.StressScenario{}, nil, err
	}
	return portfolio, stress, prices, nil
}

// buildOrchestrator 按请求参数构建引擎，trials 裁剪到配置上限
func (s *SimulationService) buildOrchestrator(trials int, seed uint64) *simulation.Orchestrator {
	if trials <= 0 {
		trials = s.cfg.DefaultTrials
	}
	if trials > s.cfg.MaxTrials {
		trials = s.cfg.MaxTrials
	}
	return simulation.NewOrchestrator(s.universe, simulation.OrchestratorConfig{
		Trials:  trials,
		Workers: s.cfg.Workers,
		Seed:    s.seedOrRandom(seed),
	})
}

func (s *SimulationService) seedOrRandom(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	return rand.Uint64()
}

func (s *SimulationService) observe(result *simulation.SimulationResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.SimulationsTotal.Inc()
	s.metrics.SimulationDuration.Observe(elapsed.Seconds())
	s.metrics.SimulationTrials.Observe(float64(result.Trials))
}

// publishCompleted 发布完成事件；发布失败只记日志，不影响调用方拿到结果
func (s *SimulationService) publishCompleted(
	ctx context.Context,
	simulationID, portfolioID string,
	result *simulation.SimulationResult,
	elapsed time.Duration,
) {
	if s.publisher == nil {
		return
	}
	event := simulation.SimulationCompletedEvent{
		SimulationID: simulationID,
		PortfolioID:  portfolioID,
		ScenarioID:   result.ScenarioID,
		Trials:       result.Trials,
		HorizonDays:  result.HorizonDays,
		VaR95:        result.VaR95.String(),
		VaR99:        result.VaR99.String(),
		CVaR95:       result.CVaR95.String(),
		MeanLoss:     result.MeanLoss.String(),
		DurationMS:   elapsed.Milliseconds(),
		OccurredAt:   time.Now().UnixMilli(),
	}
	if err := s.publisher.PublishSimulationCompleted(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish simulation completed event",
			"simulation_id", simulationID, "error", err)
	}
}

func parsePriceInput(input map[string]string) (lending.PriceMap, error) {
	pm := make(lending.PriceMap, len(input))
	for sym, raw := range input {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", sym, err)
		}
		pm[lending.AssetSymbol(sym)] = price
	}
	if err := pm.Validate(); err != nil {
		return nil, err
	}
	return pm, nil
}

func parsePriceFloats(input map[string]string) (map[lending.AssetSymbol]float64, error) {
	out := make(map[lending.AssetSymbol]float64, len(input))
	for sym, raw := range input {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", sym, err)
		}
		out[lending.AssetSymbol(sym)] = price.InexactFloat64()
	}
	return out, nil
}
