package domain

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
)

// OrchestratorConfig 蒙特卡洛引擎配置
type OrchestratorConfig struct {
	// 默认模拟次数
	Trials int
	// 并行 worker 数，<=0 取 GOMAXPROCS
	Workers int
	// 随机种子；每个 trial 使用独立子流 NewPCG(Seed, trial)，
	// 因此无论并行度如何结果都可逐位复现
	Seed uint64
}

// Orchestrator 蒙特卡洛模拟编排器
// 每个 trial 组合一次价格抽样与一次违约抽样，聚合成组合损失分布
type Orchestrator struct {
	universe   *lending.AssetUniverse
	priceSim   *PriceSimulator
	defaultSim *DefaultSimulator
	cfg        OrchestratorConfig
}

// NewOrchestrator 创建编排器
func NewOrchestrator(universe *lending.AssetUniverse, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Trials <= 0 {
		cfg.Trials = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Orchestrator{
		universe:   universe,
		priceSim:   NewPriceSimulator(universe),
		defaultSim: NewDefaultSimulator(universe),
		cfg:        cfg,
	}
}

// SimulationResult 一次组合损失模拟的结果，产出后不可变
type SimulationResult struct {
	ScenarioID  string `json:"scenario_id"`
	Trials      int    `json:"trials"`
	HorizonDays int    `json:"horizon_days"`
	// 升序排列的完整损失分布
	Distribution []float64 `json:"distribution"`

	MeanLoss   decimal.Decimal `json:"mean_loss"`
	MedianLoss decimal.Decimal `json:"median_loss"`
	VaR95      decimal.Decimal `json:"var_95"`
	VaR99      decimal.Decimal `json:"var_99"`
	CVaR95     decimal.Decimal `json:"cvar_95"`
	CVaR99     decimal.Decimal `json:"cvar_99"`
	MaxLoss    decimal.Decimal `json:"max_loss"`
	// 出现任意损失的经验概率
	ProbabilityOfLoss float64 `json:"probability_of_loss"`
	// 贷款 ID → 经验违约频率
	DefaultFrequency map[string]float64 `json:"default_frequency"`
}

// RiskContribution 单笔贷款的边际风险贡献
type RiskContribution struct {
	LoanID string `json:"loan_id"`
	// 含该贷款与剔除该贷款的组合 VaR95 之差
	MarginalVaR95 decimal.Decimal `json:"marginal_var_95"`
	// 占组合 VaR95 的百分比
	ShareOfVaR float64 `json:"share_of_var"`
}

// trialData 基础模拟的逐 trial 明细，供边际贡献复用同一组抽样
type trialData struct {
	trialLosses []float64
	// lossByLoan[i][t] 第 i 笔贷款在第 t 个 trial 的损失
	lossByLoan   [][]float64
	defaultCount []int
}

// SimulatePortfolioLoss 运行 N 次独立 trial 并聚合损失分布
// 同步阻塞调用；零贷款组合返回全零统计与空分布
func (o *Orchestrator) SimulatePortfolioLoss(
	ctx context.Context,
	portfolio *lending.Portfolio,
	prices lending.PriceMap,
	s scenario.StressScenario,
	horizonDays int,
) (*SimulationResult, error) {
	data, err := o.runTrials(ctx, portfolio, prices, s, horizonDays, o.cfg.Trials)
	if err != nil {
		return nil, err
	}
	return o.aggregate(portfolio, s, horizonDays, data), nil
}

// RiskContributions 基础模拟 + 逐贷款剔除的边际 VaR
// 近似方式：复用基础模拟的同一组抽样（common random numbers），
// 剔除某贷款的分布 = 逐 trial 总损失减去该贷款损失，不做整组重模拟
func (o *Orchestrator) RiskContributions(
	ctx context.Context,
	portfolio *lending.Portfolio,
	prices lending.PriceMap,
	s scenario.StressScenario,
	horizonDays int,
) ([]RiskContribution, *SimulationResult, error) {
	data, err := o.runTrials(ctx, portfolio, prices, s, horizonDays, o.cfg.Trials)
	if err != nil {
		return nil, nil, err
	}
	result := o.aggregate(portfolio, s, horizonDays, data)

	baseVaR95 := result.VaR95.InexactFloat64()
	contribs := make([]RiskContribution, len(portfolio.Loans))

	for i, loan := range portfolio.Loans {
		reduced := make([]float64, len(data.trialLosses))
		for t, total := range data.trialLosses {
			reduced[t] = total - data.lossByLoan[i][t]
		}
		slices.Sort(reduced)

		marginal := baseVaR95 - varAtPercentile(reduced, 0.95)
		share := 0.0
		if baseVaR95 > 0 {
			share = marginal / baseVaR95 * 100
		}
		contribs[i] = RiskContribution{
			LoanID:        loan.LoanID,
			MarginalVaR95: decimal.NewFromFloat(marginal),
			ShareOfVaR:    share,
		}
	}

	return contribs, result, nil
}

// runTrials 并行执行全部 trial
// 每个 trial 独立子流种子，先抽价格再抽违约，写入各自下标，worker 数不影响结果
func (o *Orchestrator) runTrials(
	ctx context.Context,
	portfolio *lending.Portfolio,
	prices lending.PriceMap,
	s scenario.StressScenario,
	horizonDays, trials int,
) (*trialData, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	loans := portfolio.Loans
	nLoans := len(loans)

	data := &trialData{
		trialLosses:  make([]float64, trials),
		lossByLoan:   make([][]float64, nLoans),
		defaultCount: make([]int, nLoans),
	}
	for i := range data.lossByLoan {
		data.lossByLoan[i] = make([]float64, trials)
	}
	if nLoans == 0 {
		return data, nil
	}

	current := make(map[lending.AssetSymbol]float64, len(prices))
	for sym, price := range prices {
		current[sym] = price.InexactFloat64()
	}

	principals := make([]float64, nLoans)
	quantities := make([]float64, nLoans)
	slippages := make([]float64, nLoans)
	for i, loan := range loans {
		policy, err := o.universe.Policy(loan.Collateral.Asset)
		if err != nil {
			return nil, err
		}
		principals[i] = loan.Principal.InexactFloat64()
		quantities[i] = loan.Collateral.Quantity.InexactFloat64()
		slippages[i] = math.Min(policy.Risk.LiquidationSlippage*s.SlippageMultiplier, 1)
	}

	defaultCounts := make([][]int, o.cfg.Workers)
	for w := range defaultCounts {
		defaultCounts[w] = make([]int, nLoans)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < o.cfg.Workers; w++ {
		worker := w
		g.Go(func() error {
			for t := worker; t < trials; t += o.cfg.Workers {
				if err := gctx.Err(); err != nil {
					return err
				}

				rng := rand.New(rand.NewPCG(o.cfg.Seed, uint64(t)))

				simPrices, err := o.priceSim.SimulateTerminalPrices(rng, current, s, horizonDays)
				if err != nil {
					return err
				}
				defaults, err := o.defaultSim.SimulateDefaults(rng, loans, s, horizonDays)
				if err != nil {
					return err
				}

				total := 0.0
				for i := range loans {
					if !defaults[i] {
						continue
					}
					defaultCounts[worker][i]++

					collateralValue := quantities[i] * simPrices[loans[i].Collateral.Asset]
					proceeds := collateralValue * (1 - slippages[i])
					loss := math.Max(0, principals[i]-proceeds)

					data.lossByLoan[i][t] = loss
					total += loss
				}
				data.trialLosses[t] = total
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for w := range defaultCounts {
		for i := range data.defaultCount {
			data.defaultCount[i] += defaultCounts[w][i]
		}
	}
	return data, nil
}

// aggregate 把逐 trial 损失聚合成结果统计
func (o *Orchestrator) aggregate(
	portfolio *lending.Portfolio,
	s scenario.StressScenario,
	horizonDays int,
	data *trialData,
) *SimulationResult {
	trials := len(data.trialLosses)
	result := &SimulationResult{
		ScenarioID:       s.ID,
		Trials:           trials,
		HorizonDays:      horizonDays,
		DefaultFrequency: make(map[string]float64, len(portfolio.Loans)),
		MeanLoss:         decimal.Zero,
		MedianLoss:       decimal.Zero,
		VaR95:            decimal.Zero,
		VaR99:            decimal.Zero,
		CVaR95:           decimal.Zero,
		CVaR99:           decimal.Zero,
		MaxLoss:          decimal.Zero,
	}

	if len(portfolio.Loans) == 0 || trials == 0 {
		result.Distribution = []float64{}
		return result
	}

	sorted := make([]float64, trials)
	copy(sorted, data.trialLosses)
	slices.Sort(sorted)
	result.Distribution = sorted

	mean, _ := stats.Mean(sorted)
	median, _ := stats.Median(sorted)
	result.MeanLoss = decimal.NewFromFloat(mean)
	result.MedianLoss = decimal.NewFromFloat(median)
	result.VaR95 = decimal.NewFromFloat(varAtPercentile(sorted, 0.95))
	result.VaR99 = decimal.NewFromFloat(varAtPercentile(sorted, 0.99))
	result.CVaR95 = decimal.NewFromFloat(cvarAtPercentile(sorted, 0.95))
	result.CVaR99 = decimal.NewFromFloat(cvarAtPercentile(sorted, 0.99))
	result.MaxLoss = decimal.NewFromFloat(sorted[trials-1])

	lossCount := 0
	for _, l := range sorted {
		if l > 0 {
			lossCount++
		}
	}
	result.ProbabilityOfLoss = float64(lossCount) / float64(trials)

	for i, loan := range portfolio.Loans {
		result.DefaultFrequency[loan.LoanID] = float64(data.defaultCount[i]) / float64(trials)
	}

	return result
}

// varAtPercentile 升序分布上取分位点 floor(n·p) 处的损失
func varAtPercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// cvarAtPercentile 分位点及其右侧全部损失的均值（尾部均值）
func cvarAtPercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	sum := 0.0
	for _, l := range sorted[idx:] {
		sum += l
	}
	return sum / float64(len(sorted)-idx)
}
