package domain

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
)

func testPortfolio(t *testing.T) *lending.Portfolio {
	t.Helper()
	p, err := lending.NewPortfolio("PF-SIM", "sim desk", decimal.NewFromInt(500000))
	require.NoError(t, err)

	add := func(id string, rating lending.CreditRating, principal float64, asset lending.AssetSymbol, qty, leverage float64) {
		collateral, err := lending.NewCollateralPosition(asset, decimal.NewFromFloat(qty))
		require.NoError(t, err)
		loan, err := lending.NewLoan(
			id, "acct-"+id, rating,
			decimal.NewFromFloat(principal), decimal.NewFromFloat(0.11),
			90, time.Now().AddDate(0, 3, 0), collateral, leverage,
		)
		require.NoError(t, err)
		require.NoError(t, p.AddLoan(loan))
	}

	add("L1", lending.RatingAA, 60000, lending.AssetBTC, 1, 1.5)
	add("L2", lending.RatingA, 40000, lending.AssetETH, 20, 2.0)
	add("L3", lending.RatingBBB, 30000, lending.AssetSOL, 250, 3.0)
	return p
}

func simPriceMap() lending.PriceMap {
	return lending.PriceMap{
		lending.AssetBTC: decimal.NewFromInt(100000),
		lending.AssetETH: decimal.NewFromInt(3000),
		lending.AssetSOL: decimal.NewFromInt(200),
	}
}

func TestSimulatePortfolioLossStatisticsConsistency(t *testing.T) {
	o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 4000, Workers: 4, Seed: 101})
	s := baselineScenario()
	s.MarketDrawdown = 0.3
	s.PDMultiplier = 2

	result, err := o.SimulatePortfolioLoss(context.Background(), testPortfolio(t), simPriceMap(), s, 30)
	require.NoError(t, err)

	assert.Equal(t, "TEST_BASELINE", result.ScenarioID)
	assert.Equal(t, 4000, result.Trials)
	assert.Equal(t, 30, result.HorizonDays)
	require.Len(t, result.Distribution, 4000)

	// 分布升序
	for i := 1; i < len(result.Distribution); i++ {
		assert.GreaterOrEqual(t, result.Distribution[i], result.Distribution[i-1])
	}

	// 分位点排序约束
	var95 := result.VaR95.InexactFloat64()
	var99 := result.VaR99.InexactFloat64()
	cvar95 := result.CVaR95.InexactFloat64()
	cvar99 := result.CVaR99.InexactFloat64()
	maxLoss := result.MaxLoss.InexactFloat64()

	assert.GreaterOrEqual(t, var99, var95)
	assert.GreaterOrEqual(t, cvar95, var95)
	assert.GreaterOrEqual(t, cvar99, var99)
	assert.GreaterOrEqual(t, maxLoss, cvar99)
	assert.GreaterOrEqual(t, result.MeanLoss.InexactFloat64(), 0.0)

	assert.GreaterOrEqual(t, result.ProbabilityOfLoss, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfLoss, 1.0)

	require.Len(t, result.DefaultFrequency, 3)
	for loanID, freq := range result.DefaultFrequency {
		assert.Contains(t, []string{"L1", "L2", "L3"}, loanID)
		assert.GreaterOrEqual(t, freq, 0.0)
		assert.LessOrEqual(t, freq, 1.0)
	}
}

// 相同种子下结果与 worker 数无关，逐位可复现
func TestSimulatePortfolioLossDeterministicAcrossWorkers(t *testing.T) {
	portfolio := testPortfolio(t)
	s := baselineScenario()
	s.MarketDrawdown = 0.3
	s.PDMultiplier = 2

	run := func(workers int) *SimulationResult {
		o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 2000, Workers: workers, Seed: 777})
		result, err := o.SimulatePortfolioLoss(context.Background(), portfolio, simPriceMap(), s, 30)
		require.NoError(t, err)
		return result
	}

	r1 := run(1)
	r8 := run(8)

	assert.Equal(t, r1.Distribution, r8.Distribution)
	assert.True(t, r1.VaR95.Equal(r8.VaR95))
	assert.True(t, r1.CVaR99.Equal(r8.CVaR99))
	assert.Equal(t, r1.DefaultFrequency, r8.DefaultFrequency)
}

func TestSimulatePortfolioLossEmptyPortfolio(t *testing.T) {
	o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 100, Workers: 2, Seed: 1})
	p, err := lending.NewPortfolio("PF-EMPTY", "empty", decimal.NewFromInt(1000))
	require.NoError(t, err)

	result, err := o.SimulatePortfolioLoss(context.Background(), p, simPriceMap(), baselineScenario(), 30)
	require.NoError(t, err)

	assert.Empty(t, result.Distribution)
	assert.True(t, result.VaR95.IsZero())
	assert.True(t, result.MaxLoss.IsZero())
	assert.Equal(t, 0.0, result.ProbabilityOfLoss)
	assert.Empty(t, result.DefaultFrequency)
}

func TestSimulatePortfolioLossInvalidInputs(t *testing.T) {
	o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 100, Workers: 1, Seed: 1})
	portfolio := testPortfolio(t)

	badPrices := lending.PriceMap{lending.AssetBTC: decimal.Zero}
	_, err := o.SimulatePortfolioLoss(context.Background(), portfolio, badPrices, baselineScenario(), 30)
	assert.ErrorIs(t, err, lending.ErrNonFinitePrice)

	badScenario := baselineScenario()
	badScenario.CopulaDoF = 0
	_, err = o.SimulatePortfolioLoss(context.Background(), portfolio, simPriceMap(), badScenario, 30)
	assert.Error(t, err)
}

// 压力场景的尾部损失不低于基准场景
func TestScenarioStressIncreasesTailLoss(t *testing.T) {
	portfolio := testPortfolio(t)

	run := func(pdMult, drawdown float64) float64 {
		s := baselineScenario()
		s.PDMultiplier = pdMult
		s.MarketDrawdown = drawdown
		o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 4000, Workers: 4, Seed: 555})
		result, err := o.SimulatePortfolioLoss(context.Background(), portfolio, simPriceMap(), s, 30)
		require.NoError(t, err)
		return result.CVaR99.InexactFloat64()
	}

	assert.GreaterOrEqual(t, run(3, 0.5), run(1, 0))
}

func TestRiskContributions(t *testing.T) {
	portfolio := testPortfolio(t)
	s := baselineScenario()
	s.MarketDrawdown = 0.4
	s.PDMultiplier = 3

	o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 4000, Workers: 4, Seed: 909})
	contribs, result, err := o.RiskContributions(context.Background(), portfolio, simPriceMap(), s, 30)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, contribs, 3)

	seen := map[string]bool{}
	for _, c := range contribs {
		seen[c.LoanID] = true
		marginal := c.MarginalVaR95.InexactFloat64()
		assert.False(t, math.IsNaN(marginal))
		// 剔除贷款不会抬高组合 VaR
		assert.LessOrEqual(t, marginal, result.VaR95.InexactFloat64()+1e-9)
		assert.False(t, math.IsNaN(c.ShareOfVaR))
	}
	assert.Len(t, seen, 3)
}

// 单笔 BBB 贷款、无回撤、PD 乘数为 1 时，
// 经验亏损概率应落在 30 天期压力 PD 的三倍标准误差带内
func TestSingleLoanProbabilityOfLossTracksStressedPD(t *testing.T) {
	p, err := lending.NewPortfolio("PF-ONE", "single loan", decimal.NewFromInt(1000000))
	require.NoError(t, err)
	collateral, err := lending.NewCollateralPosition(lending.AssetBTC, decimal.NewFromInt(10))
	require.NoError(t, err)
	loan, err := lending.NewLoan(
		"L1", "acct-L1", lending.RatingBBB,
		decimal.NewFromInt(1000000), decimal.NewFromFloat(0.11),
		90, time.Now().AddDate(0, 3, 0), collateral, 2,
	)
	require.NoError(t, err)
	require.NoError(t, p.AddLoan(loan))

	o := NewOrchestrator(lending.DefaultUniverse(), OrchestratorConfig{Trials: 1000, Workers: 4, Seed: 12345})
	result, err := o.SimulatePortfolioLoss(context.Background(), p, simPriceMap(), baselineScenario(), 30)
	require.NoError(t, err)

	target := lending.HorizonPD(0.030, 30)
	se := math.Sqrt(target * (1 - target) / 1000)

	assert.InDelta(t, target, result.DefaultFrequency["L1"], 3*se)
	assert.InDelta(t, target, result.ProbabilityOfLoss, 3*se)
	// 亏损必然伴随违约：抵押品清算有剩余时违约不产生损失，反向不成立
	assert.LessOrEqual(t, result.ProbabilityOfLoss, result.DefaultFrequency["L1"])
}

func TestVarAndCVaRPercentiles(t *testing.T) {
	sorted := make([]float64, 100)
	for i := range sorted {
		sorted[i] = float64(i)
	}

	assert.Equal(t, 95.0, varAtPercentile(sorted, 0.95))
	assert.Equal(t, 99.0, varAtPercentile(sorted, 0.99))
	// 尾部均值：95..99 的均值 = 97
	assert.InDelta(t, 97.0, cvarAtPercentile(sorted, 0.95), 1e-12)

	assert.Equal(t, 0.0, varAtPercentile(nil, 0.95))
	assert.Equal(t, 0.0, cvarAtPercentile(nil, 0.95))
}
