package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanToValue(t *testing.T) {
	assert.Equal(t, 0.5, LoanToValue(50, 100))
	assert.True(t, math.IsInf(LoanToValue(50, 0), 1))
}

func TestMarginStatusThresholds(t *testing.T) {
	policy := MarginPolicy{WarningLTV: 0.70, MarginCallLTV: 0.80, LiquidationLTV: 0.90}

	// 恰好落在阈值上归入更高风险档
	cases := []struct {
		ltv  float64
		want MarginState
	}{
		{0.69999, MarginHealthy},
		{0.70, MarginWarning},
		{0.79999, MarginWarning},
		{0.80, MarginCall},
		{0.89999, MarginCall},
		{0.90, MarginLiquidation},
		{1.50, MarginLiquidation},
		{math.Inf(1), MarginLiquidation},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MarginStatusFor(c.ltv, policy), "ltv=%v", c.ltv)
	}
}

func TestStressedPD(t *testing.T) {
	// 回撤为零时等于基础 PD
	assert.Equal(t, 0.015, StressedPD(0.015, 0, 3))

	// PD = base × (1 + dd × lev × 2)
	assert.InDelta(t, 0.015*(1+0.5*3*2), StressedPD(0.015, 0.5, 3), 1e-12)

	// 回撤与杠杆单调
	assert.Greater(t, StressedPD(0.015, 0.5, 3), StressedPD(0.015, 0.3, 3))
	assert.Greater(t, StressedPD(0.015, 0.5, 5), StressedPD(0.015, 0.5, 3))

	// 封顶 1.0
	assert.Equal(t, 1.0, StressedPD(0.5, 1.0, 10))
}

func TestLossGivenDefault(t *testing.T) {
	// 抵押充足时仍然不低于下限
	assert.Equal(t, LGDFloor, LossGivenDefault(200000, 50000, 0.05))

	// 抵押覆盖不足：(100000 − 60000×0.95)/100000 = 0.43
	assert.InDelta(t, 0.43, LossGivenDefault(60000, 100000, 0.05), 1e-12)

	// 无抵押全损
	assert.Equal(t, 1.0, LossGivenDefault(0, 100000, 0.05))

	// 无本金保持下限
	assert.Equal(t, LGDFloor, LossGivenDefault(0, 0, 0.05))
}

func TestHorizonPD(t *testing.T) {
	assert.Equal(t, 0.0, HorizonPD(0.015, 0))
	assert.Equal(t, 0.0, HorizonPD(0, 30))
	assert.Equal(t, 1.0, HorizonPD(1, 30))

	annual := 0.03
	got := HorizonPD(annual, 365)
	assert.InDelta(t, annual, got, 1e-12)

	// 期限越长 PD 越高
	assert.Greater(t, HorizonPD(annual, 180), HorizonPD(annual, 30))
	assert.Less(t, HorizonPD(annual, 30), annual)
}

func TestMarginEventProbability(t *testing.T) {
	// 已触及阈值
	assert.Equal(t, 1.0, MarginEventProbability(0.85, 0.80, 0.6, 30))
	assert.Equal(t, 1.0, MarginEventProbability(math.Inf(1), 0.80, 0.6, 30))

	p := MarginEventProbability(0.50, 0.80, 0.6, 30)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 1.0)

	// 距离越近、波动越高、期限越长都推高概率
	assert.Greater(t, MarginEventProbability(0.70, 0.80, 0.6, 30), p)
	assert.Greater(t, MarginEventProbability(0.50, 0.80, 0.9, 30), p)
	assert.Greater(t, MarginEventProbability(0.50, 0.80, 0.6, 180), p)
}

func TestComputeLoanMetrics(t *testing.T) {
	u := DefaultUniverse()
	loan := testLoan(t, "L1", 50000, AssetBTC, 1)

	m, err := ComputeLoanMetrics(loan, decimal.NewFromInt(100000), u, 0)
	require.NoError(t, err)

	assert.Equal(t, "L1", m.LoanID)
	assert.True(t, m.CollateralValue.Equal(decimal.NewFromInt(100000)))
	assert.InDelta(t, 0.5, m.LTV, 1e-12)
	assert.Equal(t, MarginHealthy, m.MarginState)
	assert.Equal(t, 0.015, m.StressedPD)
	assert.Equal(t, LGDFloor, m.LGD)
	assert.InDelta(t, 50000*0.015*LGDFloor, m.ExpectedLoss.InexactFloat64(), 1e-6)
	assert.InDelta(t, 50000*0.12/365, m.DailyInterest.InexactFloat64(), 1e-9)

	// 概率沿阈值递减
	assert.GreaterOrEqual(t, m.WarningProb, m.MarginCallProb)
	assert.GreaterOrEqual(t, m.MarginCallProb, m.LiquidationProb)
}

func TestComputePortfolioMetrics(t *testing.T) {
	u := DefaultUniverse()
	p, err := NewPortfolio("PF-1", "desk", decimal.NewFromInt(100000))
	require.NoError(t, err)

	require.NoError(t, p.AddLoan(testLoan(t, "L1", 30000, AssetBTC, 1)))
	require.NoError(t, p.AddLoan(testLoan(t, "L2", 30000, AssetETH, 20)))
	require.NoError(t, p.AddLoan(testLoan(t, "L3", 30000, AssetSOL, 300)))
	require.NoError(t, p.AddLoan(testLoan(t, "L4", 10000, AssetBTC, 0.2)))

	prices := PriceMap{
		AssetBTC: decimal.NewFromInt(100000),
		AssetETH: decimal.NewFromInt(3000),
		AssetSOL: decimal.NewFromInt(200),
	}

	m, err := ComputePortfolioMetrics(p, prices, u, 0.04, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, m.LoanCount)
	assert.True(t, m.TotalExposure.Equal(decimal.NewFromInt(100000)))

	// 份额 30/30/30/10 → HHI = 3×900 + 100 = 2800
	assert.InDelta(t, 2800, m.HHI, 1e-9)

	// 集中度按抵押品价值，份额之和为 1
	sum := 0.0
	for _, share := range m.Concentration {
		sum += share
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	assert.Greater(t, m.AggregateLTV, 0.0)
	assert.Greater(t, m.SharpeRatio, 0.0)
	// 下行波动代理更小 → Sortino 更高
	assert.Greater(t, m.SortinoRatio, m.SharpeRatio)
}

func TestComputePortfolioMetricsEmpty(t *testing.T) {
	u := DefaultUniverse()
	p, err := NewPortfolio("PF-EMPTY", "empty", decimal.NewFromInt(100000))
	require.NoError(t, err)

	m, err := ComputePortfolioMetrics(p, PriceMap{}, u, 0.04, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, m.LoanCount)
	assert.Equal(t, 0.0, m.AggregateLTV)
	assert.Equal(t, 0.0, m.HHI)
	assert.True(t, m.TotalExposure.IsZero())
}

func TestPDTermStructure(t *testing.T) {
	points, err := PDTermStructure(RatingBBB, 0.2, 2, []int{7, 30, 90, 365})
	require.NoError(t, err)
	require.Len(t, points, 4)

	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].PD, points[i-1].PD)
	}

	_, err = PDTermStructure(CreditRating("X"), 0, 0, []int{30})
	assert.ErrorIs(t, err, ErrUnknownRating)
}
