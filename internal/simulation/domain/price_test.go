package domain

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
)

func baselineScenario() scenario.StressScenario {
	return scenario.StressScenario{
		ID:                   "TEST_BASELINE",
		VolatilityMultiplier: 1.0,
		PDMultiplier:         1.0,
		LGDMultiplier:        1.0,
		CopulaDoF:            12,
		DefaultCorrelation:   0.15,
		SlippageMultiplier:   1.0,
	}
}

func testPrices() map[lending.AssetSymbol]float64 {
	return map[lending.AssetSymbol]float64{
		lending.AssetBTC: 100000,
		lending.AssetETH: 3000,
		lending.AssetSOL: 200,
	}
}

func TestCholeskyLowerIdentity(t *testing.T) {
	l := choleskyLower([][]float64{{1, 0}, {0, 1}})
	assert.InDelta(t, 1, l[0][0], 1e-12)
	assert.InDelta(t, 0, l[1][0], 1e-12)
	assert.InDelta(t, 1, l[1][1], 1e-12)
}

func TestCholeskyLowerTwoByTwo(t *testing.T) {
	rho := 0.8
	l := choleskyLower([][]float64{{1, rho}, {rho, 1}})
	assert.InDelta(t, 1, l[0][0], 1e-12)
	assert.InDelta(t, rho, l[1][0], 1e-12)
	assert.InDelta(t, math.Sqrt(1-rho*rho), l[1][1], 1e-12)
}

// 不一致的相关三元组不能产生 NaN，负根号被钳制为零
func TestCholeskyLowerClampsInconsistentMatrix(t *testing.T) {
	corr := [][]float64{
		{1, 0.9, -0.9},
		{0.9, 1, 0.9},
		{-0.9, 0.9, 1},
	}
	l := choleskyLower(corr)
	for i := range l {
		for j := range l[i] {
			assert.False(t, math.IsNaN(l[i][j]), "L[%d][%d] is NaN", i, j)
		}
	}
}

func TestSimulateTerminalPricesPositiveAndDeterministic(t *testing.T) {
	ps := NewPriceSimulator(lending.DefaultUniverse())
	s := baselineScenario()

	rng1 := rand.New(rand.NewPCG(42, 0))
	p1, err := ps.SimulateTerminalPrices(rng1, testPrices(), s, 30)
	require.NoError(t, err)

	rng2 := rand.New(rand.NewPCG(42, 0))
	p2, err := ps.SimulateTerminalPrices(rng2, testPrices(), s, 30)
	require.NoError(t, err)

	for sym, price := range p1 {
		assert.Greater(t, price, 0.0)
		assert.Equal(t, price, p2[sym], "same seed must reproduce %s", sym)
	}
}

func TestSimulateTerminalPricesAppliesShock(t *testing.T) {
	ps := NewPriceSimulator(lending.DefaultUniverse())

	shocked := baselineScenario()
	shocked.PriceShocks = map[lending.AssetSymbol]float64{lending.AssetBTC: 0.5}

	base, err := ps.SimulateTerminalPrices(rand.New(rand.NewPCG(7, 0)), testPrices(), baselineScenario(), 30)
	require.NoError(t, err)
	withShock, err := ps.SimulateTerminalPrices(rand.New(rand.NewPCG(7, 0)), testPrices(), shocked, 30)
	require.NoError(t, err)

	// 同一抽样下冲击因子是确定性乘数
	assert.InDelta(t, base[lending.AssetBTC]*0.5, withShock[lending.AssetBTC], 1e-6)
	assert.InDelta(t, base[lending.AssetETH], withShock[lending.AssetETH], 1e-6)
}

func TestSimulateTerminalPricesMissingPrice(t *testing.T) {
	ps := NewPriceSimulator(lending.DefaultUniverse())
	_, err := ps.SimulateTerminalPrices(rand.New(rand.NewPCG(1, 0)), map[lending.AssetSymbol]float64{}, baselineScenario(), 30)
	assert.ErrorIs(t, err, lending.ErrUnknownAsset)
}

// 相关系数覆写为 1 时两资产的对数收益完全同向
func TestSimulateTerminalPricesPerfectCorrelation(t *testing.T) {
	ps := NewPriceSimulator(lending.DefaultUniverse())
	s := baselineScenario()
	s.CorrelationOverrides = map[[2]lending.AssetSymbol]float64{
		{lending.AssetBTC, lending.AssetETH}: 1.0,
		{lending.AssetBTC, lending.AssetSOL}: 1.0,
		{lending.AssetETH, lending.AssetSOL}: 1.0,
	}

	const trials = 2000
	btcReturns := make([]float64, trials)
	ethReturns := make([]float64, trials)
	start := testPrices()

	for i := 0; i < trials; i++ {
		rng := rand.New(rand.NewPCG(99, uint64(i)))
		out, err := ps.SimulateTerminalPrices(rng, start, s, 30)
		require.NoError(t, err)
		btcReturns[i] = math.Log(out[lending.AssetBTC] / start[lending.AssetBTC])
		ethReturns[i] = math.Log(out[lending.AssetETH] / start[lending.AssetETH])
	}

	corr, err := stats.Correlation(btcReturns, ethReturns)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr, 1e-6)
}

func TestSimulateFanPaths(t *testing.T) {
	ps := NewPriceSimulator(lending.DefaultUniverse())
	rng := rand.New(rand.NewPCG(3, 0))

	paths, err := ps.SimulateFanPaths(rng, lending.AssetBTC, 100000, 30, 25)
	require.NoError(t, err)
	require.Len(t, paths, 25)

	for _, path := range paths {
		require.Len(t, path, 31)
		assert.Equal(t, 100000.0, path[0])
		for _, p := range path {
			assert.Greater(t, p, 0.0)
		}
	}

	_, err = ps.SimulateFanPaths(rng, lending.AssetSymbol("DOGE"), 100, 30, 10)
	assert.ErrorIs(t, err, lending.ErrUnknownAsset)
}

func TestGenerateHourlyHistory(t *testing.T) {
	ps := NewPriceSimulator(lending.DefaultUniverse())
	rng := rand.New(rand.NewPCG(11, 0))

	start := map[lending.AssetSymbol]float64{
		lending.AssetBTC: 30000,
		lending.AssetETH: 1800,
		lending.AssetSOL: 20,
	}
	target := testPrices()

	series, err := ps.GenerateHourlyHistory(rng, start, target, 1)
	require.NoError(t, err)
	require.Len(t, series, 3)

	steps := 365 * 24
	for sym, prices := range series {
		require.Len(t, prices, steps+1)
		assert.Equal(t, start[sym], prices[0])
		for _, p := range prices {
			assert.Greater(t, p, 0.0)
		}
	}

	_, err = ps.GenerateHourlyHistory(rng, map[lending.AssetSymbol]float64{}, target, 1)
	assert.Error(t, err)
}
