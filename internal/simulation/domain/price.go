package domain

import (
	"fmt"
	"math"
	"math/rand/v2"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
)

// PriceSimulator 相关资产价格模拟器
// 用下三角变换（Cholesky 构造）生成目标相关结构的冲击，再走 GBM 到期末
type PriceSimulator struct {
	universe *lending.AssetUniverse
}

// NewPriceSimulator 创建价格模拟器
func NewPriceSimulator(universe *lending.AssetUniverse) *PriceSimulator {
	return &PriceSimulator{universe: universe}
}

// choleskyLower 相关系数矩阵的下三角分解
// 不一致的相关三元组会把对角元根号下逼成负数，此处用 max(0,·) 做数值钳制而不是报错：
// 钳制是稳定性处理，场景覆写的极端组合仍应产出可用的模拟
func choleskyLower(corr [][]float64) [][]float64 {
	n := len(corr)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := 0.0
			for k := 0; k < j; k++ {
				sum += l[i][k] * l[j][k]
			}
			if i == j {
				l[i][j] = math.Sqrt(math.Max(0, corr[i][i]-sum))
			} else if l[j][j] > 0 {
				l[i][j] = (corr[i][j] - sum) / l[j][j]
			}
		}
	}
	return l
}

// correlationMatrix 按资产全集顺序取出场景修正后的相关系数矩阵
func (ps *PriceSimulator) correlationMatrix(s scenario.StressScenario) ([]lending.AssetSymbol, [][]float64) {
	symbols := ps.universe.Symbols()
	n := len(symbols)

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		for j := range corr[i] {
			corr[i][j] = s.Correlation(ps.universe, symbols[i], symbols[j])
		}
	}
	return symbols, corr
}

// SimulateTerminalPrices 生成一次所有抵押资产的期末价格联合抽样
// GBM 风险中性漂移 −σ²/2，σ 叠加资产自身乘数与场景波动率乘数，最后乘确定性冲击因子
func (ps *PriceSimulator) SimulateTerminalPrices(
	rng *rand.Rand,
	current map[lending.AssetSymbol]float64,
	s scenario.StressScenario,
	horizonDays int,
) (map[lending.AssetSymbol]float64, error) {
	symbols, corr := ps.correlationMatrix(s)
	l := choleskyLower(corr)
	horizon := float64(horizonDays) / 365.0

	// 独立标准正态 → 下三角变换得到相关冲击
	z := make([]float64, len(symbols))
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	shocks := make([]float64, len(symbols))
	for i := range symbols {
		for k := 0; k <= i; k++ {
			shocks[i] += l[i][k] * z[k]
		}
	}

	out := make(map[lending.AssetSymbol]float64, len(symbols))
	for i, sym := range symbols {
		price, ok := current[sym]
		if !ok {
			return nil, fmt.Errorf("%w: %s", lending.ErrUnknownAsset, sym)
		}
		policy, err := ps.universe.Policy(sym)
		if err != nil {
			return nil, err
		}

		sigma := policy.Risk.AnnualVolatility * policy.Risk.VolatilityMultiplier * s.VolatilityMultiplier
		drift := -0.5 * sigma * sigma * horizon
		diffusion := sigma * math.Sqrt(horizon) * shocks[i]

		out[sym] = price * math.Exp(drift+diffusion) * s.PriceShock(sym)
	}
	return out, nil
}

// SimulateFanPaths 单资产独立 GBM 路径（日步长），用于扇形图展示
// 单资产场景无需跨资产相关
func (ps *PriceSimulator) SimulateFanPaths(
	rng *rand.Rand,
	sym lending.AssetSymbol,
	currentPrice float64,
	horizonDays, numPaths int,
) ([][]float64, error) {
	policy, err := ps.universe.Policy(sym)
	if err != nil {
		return nil, err
	}

	sigma := policy.Risk.AnnualVolatility * policy.Risk.VolatilityMultiplier
	dt := 1.0 / 365.0
	driftTerm := -0.5 * sigma * sigma * dt
	volTerm := sigma * math.Sqrt(dt)

	paths := make([][]float64, numPaths)
	for p := 0; p < numPaths; p++ {
		path := make([]float64, horizonDays+1)
		path[0] = currentPrice
		for d := 1; d <= horizonDays; d++ {
			path[d] = path[d-1] * math.Exp(driftTerm+volTerm*rng.NormFloat64())
		}
		paths[p] = path
	}
	return paths, nil
}

// GenerateHourlyHistory 合成历史小时价格序列，用于回测与图表
// 漂移按 ln(target/start)/steps 标定，使路径期末价格收敛到目标现价；
// 各资产冲击沿用同一套相关构造
func (ps *PriceSimulator) GenerateHourlyHistory(
	rng *rand.Rand,
	startPrices, targetPrices map[lending.AssetSymbol]float64,
	years int,
) (map[lending.AssetSymbol][]float64, error) {
	symbols := ps.universe.Symbols()
	n := len(symbols)

	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		for j := range corr[i] {
			corr[i][j] = ps.universe.Correlation(symbols[i], symbols[j])
		}
	}
	l := choleskyLower(corr)

	steps := years * 365 * 24
	if steps <= 0 {
		return nil, fmt.Errorf("history length must be positive")
	}
	hourlyDt := 1.0 / (365.0 * 24.0)

	drifts := make([]float64, n)
	vols := make([]float64, n)
	series := make(map[lending.AssetSymbol][]float64, n)
	for i, sym := range symbols {
		start, ok := startPrices[sym]
		if !ok || start <= 0 {
			return nil, fmt.Errorf("%w: %s", lending.ErrNonFinitePrice, sym)
		}
		target, ok := targetPrices[sym]
		if !ok || target <= 0 {
			return nil, fmt.Errorf("%w: %s", lending.ErrNonFinitePrice, sym)
		}
		policy, err := ps.universe.Policy(sym)
		if err != nil {
			return nil, err
		}

		drifts[i] = math.Log(target/start) / float64(steps)
		vols[i] = policy.Risk.AnnualVolatility * policy.Risk.VolatilityMultiplier * math.Sqrt(hourlyDt)

		s := make([]float64, steps+1)
		s[0] = start
		series[sym] = s
	}

	z := make([]float64, n)
	for step := 1; step <= steps; step++ {
		for i := range z {
			z[i] = rng.NormFloat64()
		}
		for i, sym := range symbols {
			shock := 0.0
			for k := 0; k <= i; k++ {
				shock += l[i][k] * z[k]
			}
			prev := series[sym][step-1]
			series[sym][step] = prev * math.Exp(drifts[i]+vols[i]*shock)
		}
	}

	return series, nil
}
