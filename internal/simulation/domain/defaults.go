package domain

import (
	"math"
	"math/rand/v2"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
)

// DefaultSimulator 相关违约模拟器（单因子 t-copula）
// 共同因子 + 个体冲击构成高斯混合，再除以共享的 χ²/ν 得到 t 分布变量；
// 自由度越低尾部越厚，极端行情下批量违约的概率越高——这是用 copula
// 而不是独立伯努利抽样的全部理由
type DefaultSimulator struct {
	universe *lending.AssetUniverse
}

// NewDefaultSimulator 创建违约模拟器
func NewDefaultSimulator(universe *lending.AssetUniverse) *DefaultSimulator {
	return &DefaultSimulator{universe: universe}
}

// loanHorizonPD 贷款在模拟期内的压力违约概率
// 年化 PD 先乘场景 PD 乘数，再按 drawdown × leverage 错向放大，最后换算到 horizon
func loanHorizonPD(loan lending.Loan, s scenario.StressScenario, horizonDays int) (float64, error) {
	basePD, err := loan.Rating.BaseAnnualPD()
	if err != nil {
		return 0, err
	}
	annual := lending.StressedPD(basePD*s.PDMultiplier, s.MarketDrawdown, loan.Leverage)
	return lending.HorizonPD(annual, horizonDays), nil
}

// SimulateDefaults 生成一次所有贷款的违约联合抽样
// 返回与 loans 等长的布尔切片
func (ds *DefaultSimulator) SimulateDefaults(
	rng *rand.Rand,
	loans []lending.Loan,
	s scenario.StressScenario,
	horizonDays int,
) ([]bool, error) {
	n := len(loans)
	defaults := make([]bool, n)
	if n == 0 {
		return defaults, nil
	}

	rho := s.DefaultCorrelation
	sqrtRho := math.Sqrt(rho)
	sqrtOneMinusRho := math.Sqrt(1 - rho)

	// 共同因子与共享的 χ² 混合量：χ²_ν 用 ν 个标准正态平方和近似，
	// 非整数 ν 四舍五入（CDF 一侧仍按精确 ν 计算）
	z := rng.NormFloat64()
	dof := int(math.Round(s.CopulaDoF))
	if dof < 1 {
		dof = 1
	}
	chi2 := 0.0
	for i := 0; i < dof; i++ {
		g := rng.NormFloat64()
		chi2 += g * g
	}
	scale := math.Sqrt(chi2 / s.CopulaDoF)
	if scale <= 0 {
		scale = 1e-12
	}

	for i, loan := range loans {
		pd, err := loanHorizonPD(loan, s, horizonDays)
		if err != nil {
			return nil, err
		}

		x := sqrtRho*z + sqrtOneMinusRho*rng.NormFloat64()
		t := x / scale
		u := StudentTCDF(t, s.CopulaDoF)

		if u < pd {
			// 违约后仍有一定概率被追加抵押等手段治愈
			if s.CureProbability > 0 && rng.Float64() < s.CureProbability {
				continue
			}
			defaults[i] = true
		}
	}

	return defaults, nil
}
