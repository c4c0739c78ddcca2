package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// 风险模型常量
const (
	// WrongWayFactor 错向风险乘数：PD 随 drawdown × leverage 放大的标定系数
	WrongWayFactor = 2.0
	// LGDFloor 违约损失率下限，抵押充足时仍有操作/流动性摩擦损失
	LGDFloor = 0.30
)

// MarginState 保证金状态
type MarginState string

const (
	MarginHealthy     MarginState = "HEALTHY"
	MarginWarning     MarginState = "WARNING"
	MarginCall        MarginState = "MARGIN_CALL"
	MarginLiquidation MarginState = "LIQUIDATION"
)

// LoanToValue 贷款价值比 principal / collateralValue
// 抵押品价值为零时返回 +Inf 哨兵值，表示抵押覆盖完全丧失
func LoanToValue(principal, collateralValue float64) float64 {
	if collateralValue == 0 {
		return math.Inf(1)
	}
	return principal / collateralValue
}

// MarginStatusFor 按阈值判定保证金状态，恰好落在阈值上归入更高风险档
func MarginStatusFor(ltv float64, policy MarginPolicy) MarginState {
	switch {
	case ltv >= policy.LiquidationLTV:
		return MarginLiquidation
	case ltv >= policy.MarginCallLTV:
		return MarginCall
	case ltv >= policy.WarningLTV:
		return MarginWarning
	default:
		return MarginHealthy
	}
}

// StressedPD 错向风险调整后的违约概率
// PD = basePD × (1 + drawdown × leverage × 2)，封顶 1.0
func StressedPD(baseAnnualPD, marketDrawdown, leverage float64) float64 {
	pd := baseAnnualPD * (1 + marketDrawdown*leverage*WrongWayFactor)
	return math.Min(pd, 1.0)
}

// LossGivenDefault 违约损失率
// max(0, principal − collateralValue×(1−slippage)) / principal，下限 0.30
func LossGivenDefault(collateralValue, principal, liquidationSlippage float64) float64 {
	if principal <= 0 {
		return LGDFloor
	}
	recovery := collateralValue * (1 - liquidationSlippage)
	lgd := math.Max(0, principal-recovery) / principal
	lgd = math.Max(lgd, LGDFloor)
	return math.Min(lgd, 1.0)
}

// ExpectedLoss 预期损失 EAD × PD × LGD
func ExpectedLoss(principal, collateralValue, baseAnnualPD, marketDrawdown, leverage, liquidationSlippage float64) float64 {
	pd := StressedPD(baseAnnualPD, marketDrawdown, leverage)
	lgd := LossGivenDefault(collateralValue, principal, liquidationSlippage)
	return principal * pd * lgd
}

// HorizonPD 把年化 PD 换算到给定天数的违约概率
// 1 − (1 − annualPD)^(days/365)
func HorizonPD(annualPD float64, horizonDays int) float64 {
	if annualPD >= 1 {
		return 1
	}
	if annualPD <= 0 || horizonDays <= 0 {
		return 0
	}
	return 1 - math.Pow(1-annualPD, float64(horizonDays)/365.0)
}

// MarginEventProbability 对数正态价格过程在 horizon 内触及 LTV 阈值的概率
// 所需跌幅 drop = 1 − currentLTV/thresholdLTV；已触及（drop ≤ 0）则概率为 1
func MarginEventProbability(currentLTV, thresholdLTV, annualVolatility float64, horizonDays int) float64 {
	if thresholdLTV <= 0 || math.IsInf(currentLTV, 1) {
		return 1
	}
	drop := 1 - currentLTV/thresholdLTV
	if drop <= 0 {
		return 1
	}
	if drop >= 1 {
		return 0
	}

	scaledVol := annualVolatility * math.Sqrt(float64(horizonDays)/365.0)
	if scaledVol <= 0 {
		return 0
	}

	z := math.Log(1/(1-drop)) / scaledVol
	return normalCDF(-z)
}

// normalCDF 标准正态分布函数 Φ(x)
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// LoanMetrics 单笔贷款的实时风险指标
type LoanMetrics struct {
	LoanID          string          `json:"loan_id"`
	CollateralValue decimal.Decimal `json:"collateral_value"`
	LTV             float64         `json:"ltv"`
	MarginState     MarginState     `json:"margin_state"`
	StressedPD      float64         `json:"stressed_pd"`
	LGD             float64         `json:"lgd"`
	ExpectedLoss    decimal.Decimal `json:"expected_loss"`
	DailyInterest   decimal.Decimal `json:"daily_interest"`
	// 横向到各阈值的触发概率（贷款期限内）
	WarningProb     float64 `json:"warning_prob"`
	MarginCallProb  float64 `json:"margin_call_prob"`
	LiquidationProb float64 `json:"liquidation_prob"`
}

// ComputeLoanMetrics 计算单笔贷款指标；drawdown 为当前市场回撤（实时视图通常为 0）
func ComputeLoanMetrics(loan Loan, price decimal.Decimal, universe *AssetUniverse, marketDrawdown float64) (LoanMetrics, error) {
	policy, err := universe.Policy(loan.Collateral.Asset)
	if err != nil {
		return LoanMetrics{}, err
	}
	basePD, err := loan.Rating.BaseAnnualPD()
	if err != nil {
		return LoanMetrics{}, err
	}

	collateralValue := loan.Collateral.ValueAt(price)
	cv := collateralValue.InexactFloat64()
	principal := loan.Principal.InexactFloat64()

	ltv := LoanToValue(principal, cv)
	pd := StressedPD(basePD, marketDrawdown, loan.Leverage)
	lgd := LossGivenDefault(cv, principal, policy.Risk.LiquidationSlippage)
	el := principal * pd * lgd

	return LoanMetrics{
		LoanID:          loan.LoanID,
		CollateralValue: collateralValue,
		LTV:             ltv,
		MarginState:     MarginStatusFor(ltv, policy.Margin),
		StressedPD:      pd,
		LGD:             lgd,
		ExpectedLoss:    decimal.NewFromFloat(el),
		DailyInterest:   loan.DailyInterest(),
		WarningProb:     MarginEventProbability(ltv, policy.Margin.WarningLTV, policy.Risk.AnnualVolatility, loan.TenorDays),
		MarginCallProb:  MarginEventProbability(ltv, policy.Margin.MarginCallLTV, policy.Risk.AnnualVolatility, loan.TenorDays),
		LiquidationProb: MarginEventProbability(ltv, policy.Margin.LiquidationLTV, policy.Risk.AnnualVolatility, loan.TenorDays),
	}, nil
}

// PortfolioMetrics 组合级实时风险指标
type PortfolioMetrics struct {
	TotalExposure   decimal.Decimal `json:"total_exposure"`
	TotalCollateral decimal.Decimal `json:"total_collateral"`
	// 组合 LTV；总抵押为零时定义为 0（不向组合层传播 +Inf）
	AggregateLTV      float64                 `json:"aggregate_ltv"`
	TotalExpectedLoss decimal.Decimal         `json:"total_expected_loss"`
	DailyRevenue      decimal.Decimal         `json:"daily_revenue"`
	Concentration     map[AssetSymbol]float64 `json:"concentration"`
	// HHI 按贷款本金份额计算，份额以 0–100 百分数计，范围 0–10000
	HHI          float64 `json:"hhi"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	LoanCount    int     `json:"loan_count"`
}

// ComputePortfolioMetrics 汇总组合指标
// 各项合计为直加；风险调整收益用 预期损失/风险资本 作为波动率代理（近似，非真实收益序列 Sharpe）
func ComputePortfolioMetrics(p *Portfolio, prices PriceMap, universe *AssetUniverse, riskFreeRate, marketDrawdown float64) (PortfolioMetrics, error) {
	if err := prices.Validate(); err != nil {
		return PortfolioMetrics{}, err
	}

	m := PortfolioMetrics{
		TotalExposure:     decimal.Zero,
		TotalCollateral:   decimal.Zero,
		TotalExpectedLoss: decimal.Zero,
		DailyRevenue:      decimal.Zero,
		Concentration:     make(map[AssetSymbol]float64),
		LoanCount:         len(p.Loans),
	}

	collateralByAsset := make(map[AssetSymbol]decimal.Decimal)
	var annualRevenue float64

	for _, loan := range p.Loans {
		price, ok := prices[loan.Collateral.Asset]
		if !ok {
			return PortfolioMetrics{}, ErrUnknownAsset
		}
		lm, err := ComputeLoanMetrics(loan, price, universe, marketDrawdown)
		if err != nil {
			return PortfolioMetrics{}, err
		}

		m.TotalExposure = m.TotalExposure.Add(loan.Principal)
		m.TotalCollateral = m.TotalCollateral.Add(lm.CollateralValue)
		m.TotalExpectedLoss = m.TotalExpectedLoss.Add(lm.ExpectedLoss)
		m.DailyRevenue = m.DailyRevenue.Add(lm.DailyInterest)
		annualRevenue += loan.Principal.Mul(loan.AnnualRate).InexactFloat64()

		prev, exists := collateralByAsset[loan.Collateral.Asset]
		if !exists {
			prev = decimal.Zero
		}
		collateralByAsset[loan.Collateral.Asset] = prev.Add(lm.CollateralValue)
	}

	totalCollateral := m.TotalCollateral.InexactFloat64()
	totalExposure := m.TotalExposure.InexactFloat64()

	if totalCollateral > 0 {
		m.AggregateLTV = totalExposure / totalCollateral
		for sym, val := range collateralByAsset {
			m.Concentration[sym] = val.InexactFloat64() / totalCollateral
		}
	}

	// HHI over principal shares
	if totalExposure > 0 {
		for _, loan := range p.Loans {
			share := loan.Principal.InexactFloat64() / totalExposure * 100
			m.HHI += share * share
		}
	}

	// 风险调整收益：预期收益率 vs 预期损失/风险资本 代理波动率
	riskCapital := p.RiskCapital.InexactFloat64()
	if totalExposure > 0 && riskCapital > 0 {
		expectedReturn := annualRevenue / totalExposure
		volProxy := m.TotalExpectedLoss.InexactFloat64() / riskCapital
		if volProxy > 0 {
			m.SharpeRatio = (expectedReturn - riskFreeRate) / volProxy
			// 下行代理只计信用损失，本身即为下行度量，再压缩一档
			m.SortinoRatio = (expectedReturn - riskFreeRate) / (volProxy * 0.7)
		}
	}

	return m, nil
}

// PDCurvePoint PD 期限结构上的一个点
type PDCurvePoint struct {
	HorizonDays int     `json:"horizon_days"`
	PD          float64 `json:"pd"`
}

// PDTermStructure 给定评级与压力参数，输出各期限的违约概率曲线
func PDTermStructure(rating CreditRating, marketDrawdown, leverage float64, horizons []int) ([]PDCurvePoint, error) {
	basePD, err := rating.BaseAnnualPD()
	if err != nil {
		return nil, err
	}
	annual := StressedPD(basePD, marketDrawdown, leverage)

	points := make([]PDCurvePoint, 0, len(horizons))
	for _, days := range horizons {
		points = append(points, PDCurvePoint{HorizonDays: days, PD: HorizonPD(annual, days)})
	}
	return points, nil
}
