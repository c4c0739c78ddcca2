// Package domain 加密货币抵押贷款的领域模型
package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeQuantity  = errors.New("collateral quantity cannot be negative")
	ErrInvalidPrincipal  = errors.New("loan principal must be positive")
	ErrUnknownAsset      = errors.New("unknown collateral asset")
	ErrUnknownRating     = errors.New("unknown credit rating tier")
	ErrDuplicateLoanID   = errors.New("loan id already exists in portfolio")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrNonFinitePrice    = errors.New("price must be finite and positive")
)

// AssetSymbol 抵押资产代码
type AssetSymbol string

const (
	AssetBTC AssetSymbol = "BTC"
	AssetETH AssetSymbol = "ETH"
	AssetSOL AssetSymbol = "SOL"
)

// CreditRating 借款人信用评级档位
type CreditRating string

const (
	RatingAA  CreditRating = "AA"
	RatingA   CreditRating = "A"
	RatingBBB CreditRating = "BBB"
)

// baseAnnualPD 各评级的基础年化违约概率，信用质量越高 PD 越低
var baseAnnualPD = map[CreditRating]float64{
	RatingAA:  0.008,
	RatingA:   0.015,
	RatingBBB: 0.030,
}

// BaseAnnualPD 返回该评级的基础年化违约概率
func (r CreditRating) BaseAnnualPD() (float64, error) {
	pd, ok := baseAnnualPD[r]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRating, r)
	}
	return pd, nil
}

// Valid 评级是否属于支持的档位
func (r CreditRating) Valid() bool {
	_, ok := baseAnnualPD[r]
	return ok
}

// MarginPolicy 资产的保证金策略，三个 LTV 阈值严格递增
type MarginPolicy struct {
	WarningLTV     float64 `json:"warning_ltv"`
	MarginCallLTV  float64 `json:"margin_call_ltv"`
	LiquidationLTV float64 `json:"liquidation_ltv"`
}

// RiskCharacteristics 资产的风险特征
type RiskCharacteristics struct {
	// 强平滑点比例（变现折价）
	LiquidationSlippage float64 `json:"liquidation_slippage"`
	// 年化波动率
	AnnualVolatility float64 `json:"annual_volatility"`
	// 波动率乘数，模拟时叠加在场景乘数上
	VolatilityMultiplier float64 `json:"volatility_multiplier"`
}

// AssetPolicy 单个资产的保证金策略与风险特征
type AssetPolicy struct {
	Symbol AssetSymbol         `json:"symbol"`
	Margin MarginPolicy        `json:"margin"`
	Risk   RiskCharacteristics `json:"risk"`
}

// AssetUniverse 抵押资产全集：策略表 + 两两相关系数
// 启动时由配置构建一次，之后只读
type AssetUniverse struct {
	symbols      []AssetSymbol
	policies     map[AssetSymbol]AssetPolicy
	correlations map[pairKey]float64
}

type pairKey struct{ a, b AssetSymbol }

func orderedPair(a, b AssetSymbol) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// NewAssetUniverse 构建资产全集，校验阈值递增与相关系数范围
func NewAssetUniverse(policies []AssetPolicy, correlations map[[2]AssetSymbol]float64) (*AssetUniverse, error) {
	if len(policies) == 0 {
		return nil, errors.New("asset universe cannot be empty")
	}

	u := &AssetUniverse{
		policies:     make(map[AssetSymbol]AssetPolicy, len(policies)),
		correlations: make(map[pairKey]float64),
	}

	for _, p := range policies {
		if !(p.Margin.WarningLTV < p.Margin.MarginCallLTV && p.Margin.MarginCallLTV < p.Margin.LiquidationLTV) {
			return nil, fmt.Errorf("asset %s: margin thresholds must be strictly increasing", p.Symbol)
		}
		if p.Risk.LiquidationSlippage < 0 || p.Risk.LiquidationSlippage >= 1 {
			return nil, fmt.Errorf("asset %s: liquidation slippage must be in [0,1)", p.Symbol)
		}
		if p.Risk.AnnualVolatility <= 0 || p.Risk.VolatilityMultiplier <= 0 {
			return nil, fmt.Errorf("asset %s: volatility parameters must be positive", p.Symbol)
		}
		if _, dup := u.policies[p.Symbol]; dup {
			return nil, fmt.Errorf("asset %s: duplicate policy", p.Symbol)
		}
		u.policies[p.Symbol] = p
		u.symbols = append(u.symbols, p.Symbol)
	}

	for pair, rho := range correlations {
		if rho < -1 || rho > 1 {
			return nil, fmt.Errorf("correlation %s/%s out of range: %v", pair[0], pair[1], rho)
		}
		u.correlations[orderedPair(pair[0], pair[1])] = rho
	}

	return u, nil
}

// DefaultUniverse 默认三资产全集（BTC/ETH/SOL）
func DefaultUniverse() *AssetUniverse {
	u, err := NewAssetUniverse(
		[]AssetPolicy{
			{
				Symbol: AssetBTC,
				Margin: MarginPolicy{WarningLTV: 0.70, MarginCallLTV: 0.80, LiquidationLTV: 0.90},
				Risk:   RiskCharacteristics{LiquidationSlippage: 0.05, AnnualVolatility: 0.60, VolatilityMultiplier: 1.0},
			},
			{
				Symbol: AssetETH,
				Margin: MarginPolicy{WarningLTV: 0.65, MarginCallLTV: 0.75, LiquidationLTV: 0.85},
				Risk:   RiskCharacteristics{LiquidationSlippage: 0.07, AnnualVolatility: 0.75, VolatilityMultiplier: 1.15},
			},
			{
				Symbol: AssetSOL,
				Margin: MarginPolicy{WarningLTV: 0.60, MarginCallLTV: 0.70, LiquidationLTV: 0.80},
				Risk:   RiskCharacteristics{LiquidationSlippage: 0.10, AnnualVolatility: 0.95, VolatilityMultiplier: 1.40},
			},
		},
		map[[2]AssetSymbol]float64{
			{AssetBTC, AssetETH}: 0.82,
			{AssetBTC, AssetSOL}: 0.72,
			{AssetETH, AssetSOL}: 0.78,
		},
	)
	if err != nil {
		panic(err) // 默认参数是常量，构建失败属于程序错误
	}
	return u
}

// Symbols 资产代码列表，顺序稳定
func (u *AssetUniverse) Symbols() []AssetSymbol {
	out := make([]AssetSymbol, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// Policy 返回资产策略
func (u *AssetUniverse) Policy(symbol AssetSymbol) (AssetPolicy, error) {
	p, ok := u.policies[symbol]
	if !ok {
		return AssetPolicy{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return p, nil
}

// Correlation 返回两资产相关系数，资产相同恒为 1，未配置则为 0
func (u *AssetUniverse) Correlation(a, b AssetSymbol) float64 {
	if a == b {
		return 1
	}
	return u.correlations[orderedPair(a, b)]
}

// CollateralPosition 抵押仓位：资产 + 非负数量
type CollateralPosition struct {
	Asset    AssetSymbol     `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
}

// NewCollateralPosition 创建抵押仓位，负数量立即失败
func NewCollateralPosition(asset AssetSymbol, quantity decimal.Decimal) (CollateralPosition, error) {
	if quantity.IsNegative() {
		return CollateralPosition{}, ErrNegativeQuantity
	}
	return CollateralPosition{Asset: asset, Quantity: quantity}, nil
}

// ValueAt 按给定价格计算抵押品市值
func (c CollateralPosition) ValueAt(price decimal.Decimal) decimal.Decimal {
	return c.Quantity.Mul(price)
}

// Loan 单笔贷款，不可变值对象，编辑时整体替换
type Loan struct {
	LoanID       string             `json:"loan_id"`
	Borrower     string             `json:"borrower"`
	Rating       CreditRating       `json:"rating"`
	Principal    decimal.Decimal    `json:"principal"`
	AnnualRate   decimal.Decimal    `json:"annual_rate"`
	TenorDays    int                `json:"tenor_days"`
	RollDate     time.Time          `json:"roll_date"`
	Collateral   CollateralPosition `json:"collateral"`
	Leverage     float64            `json:"leverage"`
	OriginatedAt time.Time          `json:"originated_at"`
}

// NewLoan 创建贷款并做构造期校验
func NewLoan(
	loanID, borrower string,
	rating CreditRating,
	principal, annualRate decimal.Decimal,
	tenorDays int,
	rollDate time.Time,
	collateral CollateralPosition,
	leverage float64,
) (Loan, error) {
	if loanID == "" {
		return Loan{}, errors.New("loan id is required")
	}
	if !rating.Valid() {
		return Loan{}, fmt.Errorf("%w: %s", ErrUnknownRating, rating)
	}
	if !principal.IsPositive() {
		return Loan{}, ErrInvalidPrincipal
	}
	if annualRate.IsNegative() {
		return Loan{}, errors.New("annual rate cannot be negative")
	}
	if tenorDays <= 0 {
		return Loan{}, errors.New("tenor must be positive")
	}
	if leverage < 0 || math.IsNaN(leverage) || math.IsInf(leverage, 0) {
		return Loan{}, errors.New("leverage must be finite and non-negative")
	}
	if collateral.Quantity.IsNegative() {
		return Loan{}, ErrNegativeQuantity
	}

	return Loan{
		LoanID:       loanID,
		Borrower:     borrower,
		Rating:       rating,
		Principal:    principal,
		AnnualRate:   annualRate,
		TenorDays:    tenorDays,
		RollDate:     rollDate,
		Collateral:   collateral,
		Leverage:     leverage,
		OriginatedAt: time.Now(),
	}, nil
}

// DailyInterest 每日利息收入 principal × rate / 365
func (l Loan) DailyInterest() decimal.Decimal {
	return l.Principal.Mul(l.AnnualRate).Div(decimal.NewFromInt(365))
}

// Portfolio 贷款组合聚合根：有序贷款集合 + 风险资本
type Portfolio struct {
	PortfolioID string          `json:"portfolio_id"`
	Name        string          `json:"name"`
	RiskCapital decimal.Decimal `json:"risk_capital"`
	Loans       []Loan          `json:"loans"`
}

// NewPortfolio 创建组合
func NewPortfolio(portfolioID, name string, riskCapital decimal.Decimal) (*Portfolio, error) {
	if portfolioID == "" {
		return nil, errors.New("portfolio id is required")
	}
	if riskCapital.IsNegative() {
		return nil, errors.New("risk capital cannot be negative")
	}
	return &Portfolio{PortfolioID: portfolioID, Name: name, RiskCapital: riskCapital}, nil
}

// AddLoan 追加贷款，贷款 ID 必须唯一
func (p *Portfolio) AddLoan(loan Loan) error {
	for _, l := range p.Loans {
		if l.LoanID == loan.LoanID {
			return ErrDuplicateLoanID
		}
	}
	p.Loans = append(p.Loans, loan)
	return nil
}

// ReplaceLoan 整体替换同 ID 贷款（贷款不可部分修改）
func (p *Portfolio) ReplaceLoan(loan Loan) error {
	for i, l := range p.Loans {
		if l.LoanID == loan.LoanID {
			p.Loans[i] = loan
			return nil
		}
	}
	return ErrLoanNotFound
}

// RemoveLoan 删除贷款
func (p *Portfolio) RemoveLoan(loanID string) error {
	for i, l := range p.Loans {
		if l.LoanID == loanID {
			p.Loans = append(p.Loans[:i], p.Loans[i+1:]...)
			return nil
		}
	}
	return ErrLoanNotFound
}

// FindLoan 按 ID 查找贷款
func (p *Portfolio) FindLoan(loanID string) (Loan, error) {
	for _, l := range p.Loans {
		if l.LoanID == loanID {
			return l, nil
		}
	}
	return Loan{}, ErrLoanNotFound
}

// PriceMap 资产现价快照（USD）
type PriceMap map[AssetSymbol]decimal.Decimal

// Validate 校验价格快照：必须有限且为正
func (pm PriceMap) Validate() error {
	for sym, price := range pm {
		f := price.InexactFloat64()
		if !price.IsPositive() || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s", ErrNonFinitePrice, sym)
		}
	}
	return nil
}

// PortfolioRepository 组合仓储接口
type PortfolioRepository interface {
	Save(ctx context.Context, portfolio *Portfolio) error
	GetByID(ctx context.Context, portfolioID string) (*Portfolio, error)
	List(ctx context.Context) ([]*Portfolio, error)
	Delete(ctx context.Context, portfolioID string) error
}
