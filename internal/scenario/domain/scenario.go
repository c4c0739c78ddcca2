// Package domain 压力场景的领域模型：命名场景目录与参数校验
package domain

import (
	"errors"
	"fmt"
	"sort"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
)

var (
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrInvalidScenario  = errors.New("invalid scenario parameters")
)

// StressScenario 一组命名的压力参数，定义后不可变
type StressScenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// 市场整体回撤 (0–1)，驱动错向风险 PD 放大
	MarketDrawdown float64 `json:"market_drawdown"`
	// 波动率乘数 (>0)
	VolatilityMultiplier float64 `json:"volatility_multiplier"`
	// 各资产确定性价格冲击因子 (>0)，1.0 为不变
	PriceShocks map[lending.AssetSymbol]float64 `json:"price_shocks"`
	// 资产对相关系数覆写 [-1,1]，未覆写的对沿用资产全集默认值
	CorrelationOverrides map[[2]lending.AssetSymbol]float64 `json:"correlation_overrides"`
	// PD 乘数
	PDMultiplier float64 `json:"pd_multiplier"`
	// LGD 乘数
	LGDMultiplier float64 `json:"lgd_multiplier"`
	// t-copula 自由度 (>0)，越低尾部越厚
	CopulaDoF float64 `json:"copula_dof"`
	// 违约相关系数 (0–1)
	DefaultCorrelation float64 `json:"default_correlation"`
	// 强平滑点乘数
	SlippageMultiplier float64 `json:"slippage_multiplier"`
	// 违约后治愈概率 (0–1)
	CureProbability float64 `json:"cure_probability"`
}

// Validate 类型/范围校验
// 相关系数三元组的数值一致性有意不在此校验：不一致的组合在模拟侧做数值钳制
func (s StressScenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidScenario)
	}
	if s.MarketDrawdown < 0 || s.MarketDrawdown > 1 {
		return fmt.Errorf("%w: market drawdown must be in [0,1]", ErrInvalidScenario)
	}
	if s.VolatilityMultiplier <= 0 {
		return fmt.Errorf("%w: volatility multiplier must be positive", ErrInvalidScenario)
	}
	for sym, shock := range s.PriceShocks {
		if shock <= 0 {
			return fmt.Errorf("%w: price shock for %s must be positive", ErrInvalidScenario, sym)
		}
	}
	for pair, rho := range s.CorrelationOverrides {
		if rho < -1 || rho > 1 {
			return fmt.Errorf("%w: correlation override %s/%s out of range", ErrInvalidScenario, pair[0], pair[1])
		}
	}
	if s.PDMultiplier < 0 || s.LGDMultiplier < 0 {
		return fmt.Errorf("%w: PD/LGD multipliers cannot be negative", ErrInvalidScenario)
	}
	if s.CopulaDoF <= 0 {
		return fmt.Errorf("%w: copula degrees of freedom must be positive", ErrInvalidScenario)
	}
	if s.DefaultCorrelation < 0 || s.DefaultCorrelation > 1 {
		return fmt.Errorf("%w: default correlation must be in [0,1]", ErrInvalidScenario)
	}
	if s.SlippageMultiplier < 0 {
		return fmt.Errorf("%w: slippage multiplier cannot be negative", ErrInvalidScenario)
	}
	if s.CureProbability < 0 || s.CureProbability > 1 {
		return fmt.Errorf("%w: cure probability must be in [0,1]", ErrInvalidScenario)
	}
	return nil
}

// PriceShock 返回资产冲击因子，未配置为 1
func (s StressScenario) PriceShock(sym lending.AssetSymbol) float64 {
	if shock, ok := s.PriceShocks[sym]; ok {
		return shock
	}
	return 1.0
}

// Correlation 返回场景下的资产对相关系数，优先取覆写值
func (s StressScenario) Correlation(universe *lending.AssetUniverse, a, b lending.AssetSymbol) float64 {
	if a == b {
		return 1
	}
	if rho, ok := s.CorrelationOverrides[[2]lending.AssetSymbol{a, b}]; ok {
		return rho
	}
	if rho, ok := s.CorrelationOverrides[[2]lending.AssetSymbol{b, a}]; ok {
		return rho
	}
	return universe.Correlation(a, b)
}

// Catalog 场景目录；启动时构建一次，测试可各自持有独立实例
type Catalog struct {
	scenarios map[string]StressScenario
}

// NewCatalog 创建带内置场景的目录
func NewCatalog() *Catalog {
	c := &Catalog{scenarios: make(map[string]StressScenario)}
	for _, s := range builtinScenarios() {
		c.scenarios[s.ID] = s
	}
	return c
}

// NewEmptyCatalog 创建空目录（测试用）
func NewEmptyCatalog() *Catalog {
	return &Catalog{scenarios: make(map[string]StressScenario)}
}

// Get 按 ID 查找场景
func (c *Catalog) Get(id string) (StressScenario, error) {
	s, ok := c.scenarios[id]
	if !ok {
		return StressScenario{}, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	return s, nil
}

// IDs 枚举场景 ID，排序稳定
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.scenarios))
	for id := range c.scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register 注册或覆写自定义场景；只做类型/范围校验
func (c *Catalog) Register(s StressScenario) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.scenarios[s.ID] = s
	return nil
}

// Comparison 多场景标量字段均值，用于对比表展示
type Comparison struct {
	ScenarioIDs             []string `json:"scenario_ids"`
	AvgMarketDrawdown       float64  `json:"avg_market_drawdown"`
	AvgVolatilityMultiplier float64  `json:"avg_volatility_multiplier"`
	AvgPDMultiplier         float64  `json:"avg_pd_multiplier"`
	AvgLGDMultiplier        float64  `json:"avg_lgd_multiplier"`
	AvgDefaultCorrelation   float64  `json:"avg_default_correlation"`
	AvgCopulaDoF            float64  `json:"avg_copula_dof"`
}

// Compare 对选定场景的标量字段求均值
func (c *Catalog) Compare(ids []string) (Comparison, error) {
	if len(ids) == 0 {
		return Comparison{}, fmt.Errorf("%w: no scenarios selected", ErrInvalidScenario)
	}

	cmp := Comparison{ScenarioIDs: ids}
	for _, id := range ids {
		s, err := c.Get(id)
		if err != nil {
			return Comparison{}, err
		}
		cmp.AvgMarketDrawdown += s.MarketDrawdown
		cmp.AvgVolatilityMultiplier += s.VolatilityMultiplier
		cmp.AvgPDMultiplier += s.PDMultiplier
		cmp.AvgLGDMultiplier += s.LGDMultiplier
		cmp.AvgDefaultCorrelation += s.DefaultCorrelation
		cmp.AvgCopulaDoF += s.CopulaDoF
	}

	n := float64(len(ids))
	cmp.AvgMarketDrawdown /= n
	cmp.AvgVolatilityMultiplier /= n
	cmp.AvgPDMultiplier /= n
	cmp.AvgLGDMultiplier /= n
	cmp.AvgDefaultCorrelation /= n
	cmp.AvgCopulaDoF /= n
	return cmp, nil
}

// builtinScenarios 内置场景参数表
func builtinScenarios() []StressScenario {
	return []StressScenario{
		{
			ID:                   "BASELINE",
			Name:                 "Baseline",
			Description:          "Normal market conditions, no stress applied",
			MarketDrawdown:       0,
			VolatilityMultiplier: 1.0,
			PriceShocks:          map[lending.AssetSymbol]float64{},
			PDMultiplier:         1.0,
			LGDMultiplier:        1.0,
			CopulaDoF:            12,
			DefaultCorrelation:   0.15,
			SlippageMultiplier:   1.0,
			CureProbability:      0.10,
		},
		{
			ID:                   "MILD_CORRECTION",
			Name:                 "Mild Correction",
			Description:          "10-20% pullback with moderately elevated volatility",
			MarketDrawdown:       0.15,
			VolatilityMultiplier: 1.3,
			PriceShocks: map[lending.AssetSymbol]float64{
				lending.AssetBTC: 0.88,
				lending.AssetETH: 0.85,
				lending.AssetSOL: 0.80,
			},
			PDMultiplier:       1.2,
			LGDMultiplier:      1.1,
			CopulaDoF:          10,
			DefaultCorrelation: 0.25,
			SlippageMultiplier: 1.2,
			CureProbability:    0.08,
		},
		{
			ID:                   "CRYPTO_WINTER",
			Name:                 "Crypto Winter",
			Description:          "Prolonged bear market, 2022-style drawdown with correlation convergence",
			MarketDrawdown:       0.55,
			VolatilityMultiplier: 1.8,
			PriceShocks: map[lending.AssetSymbol]float64{
				lending.AssetBTC: 0.45,
				lending.AssetETH: 0.38,
				lending.AssetSOL: 0.25,
			},
			CorrelationOverrides: map[[2]lending.AssetSymbol]float64{
				{lending.AssetBTC, lending.AssetETH}: 0.92,
				{lending.AssetBTC, lending.AssetSOL}: 0.88,
				{lending.AssetETH, lending.AssetSOL}: 0.90,
			},
			PDMultiplier:       2.5,
			LGDMultiplier:      1.4,
			CopulaDoF:          5,
			DefaultCorrelation: 0.45,
			SlippageMultiplier: 1.8,
			CureProbability:    0.04,
		},
		{
			ID:                   "FLASH_CRASH",
			Name:                 "Flash Crash",
			Description:          "Sudden intraday crash with liquidity evaporation",
			MarketDrawdown:       0.30,
			VolatilityMultiplier: 2.5,
			PriceShocks: map[lending.AssetSymbol]float64{
				lending.AssetBTC: 0.75,
				lending.AssetETH: 0.70,
				lending.AssetSOL: 0.60,
			},
			PDMultiplier:       1.6,
			LGDMultiplier:      1.5,
			CopulaDoF:          4,
			DefaultCorrelation: 0.50,
			SlippageMultiplier: 2.5,
			CureProbability:    0.15,
		},
		{
			ID:                   "STABLECOIN_DEPEG",
			Name:                 "Stablecoin Depeg",
			Description:          "Funding-market contagion from a major stablecoin losing its peg",
			MarketDrawdown:       0.40,
			VolatilityMultiplier: 2.0,
			PriceShocks: map[lending.AssetSymbol]float64{
				lending.AssetBTC: 0.70,
				lending.AssetETH: 0.60,
				lending.AssetSOL: 0.45,
			},
			CorrelationOverrides: map[[2]lending.AssetSymbol]float64{
				{lending.AssetBTC, lending.AssetETH}: 0.90,
				{lending.AssetBTC, lending.AssetSOL}: 0.85,
				{lending.AssetETH, lending.AssetSOL}: 0.88,
			},
			PDMultiplier:       2.2,
			LGDMultiplier:      1.6,
			CopulaDoF:          4,
			DefaultCorrelation: 0.55,
			SlippageMultiplier: 2.2,
			CureProbability:    0.05,
		},
		{
			ID:                   "BLACK_THURSDAY",
			Name:                 "Black Thursday",
			Description:          "March-2020-style cascade: 40-50% single-day crash, all correlations to one",
			MarketDrawdown:       0.50,
			VolatilityMultiplier: 3.0,
			PriceShocks: map[lending.AssetSymbol]float64{
				lending.AssetBTC: 0.55,
				lending.AssetETH: 0.50,
				lending.AssetSOL: 0.40,
			},
			CorrelationOverrides: map[[2]lending.AssetSymbol]float64{
				{lending.AssetBTC, lending.AssetETH}: 0.97,
				{lending.AssetBTC, lending.AssetSOL}: 0.95,
				{lending.AssetETH, lending.AssetSOL}: 0.96,
			},
			PDMultiplier:       3.0,
			LGDMultiplier:      1.8,
			CopulaDoF:          3,
			DefaultCorrelation: 0.65,
			SlippageMultiplier: 3.0,
			CureProbability:    0.02,
		},
	}
}
