// Package application 蒙特卡洛模拟的用例逻辑与 DTO
package application

import (
	scenario "github.com/wyfcoding/creditrisk/internal/scenario/domain"
	simulation "github.com/wyfcoding/creditrisk/internal/simulation/domain"
)

// SimulateCmd 组合损失模拟命令
type SimulateCmd struct {
	PortfolioID string
	// 目录场景 ID；与 Custom 二选一，Custom 优先
	ScenarioID string
	// 调用方自带的临时场景
	Custom *scenario.StressScenario
	// asset → USD 价格字符串
	Prices map[string]string
	// 模拟期（天），默认 30
	HorizonDays int
	// 模拟次数，0 取服务默认
	Trials int
	// 随机种子，0 表示随机
	Seed uint64
}

// SimulationResultDTO 模拟结果视图
type SimulationResultDTO struct {
	SimulationID      string             `json:"simulation_id"`
	PortfolioID       string             `json:"portfolio_id"`
	ScenarioID        string             `json:"scenario_id"`
	Trials            int                `json:"trials"`
	HorizonDays       int                `json:"horizon_days"`
	MeanLoss          string             `json:"mean_loss"`
	MedianLoss        string             `json:"median_loss"`
	VaR95             string             `json:"var_95"`
	VaR99             string             `json:"var_99"`
	CVaR95            string             `json:"cvar_95"`
	CVaR99            string             `json:"cvar_99"`
	MaxLoss           string             `json:"max_loss"`
	ProbabilityOfLoss float64            `json:"probability_of_loss"`
	DefaultFrequency  map[string]float64 `json:"default_frequency"`
	// 升序损失分布，大分布时供前端抽样绘制
	Distribution []float64 `json:"distribution,omitempty"`
}

// RiskContributionDTO 边际风险贡献视图
type RiskContributionDTO struct {
	LoanID        string  `json:"loan_id"`
	MarginalVaR95 string  `json:"marginal_var_95"`
	ShareOfVaR    float64 `json:"share_of_var"`
}

// FanPathsCmd 扇形图路径命令
type FanPathsCmd struct {
	Asset        string
	CurrentPrice string
	HorizonDays  int
	NumPaths     int
	Seed         uint64
}

// HistoryCmd 合成历史序列命令
type HistoryCmd struct {
	// asset → 起始价格
	StartPrices map[string]string
	// asset → 目标（当前）价格
	TargetPrices map[string]string
	Years        int
	Seed         uint64
}

// StressMetricsDTO 场景压力下的组合指标
type StressMetricsDTO struct {
	PortfolioID        string  `json:"portfolio_id"`
	ScenarioID         string  `json:"scenario_id"`
	TotalExposure      string  `json:"total_exposure"`
	StressedCollateral string  `json:"stressed_collateral"`
	AggregateLTV       float64 `json:"aggregate_ltv"`
	TotalExpectedLoss  string  `json:"total_expected_loss"`
	LoansAtMarginCall  int     `json:"loans_at_margin_call"`
	LoansAtLiquidation int     `json:"loans_at_liquidation"`
}

func toResultDTO(simulationID, portfolioID string, r *simulation.SimulationResult, includeDistribution bool) *SimulationResultDTO {
	dto := &SimulationResultDTO{
		SimulationID:      simulationID,
		PortfolioID:       portfolioID,
		ScenarioID:        r.ScenarioID,
		Trials:            r.Trials,
		HorizonDays:       r.HorizonDays,
		MeanLoss:          r.MeanLoss.String(),
		MedianLoss:        r.MedianLoss.String(),
		VaR95:             r.VaR95.String(),
		VaR99:             r.VaR99.String(),
		CVaR95:            r.CVaR95.String(),
		CVaR99:            r.CVaR99.String(),
		MaxLoss:           r.MaxLoss.String(),
		ProbabilityOfLoss: r.ProbabilityOfLoss,
		DefaultFrequency:  r.DefaultFrequency,
	}
	if includeDistribution {
		dto.Distribution = r.Distribution
	}
	return dto
}
