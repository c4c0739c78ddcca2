package domain

import "context"

// SimulationCompletedEvent 一次蒙特卡洛模拟完成后发布
type SimulationCompletedEvent struct {
	SimulationID string `json:"simulation_id"`
	PortfolioID  string `json:"portfolio_id"`
	ScenarioID   string `json:"scenario_id"`
	Trials       int    `json:"trials"`
	HorizonDays  int    `json:"horizon_days"`
	VaR95        string `json:"var_95"`
	VaR99        string `json:"var_99"`
	CVaR95       string `json:"cvar_95"`
	MeanLoss     string `json:"mean_loss"`
	DurationMS   int64  `json:"duration_ms"`
	OccurredAt   int64  `json:"occurred_at"`
}

// EventPublisher 模拟域事件发布接口
type EventPublisher interface {
	PublishSimulationCompleted(ctx context.Context, event SimulationCompletedEvent) error
}
