package domain

import "context"

// MarginCallEvent 贷款触及追加保证金或强平阈值时发布
type MarginCallEvent struct {
	PortfolioID string      `json:"portfolio_id"`
	LoanID      string      `json:"loan_id"`
	Borrower    string      `json:"borrower"`
	Asset       AssetSymbol `json:"asset"`
	LTV         float64     `json:"ltv"`
	MarginState MarginState `json:"margin_state"`
	OccurredAt  int64       `json:"occurred_at"`
}

// EventPublisher 贷款域事件发布接口
type EventPublisher interface {
	PublishMarginCall(ctx context.Context, event MarginCallEvent) error
}
