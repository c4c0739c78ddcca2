// Package application 贷款组合的用例逻辑与 DTO
package application

import (
	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
)

// CreatePortfolioCmd 创建组合命令
type CreatePortfolioCmd struct {
	Name        string
	RiskCapital string
}

// LoanCmd 新增/替换贷款命令；替换时 LoanID 必填
type LoanCmd struct {
	PortfolioID string
	LoanID      string
	Borrower    string
	Rating      string
	Principal   string
	AnnualRate  string
	TenorDays   int
	RollDate    string // RFC3339，可为空
	Asset       string
	Quantity    string
	Leverage    float64
}

// PriceInput 请求携带的现价快照，asset → USD 价格字符串
type PriceInput map[string]string

// LoanMetricsDTO 单笔贷款指标视图
type LoanMetricsDTO struct {
	LoanID          string  `json:"loan_id"`
	Borrower        string  `json:"borrower"`
	Rating          string  `json:"rating"`
	Asset           string  `json:"asset"`
	Principal       string  `json:"principal"`
	CollateralValue string  `json:"collateral_value"`
	LTV             float64 `json:"ltv"`
	MarginState     string  `json:"margin_state"`
	StressedPD      float64 `json:"stressed_pd"`
	LGD             float64 `json:"lgd"`
	ExpectedLoss    string  `json:"expected_loss"`
	DailyInterest   string  `json:"daily_interest"`
	WarningProb     float64 `json:"warning_prob"`
	MarginCallProb  float64 `json:"margin_call_prob"`
	LiquidationProb float64 `json:"liquidation_prob"`
}

// PortfolioMetricsDTO 组合指标视图
type PortfolioMetricsDTO struct {
	PortfolioID       string             `json:"portfolio_id"`
	TotalExposure     string             `json:"total_exposure"`
	TotalCollateral   string             `json:"total_collateral"`
	AggregateLTV      float64            `json:"aggregate_ltv"`
	TotalExpectedLoss string             `json:"total_expected_loss"`
	DailyRevenue      string             `json:"daily_revenue"`
	Concentration     map[string]float64 `json:"concentration"`
	HHI               float64            `json:"hhi"`
	SharpeRatio       float64            `json:"sharpe_ratio"`
	SortinoRatio      float64            `json:"sortino_ratio"`
	LoanCount         int                `json:"loan_count"`
	Loans             []LoanMetricsDTO   `json:"loans"`
}

// PDCurveDTO PD 期限结构视图
type PDCurveDTO struct {
	Rating string                 `json:"rating"`
	Points []lending.PDCurvePoint `json:"points"`
}

func toLoanMetricsDTO(loan lending.Loan, m lending.LoanMetrics) LoanMetricsDTO {
	return LoanMetricsDTO{
		LoanID:          m.LoanID,
		Borrower:        loan.Borrower,
		Rating:          string(loan.Rating),
		Asset:           string(loan.Collateral.Asset),
		Principal:       loan.Principal.String(),
		CollateralValue: m.CollateralValue.String(),
		LTV:             m.LTV,
		MarginState:     string(m.MarginState),
		StressedPD:      m.StressedPD,
		LGD:             m.LGD,
		ExpectedLoss:    m.ExpectedLoss.String(),
		DailyInterest:   m.DailyInterest.String(),
		WarningProb:     m.WarningProb,
		MarginCallProb:  m.MarginCallProb,
		LiquidationProb: m.LiquidationProb,
	}
}
