package mysql

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/creditrisk/internal/lending/domain"
)

func roundTripPortfolio(t *testing.T) *domain.Portfolio {
	t.Helper()
	p, err := domain.NewPortfolio("PF-RT", "round trip", decimal.NewFromInt(250000))
	require.NoError(t, err)

	collateral, err := domain.NewCollateralPosition(domain.AssetETH, decimal.RequireFromString("20.5"))
	require.NoError(t, err)
	loan, err := domain.NewLoan(
		"LOAN-RT-1", "acct-7", domain.RatingA,
		decimal.NewFromInt(45000), decimal.RequireFromString("0.125"),
		180, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), collateral, 2.5,
	)
	require.NoError(t, err)
	loan.OriginatedAt = time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)
	require.NoError(t, p.AddLoan(loan))
	return p
}

// 持久化模型来回转换后，贷款必须产出与原值逐项一致的风险指标
func TestLoanModelRoundTripPreservesMetrics(t *testing.T) {
	p := roundTripPortfolio(t)
	universe := domain.DefaultUniverse()
	price := decimal.NewFromInt(3000)

	rows := make([]LoanModel, 0, len(p.Loans))
	for _, loan := range p.Loans {
		rows = append(rows, toLoanModel(p.PortfolioID, loan))
	}
	restored, err := toDomainPortfolio(PortfolioModel{
		PortfolioID: p.PortfolioID,
		Name:        p.Name,
		RiskCapital: p.RiskCapital,
	}, rows)
	require.NoError(t, err)

	assert.Equal(t, p.PortfolioID, restored.PortfolioID)
	assert.True(t, p.RiskCapital.Equal(restored.RiskCapital))
	require.Len(t, restored.Loans, 1)

	want := p.Loans[0]
	got := restored.Loans[0]
	assert.Equal(t, want.LoanID, got.LoanID)
	assert.Equal(t, want.Rating, got.Rating)
	assert.True(t, want.Principal.Equal(got.Principal))
	assert.True(t, want.AnnualRate.Equal(got.AnnualRate))
	assert.True(t, want.Collateral.Quantity.Equal(got.Collateral.Quantity))
	// 构造函数会盖掉起始时间，转换必须恢复持久化原值
	assert.Equal(t, want.OriginatedAt, got.OriginatedAt)

	wantMetrics, err := domain.ComputeLoanMetrics(want, price, universe, 0.2)
	require.NoError(t, err)
	gotMetrics, err := domain.ComputeLoanMetrics(got, price, universe, 0.2)
	require.NoError(t, err)

	assert.Equal(t, wantMetrics.LTV, gotMetrics.LTV)
	assert.Equal(t, wantMetrics.MarginState, gotMetrics.MarginState)
	assert.Equal(t, wantMetrics.StressedPD, gotMetrics.StressedPD)
	assert.Equal(t, wantMetrics.LGD, gotMetrics.LGD)
	assert.True(t, wantMetrics.ExpectedLoss.Equal(gotMetrics.ExpectedLoss))
	assert.True(t, wantMetrics.DailyInterest.Equal(gotMetrics.DailyInterest))
}

func TestToDomainPortfolioRejectsCorruptRow(t *testing.T) {
	row := PortfolioModel{PortfolioID: "PF-BAD", Name: "bad", RiskCapital: decimal.NewFromInt(1000)}
	bad := LoanModel{
		PortfolioID:        "PF-BAD",
		LoanID:             "LOAN-BAD",
		Rating:             "ZZ",
		Principal:          decimal.NewFromInt(1000),
		AnnualRate:         decimal.RequireFromString("0.1"),
		TenorDays:          30,
		CollateralAsset:    "BTC",
		CollateralQuantity: decimal.NewFromInt(1),
		Leverage:           1,
	}
	_, err := toDomainPortfolio(row, []LoanModel{bad})
	assert.ErrorIs(t, err, domain.ErrUnknownRating)
}
