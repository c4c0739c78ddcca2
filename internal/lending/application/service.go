package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"

	lending "github.com/wyfcoding/creditrisk/internal/lending/domain"
	"github.com/wyfcoding/creditrisk/pkg/metrics"
)

// PortfolioService 贷款组合应用服务
type PortfolioService struct {
	repo         lending.PortfolioRepository
	universe     *lending.AssetUniverse
	publisher    lending.EventPublisher
	metrics      *metrics.Metrics
	riskFreeRate float64
	logger       *slog.Logger
}

// NewPortfolioService 创建组合应用服务
func NewPortfolioService(
	repo lending.PortfolioRepository,
	universe *lending.AssetUniverse,
	publisher lending.EventPublisher,
	m *metrics.Metrics,
	riskFreeRate float64,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		repo:         repo,
		universe:     universe,
		publisher:    publisher,
		metrics:      m,
		riskFreeRate: riskFreeRate,
		logger:       logger.With("module", "portfolio_service"),
	}
}

// CreatePortfolio 创建组合
func (s *PortfolioService) CreatePortfolio(ctx context.Context, cmd CreatePortfolioCmd) (string, error) {
	capital, err := decimal.NewFromString(cmd.RiskCapital)
	if err != nil {
		return "", fmt.Errorf("invalid risk capital: %w", err)
	}

	portfolioID := fmt.Sprintf("PF-%d", idgen.GenID())
	portfolio, err := lending.NewPortfolio(portfolioID, cmd.Name, capital)
	if err != nil {
		return "", err
	}

	if err := s.repo.Save(ctx, portfolio); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "portfolio created", "portfolio_id", portfolioID)
	return portfolioID, nil
}

// GetPortfolio 查询组合
func (s *PortfolioService) GetPortfolio(ctx context.Context, portfolioID string) (*lending.Portfolio, error) {
	return s.repo.GetByID(ctx, portfolioID)
}

// ListPortfolios 枚举组合
func (s *PortfolioService) ListPortfolios(ctx context.Context) ([]*lending.Portfolio, error) {
	return s.repo.List(ctx)
}

// AddLoan 新增贷款
func (s *PortfolioService) AddLoan(ctx context.Context, cmd LoanCmd) (string, error) {
	portfolio, err := s.repo.GetByID(ctx, cmd.PortfolioID)
	if err != nil {
		return "", err
	}

	loanID := cmd.LoanID
	if loanID == "" {
		loanID = fmt.Sprintf("LOAN-%d", idgen.GenID())
	}

	loan, err := s.buildLoan(loanID, cmd)
	if err != nil {
		return "", err
	}

	if err := portfolio.AddLoan(loan); err != nil {
		return "", err
	}
	if err := s.repo.Save(ctx, portfolio); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "loan added", "portfolio_id", cmd.PortfolioID, "loan_id", loanID)
	return loanID, nil
}

// ReplaceLoan 整体替换贷款（贷款为不可变值，编辑即替换）
func (s *PortfolioService) ReplaceLoan(ctx context.Context, cmd LoanCmd) error {
	if cmd.LoanID == "" {
		return fmt.Errorf("loan id is required for replace")
	}

	portfolio, err := s.repo.GetByID(ctx, cmd.PortfolioID)
	if err != nil {
		return err
	}

	loan, err := s.buildLoan(cmd.LoanID, cmd)
	if err != nil {
		return err
	}

	if err := portfolio.ReplaceLoan(loan); err != nil {
		return err
	}
	return s.repo.Save(ctx, portfolio)
}

// RemoveLoan 删除贷款
func (s *PortfolioService) RemoveLoan(ctx context.Context, portfolioID, loanID string) error {
	portfolio, err := s.repo.GetByID(ctx, portfolioID)
	if err != nil {
		return err
	}
	if err := portfolio.RemoveLoan(loanID); err != nil {
		return err
	}
	return s.repo.Save(ctx, portfolio)
}

// PortfolioMetrics 实时组合指标（无随机性，同步计算）
// 发现贷款触及 MARGIN_CALL / LIQUIDATION 时发布保证金事件
func (s *PortfolioService) PortfolioMetrics(ctx context.Context, portfolioID string, prices PriceInput) (*PortfolioMetricsDTO, error) {
	portfolio, err := s.repo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	priceMap, err := parsePrices(prices)
	if err != nil {
		return nil, err
	}

	pm, err := lending.ComputePortfolioMetrics(portfolio, priceMap, s.universe, s.riskFreeRate, 0)
	if err != nil {
		return nil, err
	}

	dto := &PortfolioMetricsDTO{
		PortfolioID:       portfolio.PortfolioID,
		TotalExposure:     pm.TotalExposure.String(),
		TotalCollateral:   pm.TotalCollateral.String(),
		AggregateLTV:      pm.AggregateLTV,
		TotalExpectedLoss: pm.TotalExpectedLoss.String(),
		DailyRevenue:      pm.DailyRevenue.String(),
		Concentration:     make(map[string]float64, len(pm.Concentration)),
		HHI:               pm.HHI,
		SharpeRatio:       pm.SharpeRatio,
		SortinoRatio:      pm.SortinoRatio,
		LoanCount:         pm.LoanCount,
	}
	for sym, share := range pm.Concentration {
		dto.Concentration[string(sym)] = share
	}

	marginBreaches := 0
	for _, loan := range portfolio.Loans {
		lm, err := lending.ComputeLoanMetrics(loan, priceMap[loan.Collateral.Asset], s.universe, 0)
		if err != nil {
			return nil, err
		}
		dto.Loans = append(dto.Loans, toLoanMetricsDTO(loan, lm))

		if lm.MarginState == lending.MarginCall || lm.MarginState == lending.MarginLiquidation {
			marginBreaches++
			event := lending.MarginCallEvent{
				PortfolioID: portfolio.PortfolioID,
				LoanID:      loan.LoanID,
				Borrower:    loan.Borrower,
				Asset:       loan.Collateral.Asset,
				LTV:         lm.LTV,
				MarginState: lm.MarginState,
				OccurredAt:  time.Now().Unix(),
			}
			if err := s.publisher.PublishMarginCall(ctx, event); err != nil {
				// 事件发布失败不阻断指标返回
				s.logger.WarnContext(ctx, "failed to publish margin call event",
					"loan_id", loan.LoanID, "error", err)
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SetPortfolioState(len(portfolio.Loans), marginBreaches)
	}

	return dto, nil
}

// LoanMetrics 单笔贷款实时指标
func (s *PortfolioService) LoanMetrics(ctx context.Context, portfolioID, loanID string, prices PriceInput) (*LoanMetricsDTO, error) {
	portfolio, err := s.repo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	loan, err := portfolio.FindLoan(loanID)
	if err != nil {
		return nil, err
	}

	priceMap, err := parsePrices(prices)
	if err != nil {
		return nil, err
	}
	price, ok := priceMap[loan.Collateral.Asset]
	if !ok {
		return nil, lending.ErrUnknownAsset
	}

	lm, err := lending.ComputeLoanMetrics(loan, price, s.universe, 0)
	if err != nil {
		return nil, err
	}
	dto := toLoanMetricsDTO(loan, lm)
	return &dto, nil
}

// PDCurve 给定评级的 PD 期限结构
func (s *PortfolioService) PDCurve(rating string, marketDrawdown, leverage float64, horizons []int) (*PDCurveDTO, error) {
	if len(horizons) == 0 {
		horizons = []int{7, 30, 90, 180, 365}
	}
	points, err := lending.PDTermStructure(lending.CreditRating(rating), marketDrawdown, leverage, horizons)
	if err != nil {
		return nil, err
	}
	return &PDCurveDTO{Rating: rating, Points: points}, nil
}

func (s *PortfolioService) buildLoan(loanID string, cmd LoanCmd) (lending.Loan, error) {
	principal, err := decimal.NewFromString(cmd.Principal)
	if err != nil {
		return lending.Loan{}, fmt.Errorf("invalid principal: %w", err)
	}
	rate, err := decimal.NewFromString(cmd.AnnualRate)
	if err != nil {
		return lending.Loan{}, fmt.Errorf("invalid annual rate: %w", err)
	}
	quantity, err := decimal.NewFromString(cmd.Quantity)
	if err != nil {
		return lending.Loan{}, fmt.Errorf("invalid collateral quantity: %w", err)
	}

	collateral, err := lending.NewCollateralPosition(lending.AssetSymbol(cmd.Asset), quantity)
	if err != nil {
		return lending.Loan{}, err
	}
	if _, err := s.universe.Policy(collateral.Asset); err != nil {
		return lending.Loan{}, err
	}

	rollDate := time.Time{}
	if cmd.RollDate != "" {
		rollDate, err = time.Parse(time.RFC3339, cmd.RollDate)
		if err != nil {
			return lending.Loan{}, fmt.Errorf("invalid roll date: %w", err)
		}
	}

	return lending.NewLoan(
		loanID,
		cmd.Borrower,
		lending.CreditRating(cmd.Rating),
		principal,
		rate,
		cmd.TenorDays,
		rollDate,
		collateral,
		cmd.Leverage,
	)
}

// parsePrices 把请求携带的价格快照解析为领域 PriceMap
func parsePrices(prices PriceInput) (lending.PriceMap, error) {
	pm := make(lending.PriceMap, len(prices))
	for sym, raw := range prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", sym, err)
		}
		pm[lending.AssetSymbol(sym)] = price
	}
	if err := pm.Validate(); err != nil {
		return nil, err
	}
	return pm, nil
}
