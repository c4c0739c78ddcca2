// Package mysql 贷款组合 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/creditrisk/internal/lending/domain"
	"github.com/wyfcoding/creditrisk/pkg/db"
)

// PortfolioModel 组合持久化模型
type PortfolioModel struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	PortfolioID string          `gorm:"uniqueIndex;size:64;not null"`
	Name        string          `gorm:"size:128"`
	RiskCapital decimal.Decimal `gorm:"type:decimal(32,8);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (PortfolioModel) TableName() string { return "portfolios" }

// LoanModel 贷款持久化模型，随组合整体重写
type LoanModel struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement"`
	PortfolioID        string          `gorm:"index;size:64;not null"`
	LoanID             string          `gorm:"uniqueIndex;size:64;not null"`
	Borrower           string          `gorm:"size:128"`
	Rating             string          `gorm:"size:8;not null"`
	Principal          decimal.Decimal `gorm:"type:decimal(32,8);not null"`
	AnnualRate         decimal.Decimal `gorm:"type:decimal(16,8);not null"`
	TenorDays          int             `gorm:"not null"`
	RollDate           time.Time
	CollateralAsset    string          `gorm:"size:16;not null"`
	CollateralQuantity decimal.Decimal `gorm:"type:decimal(32,12);not null"`
	Leverage           float64         `gorm:"not null"`
	OriginatedAt       time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (LoanModel) TableName() string { return "loans" }

type PortfolioRepositoryImpl struct {
	db *db.DB
}

func NewPortfolioRepository(database *db.DB) domain.PortfolioRepository {
	return &PortfolioRepositoryImpl{db: database}
}

// AutoMigrate 建表
func AutoMigrate(database *db.DB) error {
	return database.DB.AutoMigrate(&PortfolioModel{}, &LoanModel{})
}

// Save 保存组合快照：组合行 upsert，贷款行整体删除后重写
// 贷款在领域内是不可变值对象，整体重写比逐行 diff 更简单且不会漂移
func (r *PortfolioRepositoryImpl) Save(ctx context.Context, portfolio *domain.Portfolio) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		var existing PortfolioModel
		err := tx.Where("portfolio_id = ?", portfolio.PortfolioID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = PortfolioModel{PortfolioID: portfolio.PortfolioID}
		case err != nil:
			return err
		}

		existing.Name = portfolio.Name
		existing.RiskCapital = portfolio.RiskCapital
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}

		if err := tx.Where("portfolio_id = ?", portfolio.PortfolioID).Delete(&LoanModel{}).Error; err != nil {
			return err
		}
		for _, loan := range portfolio.Loans {
			row := toLoanModel(portfolio.PortfolioID, loan)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PortfolioRepositoryImpl) GetByID(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	var row PortfolioModel
	err := r.db.DB.WithContext(ctx).Where("portfolio_id = ?", portfolioID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, err
	}

	var loanRows []LoanModel
	if err := r.db.DB.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("id ASC").
		Find(&loanRows).Error; err != nil {
		return nil, err
	}

	return toDomainPortfolio(row, loanRows)
}

func (r *PortfolioRepositoryImpl) List(ctx context.Context) ([]*domain.Portfolio, error) {
	var rows []PortfolioModel
	if err := r.db.DB.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*domain.Portfolio, 0, len(rows))
	for _, row := range rows {
		var loanRows []LoanModel
		if err := r.db.DB.WithContext(ctx).
			Where("portfolio_id = ?", row.PortfolioID).
			Order("id ASC").
			Find(&loanRows).Error; err != nil {
			return nil, err
		}
		p, err := toDomainPortfolio(row, loanRows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PortfolioRepositoryImpl) Delete(ctx context.Context, portfolioID string) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("portfolio_id = ?", portfolioID).Delete(&LoanModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("portfolio_id = ?", portfolioID).Delete(&PortfolioModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrPortfolioNotFound
		}
		return nil
	})
}

func toLoanModel(portfolioID string, loan domain.Loan) LoanModel {
	return LoanModel{
		PortfolioID:        portfolioID,
		LoanID:             loan.LoanID,
		Borrower:           loan.Borrower,
		Rating:             string(loan.Rating),
		Principal:          loan.Principal,
		AnnualRate:         loan.AnnualRate,
		TenorDays:          loan.TenorDays,
		RollDate:           loan.RollDate,
		CollateralAsset:    string(loan.Collateral.Asset),
		CollateralQuantity: loan.Collateral.Quantity,
		Leverage:           loan.Leverage,
		OriginatedAt:       loan.OriginatedAt,
	}
}

func toDomainPortfolio(row PortfolioModel, loanRows []LoanModel) (*domain.Portfolio, error) {
	portfolio, err := domain.NewPortfolio(row.PortfolioID, row.Name, row.RiskCapital)
	if err != nil {
		return nil, err
	}
	for _, lr := range loanRows {
		collateral, err := domain.NewCollateralPosition(domain.AssetSymbol(lr.CollateralAsset), lr.CollateralQuantity)
		if err != nil {
			return nil, err
		}
		loan, err := domain.NewLoan(
			lr.LoanID,
			lr.Borrower,
			domain.CreditRating(lr.Rating),
			lr.Principal,
			lr.AnnualRate,
			lr.TenorDays,
			lr.RollDate,
			collateral,
			lr.Leverage,
		)
		if err != nil {
			return nil, err
		}
		// 构造函数会盖掉起始时间，恢复持久化的原值
		loan.OriginatedAt = lr.OriginatedAt
		if err := portfolio.AddLoan(loan); err != nil {
			return nil, err
		}
	}
	return portfolio, nil
}
