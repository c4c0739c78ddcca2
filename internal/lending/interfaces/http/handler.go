// Package http 贷款组合服务接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/creditrisk/internal/lending/application"
	"github.com/wyfcoding/creditrisk/internal/lending/domain"
)

type Handler struct {
	service *application.PortfolioService
}

func NewHandler(service *application.PortfolioService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/portfolios")
	{
		g.POST("", h.CreatePortfolio)
		g.GET("", h.ListPortfolios)
		g.GET("/:id", h.GetPortfolio)
		g.POST("/:id/loans", h.AddLoan)
		g.PUT("/:id/loans/:loanId", h.ReplaceLoan)
		g.DELETE("/:id/loans/:loanId", h.RemoveLoan)
		g.POST("/:id/metrics", h.PortfolioMetrics)
		g.POST("/:id/loans/:loanId/metrics", h.LoanMetrics)
	}
	r.GET("/pd-curve", h.PDCurve)
}

type CreatePortfolioReq struct {
	Name        string `json:"name" binding:"required"`
	RiskCapital string `json:"risk_capital" binding:"required"`
}

func (h *Handler) CreatePortfolio(c *gin.Context) {
	var req CreatePortfolioReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.CreatePortfolio(c.Request.Context(), application.CreatePortfolioCmd{
		Name:        req.Name,
		RiskCapital: req.RiskCapital,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"portfolio_id": id})
}

func (h *Handler) ListPortfolios(c *gin.Context) {
	portfolios, err := h.service.ListPortfolios(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	portfolio, err := h.service.GetPortfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

type LoanReq struct {
	Borrower   string  `json:"borrower" binding:"required"`
	Rating     string  `json:"rating" binding:"required"`
	Principal  string  `json:"principal" binding:"required"`
	AnnualRate string  `json:"annual_rate" binding:"required"`
	TenorDays  int     `json:"tenor_days" binding:"required,gt=0"`
	RollDate   string  `json:"roll_date"`
	Asset      string  `json:"asset" binding:"required"`
	Quantity   string  `json:"quantity" binding:"required"`
	Leverage   float64 `json:"leverage" binding:"gte=0"`
}

func (r LoanReq) toCmd(portfolioID, loanID string) application.LoanCmd {
	return application.LoanCmd{
		PortfolioID: portfolioID,
		LoanID:      loanID,
		Borrower:    r.Borrower,
		Rating:      r.Rating,
		Principal:   r.Principal,
		AnnualRate:  r.AnnualRate,
		TenorDays:   r.TenorDays,
		RollDate:    r.RollDate,
		Asset:       r.Asset,
		Quantity:    r.Quantity,
		Leverage:    r.Leverage,
	}
}

func (h *Handler) AddLoan(c *gin.Context) {
	var req LoanReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loanID, err := h.service.AddLoan(c.Request.Context(), req.toCmd(c.Param("id"), ""))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"loan_id": loanID})
}

func (h *Handler) ReplaceLoan(c *gin.Context) {
	var req LoanReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.ReplaceLoan(c.Request.Context(), req.toCmd(c.Param("id"), c.Param("loanId"))); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}

func (h *Handler) RemoveLoan(c *gin.Context) {
	if err := h.service.RemoveLoan(c.Request.Context(), c.Param("id"), c.Param("loanId")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type MetricsReq struct {
	Prices map[string]string `json:"prices" binding:"required"`
}

func (h *Handler) PortfolioMetrics(c *gin.Context) {
	var req MetricsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.PortfolioMetrics(c.Request.Context(), c.Param("id"), req.Prices)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) LoanMetrics(c *gin.Context) {
	var req MetricsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.LoanMetrics(c.Request.Context(), c.Param("id"), c.Param("loanId"), req.Prices)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

type PDCurveReq struct {
	Rating         string  `form:"rating" binding:"required"`
	MarketDrawdown float64 `form:"market_drawdown"`
	Leverage       float64 `form:"leverage"`
}

func (h *Handler) PDCurve(c *gin.Context) {
	var req PDCurveReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	curve, err := h.service.PDCurve(req.Rating, req.MarketDrawdown, req.Leverage, nil)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, curve)
}

// statusFor 把领域哨兵错误映射到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound), errors.Is(err, domain.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateLoanID),
		errors.Is(err, domain.ErrUnknownAsset),
		errors.Is(err, domain.ErrUnknownRating),
		errors.Is(err, domain.ErrInvalidPrincipal),
		errors.Is(err, domain.ErrNegativeQuantity),
		errors.Is(err, domain.ErrNonFinitePrice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
