package server

import (
	"time"

	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createQuoteRequest struct {
	Product        string                    `json:"product" binding:"required"`
	Criteria       map[string]any            `json:"criteria" binding:"required"`
	Insured        *quotedomain.InsuredParty `json:"insured"`
	EvaluationDate string                    `json:"evaluation_date,omitempty"`
}

// CreateQuote
// POST /api/quotes
func (s *Server) CreateQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	productID, err := snowflake.ParseString(req.Product)
	if err != nil {
		AbortWithError(c, newValidationError("invalid_product", "product must be a valid id"))
		return
	}

	input := quotedomain.CreateQuoteInput{
		ProductID: productID,
		Criteria:  req.Criteria,
		Insured:   req.Insured,
	}
	if req.EvaluationDate != "" {
		date, err := time.Parse("2006-01-02", req.EvaluationDate)
		if err != nil {
			AbortWithError(c, newValidationError("invalid_evaluation_date", "evaluation_date must be YYYY-MM-DD"))
			return
		}
		input.EvaluationDate = date
	}

	quote, err := s.quoteSvc.Create(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, quote)
}

// GetQuote
// GET /api/quotes/:id  (snowflake id or quote reference)
func (s *Server) GetQuote(c *gin.Context) {
	ctx := c.Request.Context()

	if id, err := snowflake.ParseString(c.Param("id")); err == nil {
		quote, err := s.quoteSvc.Get(ctx, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respondData(c, quote)
		return
	}

	quote, err := s.quoteSvc.GetByReference(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, quote)
}

// SaveQuote
// POST /api/quotes/:id/save
func (s *Server) SaveQuote(c *gin.Context) {
	quoteID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID := s.userIDFromContext(c)
	if userID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	quote, err := s.quoteSvc.Save(c.Request.Context(), quoteID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, quote)
}

type checkoutQuoteRequest struct {
	Aggregator string `json:"aggregator" binding:"required"`
	Method     string `json:"method,omitempty"`
}

// CheckoutQuote
// POST /api/quotes/:id/checkout
func (s *Server) CheckoutQuote(c *gin.Context) {
	quoteID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	var req checkoutQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.checkoutSvc.InitiateCheckout(c.Request.Context(), paymentdomain.CheckoutInput{
		QuoteID:    quoteID,
		Aggregator: req.Aggregator,
		Method:     req.Method,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

// DeleteQuote
// DELETE /api/quotes/:id
func (s *Server) DeleteQuote(c *gin.Context) {
	quoteID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID := s.userIDFromContext(c)
	if userID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.quoteSvc.Delete(c.Request.Context(), quoteID, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"deleted": true})
}

// userIDFromContext reads the caller identity set by the edge gateway.
func (s *Server) userIDFromContext(c *gin.Context) snowflake.ID {
	id, err := snowflake.ParseString(c.GetHeader("X-User-ID"))
	if err != nil {
		return 0
	}
	return id
}
