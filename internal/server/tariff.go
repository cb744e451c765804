package server

import (
	"encoding/json"

	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// GetProduct
// GET /api/products/:id  (catalog reference)
func (s *Server) GetProduct(c *gin.Context) {
	product, err := s.tariffSvc.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, product)
}

type saveFormulaRequest struct {
	Name       string         `json:"name" binding:"required"`
	Expression string         `json:"expression" binding:"required"`
	Variables  map[string]any `json:"variables"`
}

// SaveFormula
// PUT /api/products/:id/formula
func (s *Server) SaveFormula(c *gin.Context) {
	productID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	var req saveFormulaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var variables []byte
	if req.Variables != nil {
		if variables, err = json.Marshal(req.Variables); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	formula := &tariffdomain.Formula{
		ID:         s.genID.Generate(),
		ProductID:  productID,
		Name:       req.Name,
		Expression: req.Expression,
		Variables:  variables,
		Status:     tariffdomain.FormulaStatusActive,
	}
	if err := s.tariffSvc.SaveFormula(c.Request.Context(), formula); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, formula)
}
