package server

import (
	"github.com/gin-gonic/gin"
)

// GetPayment
// GET /api/payments/:reference
func (s *Server) GetPayment(c *gin.Context) {
	payment, err := s.checkoutSvc.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, payment)
}
