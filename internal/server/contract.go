package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// GetContract
// GET /api/contracts/:number  (contract number or snowflake id)
func (s *Server) GetContract(c *gin.Context) {
	ctx := c.Request.Context()

	if id, err := snowflake.ParseString(c.Param("number")); err == nil {
		contract, err := s.contractSvc.Get(ctx, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respondData(c, contract)
		return
	}

	contract, err := s.contractSvc.GetByNumber(ctx, c.Param("number"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, contract)
}
