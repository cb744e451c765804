package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlePaymentWebhook
// POST /webhooks/payment/:aggregator
//
// Aggregators differ in how they deliver: some post JSON, some form-encode,
// some put everything in the query string. Query parameters and the body are
// merged into one payload, the body winning on conflicts. A 200 tells the
// aggregator to stop retrying, so it is only sent once the event is applied.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload := map[string]any{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}

	if c.Request.Body != nil {
		var body map[string]any
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err == nil {
			for k, v := range body {
				payload[k] = v
			}
		} else if err := c.Request.ParseForm(); err == nil {
			for key, values := range c.Request.PostForm {
				if len(values) > 0 {
					payload[key] = values[0]
				}
			}
		}
	}

	event, err := s.webhookSvc.HandleCallback(c.Request.Context(), c.Param("aggregator"), payload)
	if err != nil {
		s.log.Warn("payment webhook rejected",
			zap.String("aggregator", c.Param("aggregator")),
			zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": event.Status})
}
