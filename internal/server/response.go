package server

import (
	"errors"
	"net/http"

	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	"github.com/assurline/assurline/internal/formula"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	"github.com/assurline/assurline/internal/reference"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	"github.com/gin-gonic/gin"
)

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

var ErrUnauthorized = errors.New("unauthorized")

type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.code + ": " + e.message }

func newValidationError(code, message string) error {
	return &apiError{status: http.StatusBadRequest, code: code, message: message}
}

func invalidRequestError() error {
	return newValidationError("invalid_request", "request body could not be parsed")
}

// AbortWithError maps domain sentinels onto HTTP statuses. The sentinel text
// doubles as the machine-readable error code.
func AbortWithError(c *gin.Context, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		c.AbortWithStatusJSON(ae.status, gin.H{"error": gin.H{"code": ae.code, "message": ae.message}})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, quotedomain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, quotedomain.ErrQuoteNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, contractdomain.ErrContractNotFound),
		errors.Is(err, tariffdomain.ErrProductNotFound),
		errors.Is(err, tariffdomain.ErrFormulaNotFound):
		status, code = http.StatusNotFound, unwrapCode(err)
	case errors.Is(err, quotedomain.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, quotedomain.ErrExpired):
		status, code = http.StatusGone, "quote_expired"
	case errors.Is(err, tariffdomain.ErrNoActiveGrid),
		errors.Is(err, tariffdomain.ErrNoMatchingRate),
		errors.Is(err, tariffdomain.ErrInvalidCriterion),
		errors.Is(err, formula.ErrInvalidExpression),
		errors.Is(err, contractdomain.ErrMissingCategory):
		status, code = http.StatusUnprocessableEntity, unwrapCode(err)
	case errors.Is(err, paymentdomain.ErrInvalidCallback),
		errors.Is(err, paymentdomain.ErrUnknownAggregator):
		status, code = http.StatusBadRequest, unwrapCode(err)
	case errors.Is(err, paymentdomain.ErrGatewayTimeout):
		status, code = http.StatusGatewayTimeout, "gateway_timeout"
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		status, code = http.StatusBadGateway, "gateway_unavailable"
	case errors.Is(err, reference.ErrReferenceExhausted):
		status, code = http.StatusServiceUnavailable, "reference_exhausted"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// unwrapCode picks the sentinel text out of a wrapped error chain.
func unwrapCode(err error) string {
	for {
		if next := errors.Unwrap(err); next != nil {
			err = next
			continue
		}
		return err.Error()
	}
}
