package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/universalswapper/relayer"
	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/permit2"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Phase   string `json:"phase,omitempty"`
	SwapID  string `json:"swapId,omitempty"`
	TxHash  string `json:"txHash,omitempty"`
}

func writeError(c *gin.Context, err error) {
	body := errorBody{Error: relayer.ErrorCode(err), Message: err.Error()}

	var swapErr *relayer.SwapError
	if errors.As(err, &swapErr) {
		body.Phase = string(swapErr.Phase)
		body.SwapID = swapErr.ID
	}
	var reverted *evm.TransactionRevertedError
	if errors.As(err, &reverted) {
		body.TxHash = reverted.TxHash
	}
	c.JSON(statusFor(err), body)
}

func statusFor(err error) int {
	var (
		reqErr     *relayer.RequestError
		abortErr   *relayer.AbortedError
		amountErr  *fees.InsufficientAmountError
		quotingErr *fees.UnsupportedQuotingMethodError
		nonceErr   *permit2.NonceExhaustionError
		reverted   *evm.TransactionRevertedError
		rpcErr     *evm.NodeRPCError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &quotingErr):
		return http.StatusBadRequest
	case errors.As(err, &abortErr):
		return http.StatusForbidden
	case errors.Is(err, relayer.ErrApprovalRequired):
		return http.StatusPreconditionFailed
	case errors.As(err, &amountErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nonceErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &reverted), errors.As(err, &rpcErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
