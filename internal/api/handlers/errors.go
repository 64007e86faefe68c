package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/docsign/internal/apperr"
	"go.uber.org/zap"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:             http.StatusBadRequest,
	apperr.KindInvalidContainerFormat: http.StatusBadRequest,
	apperr.KindMalformedDocument:      http.StatusBadRequest,
	apperr.KindPageOutOfRange:         http.StatusBadRequest,
	apperr.KindInvalidPassphrase:      http.StatusUnauthorized,
	apperr.KindNotFound:               http.StatusNotFound,
	apperr.KindDuplicateName:          http.StatusConflict,
	apperr.KindInvalidTransition:      http.StatusConflict,
	apperr.KindChainInvalid:           http.StatusUnprocessableEntity,
	apperr.KindCAUnavailable:          http.StatusServiceUnavailable,
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error", "code"}. Server side failures are
// logged with their cause; the response only carries the safe message.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	kind := apperr.KindOf(err)
	status := StatusForKind(kind)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn(msg, zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled", "code": string(apperr.KindInternal)})
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.String("code", string(kind)), zap.Error(err))
	} else {
		logger.Debug(msg, zap.String("code", string(kind)), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err), "code": string(kind)})
}

// badRequest reports malformed input that never reached a service.
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.KindValidation)})
}
