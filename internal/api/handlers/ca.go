package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RootCertificateSource exposes the CA root certificate.
type RootCertificateSource interface {
	CertificatePEM() ([]byte, error)
}

// CAHandler serves the health check and the public CA certificate
type CAHandler struct {
	root   RootCertificateSource
	logger *zap.Logger
}

// NewCAHandler creates a new CA handler
func NewCAHandler(root RootCertificateSource, logger *zap.Logger) *CAHandler {
	return &CAHandler{
		root:   root,
		logger: logger,
	}
}

// Health reports liveness
// @Summary Health check
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func (h *CAHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RootCertificate downloads the CA root certificate
// @Summary Download CA certificate
// @Description Download the PEM encoded root certificate used to verify signed documents
// @Produce application/x-pem-file
// @Success 200 {file} binary
// @Router /api/v1/ca/certificate [get]
func (h *CAHandler) RootCertificate(c *gin.Context) {
	pemBytes, err := h.root.CertificatePEM()
	if err != nil {
		respondError(c, h.logger, "Failed to read CA certificate", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="ca.crt"`)
	c.Data(http.StatusOK, "application/x-pem-file", pemBytes)
}
