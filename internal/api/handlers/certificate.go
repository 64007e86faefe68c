package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/docsign/internal/api/middleware"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/database/models"
	"github.com/robcowart/docsign/internal/service"
	"go.uber.org/zap"
)

// CertificateIssuer mints new PKCS#12 containers.
type CertificateIssuer interface {
	Issue(ctx context.Context, subject dscrypto.SubjectInfo, passphrase string, validityDays int) (*service.IssuedBundle, error)
}

// CertificateStore is the certificate persistence the handlers use.
type CertificateStore interface {
	List(ctx context.Context, ownerID string) ([]*models.CertificateRecord, error)
	Get(ctx context.Context, id, ownerID string) (*models.CertificateRecord, error)
	Delete(ctx context.Context, id, ownerID string) error
	Bundle(ctx context.Context, id, ownerID string) ([]byte, error)
	Upload(ctx context.Context, ownerID, fileName string, data []byte, passphrase string) (*models.CertificateRecord, error)
	SaveIssued(ctx context.Context, ownerID string, issued *service.IssuedBundle) (*models.CertificateRecord, error)
}

// PassphraseChecker reports whether a passphrase opens a container.
type PassphraseChecker interface {
	Validate(bundle []byte, passphrase string) (bool, error)
}

// CertificateHandler handles certificate operations
type CertificateHandler struct {
	issuer      CertificateIssuer
	store       CertificateStore
	validator   PassphraseChecker
	defaultDays int
	uploadLimit int64
	logger      *zap.Logger
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(issuer CertificateIssuer, store CertificateStore, validator PassphraseChecker, defaultDays int, uploadLimit int64, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{
		issuer:      issuer,
		store:       store,
		validator:   validator,
		defaultDays: defaultDays,
		uploadLimit: uploadLimit,
		logger:      logger,
	}
}

// CertificateResponse is the public view of a stored certificate. It never
// carries the container or the passphrase.
type CertificateResponse struct {
	ID                 string    `json:"id"`
	FileName           string    `json:"file_name"`
	Alias              string    `json:"alias"`
	IssuerCN           string    `json:"issuer_cn"`
	SubjectCN          string    `json:"subject_cn"`
	Organization       string    `json:"organization,omitempty"`
	OrganizationalUnit string    `json:"organizational_unit,omitempty"`
	Locality           string    `json:"locality,omitempty"`
	State              string    `json:"state,omitempty"`
	Country            string    `json:"country,omitempty"`
	Email              string    `json:"email,omitempty"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	Provenance         string    `json:"provenance"`
	CreatedAt          time.Time `json:"created_at"`
}

func newCertificateResponse(rec *models.CertificateRecord) CertificateResponse {
	return CertificateResponse{
		ID:                 rec.ID,
		FileName:           rec.FileName.String,
		Alias:              rec.Alias,
		IssuerCN:           rec.IssuerCN,
		SubjectCN:          rec.SubjectCN,
		Organization:       rec.Organization,
		OrganizationalUnit: rec.OrganizationalUnit,
		Locality:           rec.Locality,
		State:              rec.State,
		Country:            rec.Country,
		Email:              rec.Email,
		SerialNumber:       rec.SerialNumber,
		NotBefore:          rec.NotBefore,
		NotAfter:           rec.NotAfter,
		Provenance:         rec.Provenance,
		CreatedAt:          rec.CreatedAt,
	}
}

// GenerateRequest represents a request to issue a certificate
type GenerateRequest struct {
	CommonName         string `json:"common_name" binding:"required"`
	Organization       string `json:"organization"`
	OrganizationalUnit string `json:"organizational_unit"`
	Locality           string `json:"locality"`
	State              string `json:"state"`
	Country            string `json:"country"`
	Email              string `json:"email"`
	Password           string `json:"password" binding:"required"`
	ValidityDays       *int   `json:"validity_days"`
}

// Generate issues a certificate and returns the PKCS#12 container
// @Summary Generate certificate
// @Description Issue a document signing certificate under the private CA. With store=true the container is also saved for the caller.
// @Accept json
// @Produce application/x-pkcs12
// @Param request body GenerateRequest true "Issuance request"
// @Param store query bool false "Persist the container"
// @Success 200 {file} binary
// @Router /api/v1/certificates/generate [post]
func (h *CertificateHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	days := h.defaultDays
	if req.ValidityDays != nil {
		days = *req.ValidityDays
	}

	store := false
	if v := c.Query("store"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "store must be true or false")
			return
		}
		store = parsed
	}

	issued, err := h.issuer.Issue(c.Request.Context(), dscrypto.SubjectInfo{
		CommonName:         req.CommonName,
		Organization:       req.Organization,
		OrganizationalUnit: req.OrganizationalUnit,
		Locality:           req.Locality,
		State:              req.State,
		Country:            req.Country,
		Email:              req.Email,
	}, req.Password, days)
	if err != nil {
		respondError(c, h.logger, "Failed to issue certificate", err)
		return
	}

	if store {
		rec, err := h.store.SaveIssued(c.Request.Context(), middleware.UserID(c), issued)
		if err != nil {
			respondError(c, h.logger, "Failed to store issued certificate", err)
			return
		}
		c.Header("X-Certificate-ID", rec.ID)
	}

	attachment(c, "application/x-pkcs12", issued.FileName, issued.Data)
}

// Upload stores a user supplied PKCS#12 container
// @Summary Upload certificate
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PKCS#12 container (.p12 or .pfx)"
// @Param password formData string true "Container passphrase"
// @Success 201 {object} CertificateResponse
// @Router /api/v1/certificates/upload [post]
func (h *CertificateHandler) Upload(c *gin.Context) {
	data, fileName, err := readFormFile(c, "file", h.uploadLimit)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	rec, err := h.store.Upload(c.Request.Context(), middleware.UserID(c), fileName, data, c.PostForm("password"))
	if err != nil {
		respondError(c, h.logger, "Failed to upload certificate", err)
		return
	}

	h.logger.Info("Certificate uploaded", zap.String("id", rec.ID), zap.String("file_name", rec.FileName.String))

	c.JSON(http.StatusCreated, newCertificateResponse(rec))
}

// ListCertificates lists the caller's certificates
// @Summary List certificates
// @Produce json
// @Success 200 {array} CertificateResponse
// @Router /api/v1/certificates [get]
func (h *CertificateHandler) ListCertificates(c *gin.Context) {
	records, err := h.store.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to list certificates", err)
		return
	}

	out := make([]CertificateResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newCertificateResponse(rec))
	}
	c.JSON(http.StatusOK, out)
}

// GetCertificate gets a specific certificate
// @Summary Get certificate
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} CertificateResponse
// @Router /api/v1/certificates/{id} [get]
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to get certificate", err)
		return
	}

	c.JSON(http.StatusOK, newCertificateResponse(rec))
}

// DownloadCertificate returns the stored PKCS#12 container
// @Summary Download certificate
// @Produce application/x-pkcs12
// @Param id path string true "Certificate ID"
// @Success 200 {file} binary
// @Router /api/v1/certificates/{id}/download [get]
func (h *CertificateHandler) DownloadCertificate(c *gin.Context) {
	ctx := c.Request.Context()
	id, owner := c.Param("id"), middleware.UserID(c)

	rec, err := h.store.Get(ctx, id, owner)
	if err != nil {
		respondError(c, h.logger, "Failed to get certificate", err)
		return
	}
	data, err := h.store.Bundle(ctx, id, owner)
	if err != nil {
		respondError(c, h.logger, "Failed to read certificate container", err)
		return
	}

	attachment(c, "application/x-pkcs12", rec.FileName.String, data)
}

// ValidatePasswordRequest carries the passphrase to check
type ValidatePasswordRequest struct {
	Password string `json:"password"`
}

// ValidatePassword checks a passphrase against a stored certificate
// @Summary Validate certificate passphrase
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param request body ValidatePasswordRequest true "Passphrase"
// @Success 200 {object} map[string]bool
// @Router /api/v1/certificates/{id}/validate [post]
func (h *CertificateHandler) ValidatePassword(c *gin.Context) {
	var req ValidatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	data, err := h.store.Bundle(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, "Failed to read certificate container", err)
		return
	}

	valid, err := h.validator.Validate(data, req.Password)
	if err != nil {
		respondError(c, h.logger, "Failed to validate passphrase", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// DeleteCertificate deletes a certificate
// @Summary Delete certificate
// @Param id path string true "Certificate ID"
// @Success 204 "No Content"
// @Router /api/v1/certificates/{id} [delete]
func (h *CertificateHandler) DeleteCertificate(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.Delete(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		respondError(c, h.logger, "Failed to delete certificate", err)
		return
	}

	h.logger.Info("Certificate deleted", zap.String("id", id))

	c.Status(http.StatusNoContent)
}
