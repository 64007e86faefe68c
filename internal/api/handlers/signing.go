package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/docsign/internal/api/middleware"
	"github.com/robcowart/docsign/internal/document"
	"github.com/robcowart/docsign/internal/signing"
	"go.uber.org/zap"
)

// DocumentSigner signs and verifies PDF documents.
type DocumentSigner interface {
	Sign(ctx context.Context, req signing.SigningRequest) (*signing.SignedDocument, error)
	Verify(data []byte) ([]document.VerifiedSignature, error)
}

// SigningHandler handles document signing and verification
type SigningHandler struct {
	signer      DocumentSigner
	uploadLimit int64
	logger      *zap.Logger
}

// NewSigningHandler creates a new signing handler
func NewSigningHandler(signer DocumentSigner, uploadLimit int64, logger *zap.Logger) *SigningHandler {
	return &SigningHandler{
		signer:      signer,
		uploadLimit: uploadLimit,
		logger:      logger,
	}
}

// SignResponse is the JSON result of a signing request. SignedDocument is
// base64 encoded.
type SignResponse struct {
	SignedDocument []byte            `json:"signed_document"`
	SignerName     string            `json:"signer_name"`
	SignedAt       time.Time         `json:"signed_at"`
	Position       document.Position `json:"position"`
	SerialNumber   string            `json:"serial_number"`
}

// SignDocument signs an uploaded PDF
// @Summary Sign document
// @Description Sign a PDF with a stored (certificate_id) or uploaded (certificate) PKCS#12 container. With format=pdf the signed PDF is returned directly.
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "PDF document"
// @Param certificate_id formData string false "Stored certificate ID"
// @Param certificate formData file false "PKCS#12 container"
// @Param password formData string true "Container passphrase"
// @Param page formData int true "1-based page"
// @Param x formData number true "Horizontal position, percent of page width"
// @Param y formData number true "Vertical position from the top, percent of page height"
// @Param qr formData file false "QR code image"
// @Param display_name formData string false "Name shown in the signature"
// @Param email formData string false "Email shown in the signature"
// @Param organization formData string false "Organization shown in the signature"
// @Success 200 {object} SignResponse
// @Router /api/v1/documents/sign [post]
func (h *SigningHandler) SignDocument(c *gin.Context) {
	doc, _, err := readFormFile(c, "document", h.uploadLimit)
	if err != nil {
		badRequest(c, "document: "+err.Error())
		return
	}

	ref, err := h.certificateRef(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	pos, err := parsePosition(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	qr, _, err := readFormFile(c, "qr", h.uploadLimit)
	if err != nil && !errors.Is(err, errMissingFile) {
		badRequest(c, "qr: "+err.Error())
		return
	}

	signed, err := h.signer.Sign(c.Request.Context(), signing.SigningRequest{
		OwnerID:     middleware.UserID(c),
		Document:    doc,
		Certificate: ref,
		Passphrase:  c.PostForm("password"),
		Position:    pos,
		Visual: signing.Visual{
			QRImage:      qr,
			DisplayName:  c.PostForm("display_name"),
			Email:        c.PostForm("email"),
			Organization: c.PostForm("organization"),
		},
	})
	if err != nil {
		respondError(c, h.logger, "Failed to sign document", err)
		return
	}

	if c.Query("format") == "pdf" {
		attachment(c, "application/pdf", "signed.pdf", signed.Data)
		return
	}

	c.JSON(http.StatusOK, SignResponse{
		SignedDocument: signed.Data,
		SignerName:     signed.SignerName,
		SignedAt:       signed.SignedAt,
		Position:       signed.Position,
		SerialNumber:   signed.SerialNumber,
	})
}

// VerifyDocument reports the signatures embedded in an uploaded PDF
// @Summary Verify document
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "PDF document"
// @Success 200 {object} map[string][]document.VerifiedSignature
// @Router /api/v1/documents/verify [post]
func (h *SigningHandler) VerifyDocument(c *gin.Context) {
	doc, _, err := readFormFile(c, "document", h.uploadLimit)
	if err != nil {
		badRequest(c, "document: "+err.Error())
		return
	}

	sigs, err := h.signer.Verify(doc)
	if err != nil {
		respondError(c, h.logger, "Failed to verify document", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"signatures": sigs})
}

func (h *SigningHandler) certificateRef(c *gin.Context) (signing.CertificateRef, error) {
	inline, _, err := readFormFile(c, "certificate", h.uploadLimit)
	switch {
	case err == nil:
		return signing.Inline(inline), nil
	case !errors.Is(err, errMissingFile):
		return signing.CertificateRef{}, errors.New("certificate: " + err.Error())
	}

	id := strings.TrimSpace(c.PostForm("certificate_id"))
	if id == "" {
		return signing.CertificateRef{}, errors.New("certificate_id or certificate is required")
	}
	return signing.ByID(id), nil
}

func parsePosition(c *gin.Context) (document.Position, error) {
	page, err := strconv.Atoi(c.PostForm("page"))
	if err != nil {
		return document.Position{}, errors.New("page must be an integer")
	}
	x, err := strconv.ParseFloat(c.PostForm("x"), 64)
	if err != nil {
		return document.Position{}, errors.New("x must be a number")
	}
	y, err := strconv.ParseFloat(c.PostForm("y"), 64)
	if err != nil {
		return document.Position{}, errors.New("y must be a number")
	}
	return document.Position{Page: page, XPercent: x, YPercent: y}, nil
}
