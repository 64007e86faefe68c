package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robcowart/docsign/internal/apperr"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCAHandler_Health(t *testing.T) {
	router := setupTestRouter()
	router.GET("/api/v1/health", NewCAHandler(new(MockRoot), zap.NewNop()).Health)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCAHandler_RootCertificate(t *testing.T) {
	t.Run("Returns PEM", func(t *testing.T) {
		root := new(MockRoot)
		root.On("CertificatePEM").Return([]byte("-----BEGIN CERTIFICATE-----\n"), nil)

		router := setupTestRouter()
		router.GET("/api/v1/ca/certificate", NewCAHandler(root, zap.NewNop()).RootCertificate)

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/ca/certificate", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/x-pem-file", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "ca.crt")
		assert.Contains(t, w.Body.String(), "BEGIN CERTIFICATE")
		root.AssertExpectations(t)
	})

	t.Run("CA unavailable", func(t *testing.T) {
		root := new(MockRoot)
		root.On("CertificatePEM").Return(nil, apperr.New(apperr.KindCAUnavailable, "ca.Root", "CA root is not loaded"))

		router := setupTestRouter()
		router.GET("/api/v1/ca/certificate", NewCAHandler(root, zap.NewNop()).RootCertificate)

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/ca/certificate", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "ca_unavailable")
	})
}
