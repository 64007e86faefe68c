package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/docsign/internal/api/middleware"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/database/models"
	"github.com/robcowart/docsign/internal/document"
	"github.com/robcowart/docsign/internal/service"
	"github.com/robcowart/docsign/internal/signing"
	"github.com/stretchr/testify/mock"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// asUser stands in for AuthMiddleware.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) Issue(ctx context.Context, subject dscrypto.SubjectInfo, passphrase string, validityDays int) (*service.IssuedBundle, error) {
	args := m.Called(ctx, subject, passphrase, validityDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IssuedBundle), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context, ownerID string) ([]*models.CertificateRecord, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CertificateRecord), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, id, ownerID string) (*models.CertificateRecord, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CertificateRecord), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id, ownerID string) error {
	return m.Called(ctx, id, ownerID).Error(0)
}

func (m *MockStore) Bundle(ctx context.Context, id, ownerID string) ([]byte, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStore) Upload(ctx context.Context, ownerID, fileName string, data []byte, passphrase string) (*models.CertificateRecord, error) {
	args := m.Called(ctx, ownerID, fileName, data, passphrase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CertificateRecord), args.Error(1)
}

func (m *MockStore) SaveIssued(ctx context.Context, ownerID string, issued *service.IssuedBundle) (*models.CertificateRecord, error) {
	args := m.Called(ctx, ownerID, issued)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CertificateRecord), args.Error(1)
}

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(bundle []byte, passphrase string) (bool, error) {
	args := m.Called(bundle, passphrase)
	return args.Bool(0), args.Error(1)
}

type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) Sign(ctx context.Context, req signing.SigningRequest) (*signing.SignedDocument, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*signing.SignedDocument), args.Error(1)
}

func (m *MockSigner) Verify(data []byte) ([]document.VerifiedSignature, error) {
	args := m.Called(data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.VerifiedSignature), args.Error(1)
}

type MockRoot struct {
	mock.Mock
}

func (m *MockRoot) CertificatePEM() ([]byte, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
