package kms

import (
	"context"

	"github.com/ruteri/kms-identity/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockKeyService mocks the interfaces.KeyService interface
type MockKeyService struct {
	mock.Mock
}

// GetPublicKey mocks the GetPublicKey method
func (m *MockKeyService) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	args := m.Called(ctx, keyID)
	pub, _ := args.Get(0).([]byte)
	return pub, args.Error(1)
}

// Sign mocks the Sign method
func (m *MockKeyService) Sign(ctx context.Context, req interfaces.SignRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	sig, _ := args.Get(0).([]byte)
	return sig, args.Error(1)
}
