package ledger

import (
	"context"

	"github.com/ruteri/accesskeys-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the interfaces.Registry interface
type MockRegistry struct {
	mock.Mock
}

var _ interfaces.Registry = (*MockRegistry)(nil)

// Initialize mocks the Initialize method
func (m *MockRegistry) Initialize(ctx context.Context, admin interfaces.Address) error {
	args := m.Called(ctx, admin)
	return args.Error(0)
}

// Admin mocks the Admin method
func (m *MockRegistry) Admin(ctx context.Context) (interfaces.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.Address), args.Error(1)
}

// Mint mocks the Mint method
func (m *MockRegistry) Mint(ctx context.Context, proof interfaces.Proof, req interfaces.MintRequest) (interfaces.CredentialID, error) {
	args := m.Called(ctx, proof, req)
	return args.Get(0).(interfaces.CredentialID), args.Error(1)
}

// Transfer mocks the Transfer method
func (m *MockRegistry) Transfer(ctx context.Context, proof interfaces.Proof, id interfaces.CredentialID, to interfaces.Address) error {
	args := m.Called(ctx, proof, id, to)
	return args.Error(0)
}

// Freeze mocks the Freeze method
func (m *MockRegistry) Freeze(ctx context.Context, proof interfaces.Proof, id interfaces.CredentialID, freeze bool) error {
	args := m.Called(ctx, proof, id, freeze)
	return args.Error(0)
}

// FreezeAccount mocks the FreezeAccount method
func (m *MockRegistry) FreezeAccount(ctx context.Context, proof interfaces.Proof, account interfaces.Address, freeze bool) error {
	args := m.Called(ctx, proof, account, freeze)
	return args.Error(0)
}

// IsAccountFrozen mocks the IsAccountFrozen method
func (m *MockRegistry) IsAccountFrozen(ctx context.Context, account interfaces.Address) (bool, error) {
	args := m.Called(ctx, account)
	return args.Bool(0), args.Error(1)
}

// VerifyAccess mocks the VerifyAccess method
func (m *MockRegistry) VerifyAccess(ctx context.Context, user interfaces.Address, id interfaces.CredentialID) (bool, error) {
	args := m.Called(ctx, user, id)
	return args.Bool(0), args.Error(1)
}

// SweepExpired mocks the SweepExpired method
func (m *MockRegistry) SweepExpired(ctx context.Context, principal interfaces.Address) (bool, error) {
	args := m.Called(ctx, principal)
	return args.Bool(0), args.Error(1)
}

// ExpireCredential mocks the ExpireCredential method
func (m *MockRegistry) ExpireCredential(ctx context.Context, id interfaces.CredentialID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// GetCredential mocks the GetCredential method
func (m *MockRegistry) GetCredential(ctx context.Context, id interfaces.CredentialID) (*interfaces.Credential, error) {
	args := m.Called(ctx, id)
	cred, _ := args.Get(0).(*interfaces.Credential)
	return cred, args.Error(1)
}

// GetBalance mocks the GetBalance method
func (m *MockRegistry) GetBalance(ctx context.Context, principal interfaces.Address) (interfaces.Balances, error) {
	args := m.Called(ctx, principal)
	return args.Get(0).(interfaces.Balances), args.Error(1)
}

// GetUserCredentials mocks the GetUserCredentials method
func (m *MockRegistry) GetUserCredentials(ctx context.Context, principal interfaces.Address) ([]interfaces.Credential, error) {
	args := m.Called(ctx, principal)
	creds, _ := args.Get(0).([]interfaces.Credential)
	return creds, args.Error(1)
}

// SetContentMetadata mocks the SetContentMetadata method
func (m *MockRegistry) SetContentMetadata(ctx context.Context, proof interfaces.Proof, meta interfaces.ContentMetadata) error {
	args := m.Called(ctx, proof, meta)
	return args.Error(0)
}

// GetContentMetadata mocks the GetContentMetadata method
func (m *MockRegistry) GetContentMetadata(ctx context.Context, ref string) (*interfaces.ContentMetadata, error) {
	args := m.Called(ctx, ref)
	meta, _ := args.Get(0).(*interfaces.ContentMetadata)
	return meta, args.Error(1)
}

// Nonce mocks the Nonce method
func (m *MockRegistry) Nonce(ctx context.Context, principal interfaces.Address) (uint64, error) {
	args := m.Called(ctx, principal)
	return args.Get(0).(uint64), args.Error(1)
}
