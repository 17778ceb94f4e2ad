package auth

import (
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/datalytyx/databricks-maintenance/pkg/config"
)

// DatabricksScope is the Azure AD scope of the Azure Databricks first-party application.
const DatabricksScope = "2ff814a6-3304-4ab8-85cb-cd0e6f879c1d/.default"

// AuthProvider is a simple factory for workspace authentication policies
type AuthProvider struct{}

// NewAuthProvider creates a new authentication provider
func NewAuthProvider() *AuthProvider {
	return &AuthProvider{}
}

// WorkspacePolicy returns the pipeline policy that authenticates requests to the workspace.
func (a *AuthProvider) WorkspacePolicy(ws *config.WorkspaceConfig) (policy.Policy, error) {
	if ws == nil {
		return nil, fmt.Errorf("workspace configuration is required")
	}
	if ws.AuthType == "" || ws.AuthType == config.AuthTypePAT {
		if ws.Token == "" {
			return nil, fmt.Errorf("workspace token is required for pat authentication")
		}
		return NewTokenPolicy(ws.Token), nil
	}

	cred, err := a.UserCredential(ws)
	if err != nil {
		return nil, err
	}
	return runtime.NewBearerTokenPolicy(cred, []string{DatabricksScope}, nil), nil
}

// UserCredential returns the Azure AD credential selected by the workspace auth type
func (a *AuthProvider) UserCredential(ws *config.WorkspaceConfig) (azcore.TokenCredential, error) {
	switch ws.AuthType {
	case config.AuthTypeServicePrincipal:
		if !ws.IsSPConfigured() {
			return nil, fmt.Errorf("service principal credentials are incomplete")
		}
		return a.serviceCredential(ws.ServicePrincipal)
	case config.AuthTypeManagedIdentity:
		return a.managedIdentityCredential(ws.ManagedIdentityClientID)
	case config.AuthTypeAzureCLI:
		return a.cliCredential()
	default:
		return nil, fmt.Errorf("auth type %q does not use an Azure AD credential", ws.AuthType)
	}
}

// serviceCredential creates service principal credential from config
func (a *AuthProvider) serviceCredential(sp *config.ServicePrincipalConfig) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(sp.TenantID, sp.ClientID, sp.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create service principal credential: %w", err)
	}
	return cred, nil
}

// managedIdentityCredential creates a system- or user-assigned managed identity credential
func (a *AuthProvider) managedIdentityCredential(clientID string) (azcore.TokenCredential, error) {
	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if clientID != "" {
		opts.ID = azidentity.ClientID(clientID)
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create managed identity credential: %w", err)
	}
	return cred, nil
}

// cliCredential creates Azure CLI credential
func (a *AuthProvider) cliCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewAzureCLICredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create CLI credential: %w", err)
	}
	return cred, nil
}

// tokenPolicy sets a static personal access token as bearer authorization.
type tokenPolicy struct {
	token string
}

// NewTokenPolicy returns a policy authenticating with a personal access token.
func NewTokenPolicy(token string) policy.Policy {
	return &tokenPolicy{token: token}
}

func (p *tokenPolicy) Do(req *policy.Request) (*http.Response, error) {
	req.Raw().Header.Set("Authorization", "Bearer "+p.token)
	return req.Next()
}
