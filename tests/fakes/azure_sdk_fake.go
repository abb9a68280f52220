package fakes

import (
	"context"
	"sort"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeAzureKeyVaultClient is an in-memory Key Vault for credstore.Azure.
type FakeAzureKeyVaultClient struct {
	mu sync.Mutex

	// VaultURL prefixes generated secret IDs
	VaultURL string
	// Secrets maps secret names to their data
	Secrets map[string]*AzureSecretData
	// Errors maps secret names to errors to return
	Errors map[string]error
}

// AzureSecretData holds the data for a fake Azure secret
type AzureSecretData struct {
	Value       string
	ContentType *string
	Tags        map[string]*string
	Versions    int
}

// NewFakeAzureKeyVaultClient creates a new fake Key Vault client
func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{
		VaultURL: "https://fake.vault.azure.net",
		Secrets:  make(map[string]*AzureSecretData),
		Errors:   make(map[string]error),
	}
}

// AddSecretString adds a plain string secret
func (f *FakeAzureKeyVaultClient) AddSecretString(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = &AzureSecretData{Value: value, Versions: 1}
}

// AddError configures the fake to return an error for a specific secret
func (f *FakeAzureKeyVaultClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

func (f *FakeAzureKeyVaultClient) id(name string) *azsecrets.ID {
	id := azsecrets.ID(f.VaultURL + "/secrets/" + name)
	return &id
}

// GetSecret returns the latest value of a secret
func (f *FakeAzureKeyVaultClient) GetSecret(_ context.Context, name string, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[name]; ok {
		return azsecrets.GetSecretResponse{}, err
	}
	data, ok := f.Secrets[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}
	value := data.Value
	return azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:          f.id(name),
			Value:       &value,
			ContentType: data.ContentType,
			Tags:        data.Tags,
		},
	}, nil
}

// SetSecret creates a secret or adds a new version
func (f *FakeAzureKeyVaultClient) SetSecret(_ context.Context, name string, params azsecrets.SetSecretParameters, _ *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[name]; ok {
		return azsecrets.SetSecretResponse{}, err
	}
	data, ok := f.Secrets[name]
	if !ok {
		data = &AzureSecretData{}
		f.Secrets[name] = data
	}
	if params.Value != nil {
		data.Value = *params.Value
	}
	data.ContentType = params.ContentType
	data.Tags = params.Tags
	data.Versions++

	value := data.Value
	return azsecrets.SetSecretResponse{
		Secret: azsecrets.Secret{ID: f.id(name), Value: &value, Tags: data.Tags},
	}, nil
}

// DeleteSecret removes a secret
func (f *FakeAzureKeyVaultClient) DeleteSecret(_ context.Context, name string, _ *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[name]; ok {
		return azsecrets.DeleteSecretResponse{}, err
	}
	if _, ok := f.Secrets[name]; !ok {
		return azsecrets.DeleteSecretResponse{}, AzureNotFoundError(name)
	}
	delete(f.Secrets, name)
	return azsecrets.DeleteSecretResponse{}, nil
}

// Pager returns a pager over the current secrets, one page per pageSize
// entries (all in one page when pageSize <= 0).
func (f *FakeAzureKeyVaultClient) Pager(pageSize int) *FakeAzureKeyVaultPager {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.Secrets))
	for name := range f.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]*azsecrets.SecretProperties, 0, len(names))
	for _, name := range names {
		props = append(props, &azsecrets.SecretProperties{ID: f.id(name)})
	}
	return &FakeAzureKeyVaultPager{secrets: props, pageSize: pageSize}
}

// FakeAzureKeyVaultPager is a simplified pager for testing
type FakeAzureKeyVaultPager struct {
	secrets  []*azsecrets.SecretProperties
	pageSize int
	index    int
	served   bool
	Err      error
}

// NextPage returns the next page of secret properties
func (p *FakeAzureKeyVaultPager) NextPage(_ context.Context) (azsecrets.ListSecretPropertiesResponse, error) {
	if p.Err != nil {
		return azsecrets.ListSecretPropertiesResponse{}, p.Err
	}
	p.served = true

	end := len(p.secrets)
	if p.pageSize > 0 && p.index+p.pageSize < end {
		end = p.index + p.pageSize
	}
	page := p.secrets[p.index:end]
	p.index = end

	return azsecrets.ListSecretPropertiesResponse{
		SecretPropertiesListResult: azsecrets.SecretPropertiesListResult{Value: page},
	}, nil
}

// More returns true if there are more pages
func (p *FakeAzureKeyVaultPager) More() bool {
	return !p.served || p.index < len(p.secrets)
}

// AzureNotFoundError creates a fake Azure not found error
func AzureNotFoundError(secretName string) error {
	return &azcore.ResponseError{
		StatusCode: 404,
		ErrorCode:  "SecretNotFound",
	}
}

// AzureForbiddenError creates a fake Azure forbidden error
func AzureForbiddenError() error {
	return &azcore.ResponseError{
		StatusCode: 403,
		ErrorCode:  "Forbidden",
	}
}
