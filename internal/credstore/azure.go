package credstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// AzureKeyVaultAPI is the subset of the azsecrets client used by Azure.
type AzureKeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
}

// AzureSecretPager pages through secret properties. *runtime.Pager satisfies it.
type AzureSecretPager interface {
	More() bool
	NextPage(ctx context.Context) (azsecrets.ListSecretPropertiesResponse, error)
}

// Azure stores each record as a Key Vault secret named {prefix}-{provider}.
// Key Vault names allow only alphanumerics and dashes.
type Azure struct {
	client   AzureKeyVaultAPI
	newPager func() AzureSecretPager
	prefix   string
}

// AzureOption configures an Azure store.
type AzureOption func(*Azure)

// WithAzureClient sets a custom Key Vault client and pager source (for testing)
func WithAzureClient(client AzureKeyVaultAPI, newPager func() AzureSecretPager) AzureOption {
	return func(s *Azure) {
		s.client = client
		s.newPager = newPager
	}
}

// NewAzure creates a Key Vault store. Recognized keys: vault_url, tenant_id,
// client_id, client_secret, prefix. Without a client secret the default
// Azure credential chain is used.
func NewAzure(cfg config.StoreConfig, opts ...AzureOption) (*Azure, error) {
	s := &Azure{prefix: cfg.String("prefix", DefaultPrefix)}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	vaultURL := cfg.String("vault_url", "")
	if vaultURL == "" {
		return nil, dserrors.ConfigError{
			Field:      "store.vault_url",
			Message:    "vault_url is required for the azure credential store",
			Suggestion: "Set store.vault_url to https://<name>.vault.azure.net/",
		}
	}

	var (
		cred azcore.TokenCredential
		err  error
	)
	if secret := cfg.String("client_secret", ""); secret != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.String("tenant_id", ""), cfg.String("client_id", ""), secret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, dserrors.StoreError("azure", "authenticate", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, dserrors.StoreError("azure", "configure", fmt.Errorf("failed to create Key Vault client: %w", err))
	}
	s.client = client
	s.newPager = func() AzureSecretPager {
		return client.NewListSecretPropertiesPager(nil)
	}
	return s, nil
}

func (s *Azure) name(key connector.ProviderKey) string {
	return secretName(s.prefix, "-", key)
}

func (s *Azure) Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	value := string(data)
	contentType := "application/json"
	app, provider := "finlink", string(key)

	_, err = s.client.SetSecret(ctx, s.name(key), azsecrets.SetSecretParameters{
		Value:       &value,
		ContentType: &contentType,
		Tags:        map[string]*string{"app": &app, "provider": &provider},
	}, nil)
	if err != nil {
		return dserrors.StoreError("azure", "put", err)
	}
	return nil
}

func (s *Azure) Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	resp, err := s.client.GetSecret(ctx, s.name(key), "", nil)
	if err != nil {
		if isAzureNotFound(err) {
			return vault.Record{}, ErrNotFound
		}
		return vault.Record{}, dserrors.StoreError("azure", "get", err)
	}
	if resp.Value == nil {
		return vault.Record{}, fmt.Errorf("secret %s has no value", s.name(key))
	}
	return decodeRecord([]byte(*resp.Value))
}

func (s *Azure) Delete(ctx context.Context, key connector.ProviderKey) error {
	_, err := s.client.DeleteSecret(ctx, s.name(key), nil)
	if err != nil && !isAzureNotFound(err) {
		return dserrors.StoreError("azure", "delete", err)
	}
	return nil
}

func (s *Azure) List(ctx context.Context) ([]connector.ProviderKey, error) {
	if s.newPager == nil {
		return nil, fmt.Errorf("azure store: listing not configured")
	}

	var keys []connector.ProviderKey
	pager := s.newPager()
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, dserrors.StoreError("azure", "list", err)
		}
		for _, props := range page.Value {
			if props == nil || props.ID == nil {
				continue
			}
			if key, ok := providerFromName(s.prefix, "-", props.ID.Name()); ok {
				keys = append(keys, key)
			}
		}
	}
	return sortedKeys(keys), nil
}

func (s *Azure) Close() error { return nil }

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound || respErr.ErrorCode == "SecretNotFound"
	}
	return false
}
