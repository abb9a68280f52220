package credstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	akeyless "github.com/akeylesslabs/akeyless-go/v3"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// DefaultAkeylessGateway is the public Akeyless API endpoint.
const DefaultAkeylessGateway = "https://api.akeyless.io"

// akeylessTokenTTL is shorter than the 30 minute token lifetime.
const akeylessTokenTTL = 25 * time.Minute

// AkeylessAPI abstracts the Akeyless operations used by the store.
type AkeylessAPI interface {
	// Authenticate obtains an access token
	Authenticate(ctx context.Context) (token string, expiresIn time.Duration, err error)

	GetSecret(ctx context.Context, token, path string) (string, error)
	CreateSecret(ctx context.Context, token, path, value string) error
	UpdateSecret(ctx context.Context, token, path, value string) error
	DeleteItem(ctx context.Context, token, path string) error

	// ListItems returns the full item names under path
	ListItems(ctx context.Context, token, path string) ([]string, error)
}

// Akeyless stores each record as a static secret named /{prefix}/{provider}.
type Akeyless struct {
	client AkeylessAPI
	path   string

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

// AkeylessOption configures an Akeyless store.
type AkeylessOption func(*Akeyless)

// WithAkeylessClient sets a custom Akeyless client (for testing)
func WithAkeylessClient(client AkeylessAPI) AkeylessOption {
	return func(s *Akeyless) {
		s.client = client
	}
}

// WithAkeylessClock sets the clock used for token expiry.
func WithAkeylessClock(now func() time.Time) AkeylessOption {
	return func(s *Akeyless) {
		s.now = now
	}
}

// NewAkeyless creates an Akeyless store. Recognized keys: gateway_url,
// access_id, access_key, auth_method (api_key, aws_iam, azure_ad, gcp),
// azure_ad_object_id, gcp_audience, prefix.
func NewAkeyless(cfg config.StoreConfig, opts ...AkeylessOption) (*Akeyless, error) {
	s := &Akeyless{
		path: "/" + strings.Trim(cfg.String("prefix", DefaultPrefix), "/"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	if cfg.String("access_id", "") == "" {
		return nil, dserrors.ConfigError{
			Field:      "store.access_id",
			Message:    "access_id is required for the akeyless credential store",
			Suggestion: "Set store.access_id to the Akeyless auth method access ID (p-xxxxxxxx)",
		}
	}
	s.client = newAkeylessSDKClient(cfg)
	return s, nil
}

func (s *Akeyless) name(key connector.ProviderKey) string {
	return secretName(s.path, "/", key)
}

func (s *Akeyless) getToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}
	token, ttl, err := s.client.Authenticate(ctx)
	if err != nil {
		return "", dserrors.StoreError("akeyless", "auth", err)
	}
	s.token, s.expires = token, s.now().Add(ttl)
	return token, nil
}

func (s *Akeyless) Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	token, err := s.getToken(ctx)
	if err != nil {
		return err
	}
	name := s.name(key)

	err = s.client.UpdateSecret(ctx, token, name, string(data))
	if err == nil {
		return nil
	}
	if !isAkeylessNotFound(err) {
		return dserrors.StoreError("akeyless", "put", err)
	}
	if err := s.client.CreateSecret(ctx, token, name, string(data)); err != nil {
		return dserrors.StoreError("akeyless", "create", err)
	}
	return nil
}

func (s *Akeyless) Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	token, err := s.getToken(ctx)
	if err != nil {
		return vault.Record{}, err
	}
	value, err := s.client.GetSecret(ctx, token, s.name(key))
	if err != nil {
		if isAkeylessNotFound(err) {
			return vault.Record{}, ErrNotFound
		}
		return vault.Record{}, dserrors.StoreError("akeyless", "get", err)
	}
	return decodeRecord([]byte(value))
}

func (s *Akeyless) Delete(ctx context.Context, key connector.ProviderKey) error {
	token, err := s.getToken(ctx)
	if err != nil {
		return err
	}
	err = s.client.DeleteItem(ctx, token, s.name(key))
	if err != nil && !isAkeylessNotFound(err) {
		return dserrors.StoreError("akeyless", "delete", err)
	}
	return nil
}

func (s *Akeyless) List(ctx context.Context) ([]connector.ProviderKey, error) {
	token, err := s.getToken(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.client.ListItems(ctx, token, s.path)
	if err != nil {
		return nil, dserrors.StoreError("akeyless", "list", err)
	}

	var keys []connector.ProviderKey
	for _, name := range names {
		if key, ok := providerFromName(s.path, "/", name); ok {
			keys = append(keys, key)
		}
	}
	return sortedKeys(keys), nil
}

func (s *Akeyless) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func isAkeylessNotFound(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "itemNotFound")
}

// akeylessSDKClient implements AkeylessAPI with the official SDK.
type akeylessSDKClient struct {
	api *akeyless.V2ApiService

	accessID    string
	accessKey   string
	method      string
	objectID    string
	gcpAudience string
}

func newAkeylessSDKClient(cfg config.StoreConfig) *akeylessSDKClient {
	configuration := akeyless.NewConfiguration()
	configuration.Servers = []akeyless.ServerConfiguration{
		{URL: cfg.String("gateway_url", DefaultAkeylessGateway)},
	}

	return &akeylessSDKClient{
		api:         akeyless.NewAPIClient(configuration).V2Api,
		accessID:    cfg.String("access_id", ""),
		accessKey:   cfg.String("access_key", ""),
		method:      cfg.String("auth_method", "api_key"),
		objectID:    cfg.String("azure_ad_object_id", ""),
		gcpAudience: cfg.String("gcp_audience", ""),
	}
}

func (c *akeylessSDKClient) Authenticate(ctx context.Context) (string, time.Duration, error) {
	body := akeyless.NewAuthWithDefaults()
	body.SetAccessId(c.accessID)

	switch c.method {
	case "api_key", "":
		body.SetAccessKey(c.accessKey)
	case "aws_iam":
		body.SetAccessType("aws_iam")
	case "azure_ad":
		body.SetAccessType("azure_ad")
		if c.objectID != "" {
			body.SetCloudId(c.objectID)
		}
	case "gcp":
		body.SetAccessType("gcp")
		if c.gcpAudience != "" {
			body.SetGcpAudience(c.gcpAudience)
		}
	default:
		return "", 0, fmt.Errorf("unsupported authentication method: %s", c.method)
	}

	res, _, err := c.api.Auth(ctx).Body(*body).Execute()
	if err != nil {
		return "", 0, fmt.Errorf("%s authentication failed: %w", c.method, err)
	}
	return res.GetToken(), akeylessTokenTTL, nil
}

func (c *akeylessSDKClient) GetSecret(ctx context.Context, token, path string) (string, error) {
	body := akeyless.NewGetSecretValue([]string{path})
	body.SetToken(token)

	res, _, err := c.api.GetSecretValue(ctx).Body(*body).Execute()
	if err != nil {
		return "", err
	}
	value, ok := res[path]
	if !ok {
		return "", fmt.Errorf("item %s not found", path)
	}
	return value, nil
}

func (c *akeylessSDKClient) CreateSecret(ctx context.Context, token, path, value string) error {
	body := akeyless.NewCreateSecret(path, value)
	body.SetToken(token)
	body.SetDescription("finlink sealed credentials")

	_, _, err := c.api.CreateSecret(ctx).Body(*body).Execute()
	return err
}

func (c *akeylessSDKClient) UpdateSecret(ctx context.Context, token, path, value string) error {
	body := akeyless.NewUpdateSecretVal(path, value)
	body.SetToken(token)

	_, _, err := c.api.UpdateSecretVal(ctx).Body(*body).Execute()
	return err
}

func (c *akeylessSDKClient) DeleteItem(ctx context.Context, token, path string) error {
	body := akeyless.NewDeleteItem(path)
	body.SetToken(token)

	_, _, err := c.api.DeleteItem(ctx).Body(*body).Execute()
	return err
}

func (c *akeylessSDKClient) ListItems(ctx context.Context, token, path string) ([]string, error) {
	body := akeyless.NewListItems()
	body.SetPath(path)
	body.SetToken(token)

	res, _, err := c.api.ListItems(ctx).Body(*body).Execute()
	if err != nil {
		return nil, err
	}
	items := res.GetItems()
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.GetItemName()
	}
	return names, nil
}
