package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPSecretManagerAPI is the subset of Secret Manager operations used by GCP.
type GCPSecretManagerAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest) error
	ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) SecretIterator
	Close() error
}

// SecretIterator iterates over listed secrets.
type SecretIterator interface {
	Next() (*secretmanagerpb.Secret, error)
}

// GCP stores each record as a Secret Manager secret named {prefix}-{provider};
// every Put adds a new version.
type GCP struct {
	client  GCPSecretManagerAPI
	project string
	prefix  string
}

// GCPOption configures a GCP store.
type GCPOption func(*GCP)

// WithGCPClient sets a custom Secret Manager client (for testing)
func WithGCPClient(client GCPSecretManagerAPI) GCPOption {
	return func(s *GCP) {
		s.client = client
	}
}

// NewGCP creates a Secret Manager store. Recognized keys: project_id,
// service_account_key_path, prefix.
func NewGCP(ctx context.Context, cfg config.StoreConfig, opts ...GCPOption) (*GCP, error) {
	s := &GCP{
		project: cfg.String("project_id", ""),
		prefix:  cfg.String("prefix", DefaultPrefix),
	}
	if s.project == "" {
		return nil, dserrors.ConfigError{
			Field:      "store.project_id",
			Message:    "project_id is required for the gcp credential store",
			Suggestion: "Set store.project_id to your Google Cloud project",
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	var clientOptions []option.ClientOption
	if path := cfg.String("service_account_key_path", ""); path != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(path))
	}
	client, err := secretmanager.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, dserrors.StoreError("gcp", "configure", fmt.Errorf("failed to create Secret Manager client: %w", err))
	}
	s.client = gcpClient{c: client}
	return s, nil
}

func (s *GCP) secretPath(key connector.ProviderKey) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.project, secretName(s.prefix, "-", key))
}

func (s *GCP) Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	add := &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretPath(key),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}
	_, err = s.client.AddSecretVersion(ctx, add)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return dserrors.StoreError("gcp", "put", err)
	}

	_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + s.project,
		SecretId: secretName(s.prefix, "-", key),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: map[string]string{"app": "finlink", "provider": string(key)},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return dserrors.StoreError("gcp", "create", err)
	}

	if _, err := s.client.AddSecretVersion(ctx, add); err != nil {
		return dserrors.StoreError("gcp", "put", err)
	}
	return nil
}

func (s *GCP) Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretPath(key) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return vault.Record{}, ErrNotFound
		}
		return vault.Record{}, dserrors.StoreError("gcp", "get", err)
	}
	return decodeRecord(resp.GetPayload().GetData())
}

func (s *GCP) Delete(ctx context.Context, key connector.ProviderKey) error {
	err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: s.secretPath(key)})
	if err != nil && status.Code(err) != codes.NotFound {
		return dserrors.StoreError("gcp", "delete", err)
	}
	return nil
}

func (s *GCP) List(ctx context.Context) ([]connector.ProviderKey, error) {
	it := s.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: "projects/" + s.project,
		Filter: "labels.app=finlink",
	})

	parent := fmt.Sprintf("projects/%s/secrets/", s.project)
	var keys []connector.ProviderKey
	for {
		secret, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, dserrors.StoreError("gcp", "list", err)
		}
		name := strings.TrimPrefix(secret.GetName(), parent)
		if key, ok := providerFromName(s.prefix, "-", name); ok {
			keys = append(keys, key)
		}
	}
	return sortedKeys(keys), nil
}

func (s *GCP) Close() error {
	return s.client.Close()
}

// gcpClient adapts *secretmanager.Client, whose methods take variadic call
// options, to GCPSecretManagerAPI.
type gcpClient struct {
	c *secretmanager.Client
}

func (g gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return g.c.AccessSecretVersion(ctx, req)
}

func (g gcpClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	return g.c.CreateSecret(ctx, req)
}

func (g gcpClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return g.c.AddSecretVersion(ctx, req)
}

func (g gcpClient) DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest) error {
	return g.c.DeleteSecret(ctx, req)
}

func (g gcpClient) ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) SecretIterator {
	return g.c.ListSecrets(ctx, req)
}

func (g gcpClient) Close() error {
	return g.c.Close()
}
