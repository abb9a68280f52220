package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/systmms/finlink/internal/credstore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FakeGCPSecretManagerClient is an in-memory Secret Manager for credstore.GCP.
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	// Secrets maps full resource names (projects/X/secrets/Y) to their data
	Secrets map[string]*GCPSecretData
	// Errors maps resource names to errors to return
	Errors map[string]error
	// Closed records whether Close was called
	Closed bool
}

// GCPSecretData holds a fake secret and its versions, oldest first
type GCPSecretData struct {
	Name       string
	CreateTime *timestamppb.Timestamp
	Labels     map[string]string
	Versions   []*GCPSecretVersionData
}

// GCPSecretVersionData holds version-specific data for a GCP secret
type GCPSecretVersionData struct {
	Name       string
	State      secretmanagerpb.SecretVersion_State
	CreateTime *timestamppb.Timestamp
	Data       []byte
}

// NewFakeGCPSecretManagerClient creates a new fake Secret Manager client
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Secrets: make(map[string]*GCPSecretData),
		Errors:  make(map[string]error),
	}
}

// AddError configures the fake to return an error for a resource name
func (f *FakeGCPSecretManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// AccessSecretVersion returns the payload of .../versions/latest or a
// numbered version
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[req.GetName()]; ok {
		return nil, err
	}

	secretPath, version, ok := strings.Cut(req.GetName(), "/versions/")
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "malformed version name %q", req.GetName())
	}
	secret, exists := f.Secrets[secretPath]
	if !exists || len(secret.Versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found or has no versions", secretPath)
	}

	v := secret.Versions[len(secret.Versions)-1]
	if version != "latest" {
		v = nil
		for _, candidate := range secret.Versions {
			if strings.HasSuffix(candidate.Name, "/versions/"+version) {
				v = candidate
			}
		}
		if v == nil {
			return nil, status.Errorf(codes.NotFound, "Secret Version [%s] not found", req.GetName())
		}
	}
	if v.State != secretmanagerpb.SecretVersion_ENABLED {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret Version [%s] is in %s state", v.Name, v.State)
	}

	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    v.Name,
		Payload: &secretmanagerpb.SecretPayload{Data: v.Data},
	}, nil
}

// CreateSecret creates an empty secret
func (f *FakeGCPSecretManagerClient) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetParent() + "/secrets/" + req.GetSecretId()
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	if _, exists := f.Secrets[name]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists", name)
	}
	data := &GCPSecretData{
		Name:       name,
		CreateTime: timestamppb.New(time.Now()),
		Labels:     req.GetSecret().GetLabels(),
	}
	f.Secrets[name] = data
	return &secretmanagerpb.Secret{Name: name, CreateTime: data.CreateTime, Labels: data.Labels}, nil
}

// AddSecretVersion appends an enabled version
func (f *FakeGCPSecretManagerClient) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[req.GetParent()]; ok {
		return nil, err
	}
	secret, exists := f.Secrets[req.GetParent()]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", req.GetParent())
	}
	v := &GCPSecretVersionData{
		Name:       fmt.Sprintf("%s/versions/%d", secret.Name, len(secret.Versions)+1),
		State:      secretmanagerpb.SecretVersion_ENABLED,
		CreateTime: timestamppb.New(time.Now()),
		Data:       append([]byte(nil), req.GetPayload().GetData()...),
	}
	secret.Versions = append(secret.Versions, v)
	return &secretmanagerpb.SecretVersion{Name: v.Name, State: v.State, CreateTime: v.CreateTime}, nil
}

// DeleteSecret removes a secret and all its versions
func (f *FakeGCPSecretManagerClient) DeleteSecret(_ context.Context, req *secretmanagerpb.DeleteSecretRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[req.GetName()]; ok {
		return err
	}
	if _, exists := f.Secrets[req.GetName()]; !exists {
		return status.Errorf(codes.NotFound, "Secret [%s] not found", req.GetName())
	}
	delete(f.Secrets, req.GetName())
	return nil
}

// ListSecrets lists secrets under the parent project. A filter of the form
// labels.KEY=VALUE is honored.
func (f *FakeGCPSecretManagerClient) ListSecrets(_ context.Context, req *secretmanagerpb.ListSecretsRequest) credstore.SecretIterator {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[req.GetParent()]; ok {
		return &FakeSecretIterator{err: err}
	}

	labelKey, labelValue, hasFilter := strings.Cut(strings.TrimPrefix(req.GetFilter(), "labels."), "=")
	hasFilter = hasFilter && strings.HasPrefix(req.GetFilter(), "labels.")

	var names []string
	for name, secret := range f.Secrets {
		if !strings.HasPrefix(name, req.GetParent()+"/secrets/") {
			continue
		}
		if hasFilter && secret.Labels[labelKey] != labelValue {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	secrets := make([]*secretmanagerpb.Secret, 0, len(names))
	for _, name := range names {
		s := f.Secrets[name]
		secrets = append(secrets, &secretmanagerpb.Secret{Name: s.Name, CreateTime: s.CreateTime, Labels: s.Labels})
	}
	return &FakeSecretIterator{secrets: secrets}
}

// Close marks the client closed
func (f *FakeGCPSecretManagerClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeSecretIterator iterates over a fixed slice of secrets
type FakeSecretIterator struct {
	secrets []*secretmanagerpb.Secret
	index   int
	err     error
}

// Next returns the next secret or iterator.Done
func (it *FakeSecretIterator) Next() (*secretmanagerpb.Secret, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.index >= len(it.secrets) {
		return nil, iterator.Done
	}
	s := it.secrets[it.index]
	it.index++
	return s, nil
}
