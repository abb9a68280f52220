package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// SSMAPI is the subset of the Parameter Store client used by SSM.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSM stores each record as a SecureString parameter named /{prefix}/{provider}.
type SSM struct {
	client SSMAPI
	path   string
	keyID  string
}

// SSMOption configures an SSM store.
type SSMOption func(*SSM)

// WithSSMClient sets a custom Parameter Store client (for testing)
func WithSSMClient(client SSMAPI) SSMOption {
	return func(s *SSM) {
		s.client = client
	}
}

// NewSSM creates an AWS Systems Manager Parameter Store store. It accepts
// the same connection keys as NewAWS plus kms_key_id, the key used to
// encrypt the SecureString parameters (default: the account's aws/ssm key).
func NewSSM(ctx context.Context, cfg config.StoreConfig, opts ...SSMOption) (*SSM, error) {
	s := &SSM{
		path:  "/" + strings.Trim(cfg.String("prefix", DefaultPrefix), "/"),
		keyID: cfg.String("kms_key_id", ""),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, dserrors.StoreError("aws.ssm", "configure", err)
	}

	var clientOpts []func(*ssm.Options)
	if endpoint := cfg.String("endpoint", ""); endpoint != "" {
		clientOpts = append(clientOpts, func(o *ssm.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	s.client = ssm.NewFromConfig(awsCfg, clientOpts...)
	return s, nil
}

func (s *SSM) name(key connector.ProviderKey) string {
	return secretName(s.path, "/", key)
}

func (s *SSM) Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	input := &ssm.PutParameterInput{
		Name:        aws.String(s.name(key)),
		Value:       aws.String(string(data)),
		Type:        types.ParameterTypeSecureString,
		Overwrite:   aws.Bool(true),
		Description: aws.String("finlink sealed credentials for " + string(key)),
	}
	if s.keyID != "" {
		input.KeyId = aws.String(s.keyID)
	}
	if _, err := s.client.PutParameter(ctx, input); err != nil {
		return dserrors.StoreError("aws.ssm", "put", err)
	}
	return nil
}

func (s *SSM) Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name(key)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isParameterNotFound(err) {
			return vault.Record{}, ErrNotFound
		}
		return vault.Record{}, dserrors.StoreError("aws.ssm", "get", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return vault.Record{}, fmt.Errorf("parameter %s has no value", s.name(key))
	}
	return decodeRecord([]byte(*out.Parameter.Value))
}

func (s *SSM) Delete(ctx context.Context, key connector.ProviderKey) error {
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(s.name(key)),
	})
	if err != nil && !isParameterNotFound(err) {
		return dserrors.StoreError("aws.ssm", "delete", err)
	}
	return nil
}

func (s *SSM) List(ctx context.Context) ([]connector.ProviderKey, error) {
	input := &ssm.GetParametersByPathInput{
		Path:      aws.String(s.path),
		Recursive: aws.Bool(false),
	}

	var keys []connector.ProviderKey
	for {
		out, err := s.client.GetParametersByPath(ctx, input)
		if err != nil {
			return nil, dserrors.StoreError("aws.ssm", "list", err)
		}
		for _, p := range out.Parameters {
			if key, ok := providerFromName(s.path, "/", aws.ToString(p.Name)); ok {
				keys = append(keys, key)
			}
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return sortedKeys(keys), nil
}

func (s *SSM) Close() error { return nil }

func isParameterNotFound(err error) bool {
	var notFound *types.ParameterNotFound
	return errors.As(err, &notFound)
}
