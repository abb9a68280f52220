package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by AWS.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWS stores each record as a Secrets Manager secret named {prefix}/{provider}.
type AWS struct {
	client SecretsManagerAPI
	prefix string
}

// AWSOption configures an AWS store.
type AWSOption func(*AWS)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(s *AWS) {
		s.client = client
	}
}

// NewAWS creates an AWS Secrets Manager store. Recognized keys: region,
// endpoint, access_key_id, secret_access_key, role_arn, external_id, prefix.
func NewAWS(ctx context.Context, cfg config.StoreConfig, opts ...AWSOption) (*AWS, error) {
	s := &AWS{prefix: cfg.String("prefix", DefaultPrefix)}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, dserrors.StoreError("aws", "configure", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if endpoint := cfg.String("endpoint", ""); endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	s.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	return s, nil
}

// loadAWSConfig builds the SDK config shared by the AWS-backed stores. When
// role_arn is set the base identity assumes that role through STS and the
// temporary credentials are cached and refreshed before expiry.
func loadAWSConfig(ctx context.Context, cfg config.StoreConfig) (aws.Config, error) {
	region := cfg.String("region", "us-east-1")
	configOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	// Static credentials are for LocalStack and tests.
	accessKeyID := cfg.String("access_key_id", "")
	secretAccessKey := cfg.String("secret_access_key", "")
	if accessKeyID != "" && secretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if roleARN := cfg.String("role_arn", ""); roleARN != "" {
		awsCfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), roleARN, assumeRoleOptions(cfg)),
		)
	}
	return awsCfg, nil
}

func assumeRoleOptions(cfg config.StoreConfig) func(*stscreds.AssumeRoleOptions) {
	return func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = cfg.String("session_name", "finlink")
		if externalID := cfg.String("external_id", ""); externalID != "" {
			o.ExternalID = aws.String(externalID)
		}
	}
}

func (s *AWS) name(key connector.ProviderKey) string {
	return secretName(s.prefix, "/", key)
}

func (s *AWS) Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	name := s.name(key)

	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(data)),
	})
	if err == nil {
		return nil
	}
	if !isAWSNotFound(err) {
		return dserrors.StoreError("aws", "put", err)
	}

	_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(data)),
		Description:  aws.String("finlink sealed credentials for " + string(key)),
		Tags: []types.Tag{
			{Key: aws.String("app"), Value: aws.String("finlink")},
			{Key: aws.String("provider"), Value: aws.String(string(key))},
		},
	})
	if err != nil {
		return dserrors.StoreError("aws", "create", err)
	}
	return nil
}

func (s *AWS) Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.name(key)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return vault.Record{}, ErrNotFound
		}
		return vault.Record{}, dserrors.StoreError("aws", "get", err)
	}
	if out.SecretString == nil {
		return vault.Record{}, fmt.Errorf("secret %s has no string value", s.name(key))
	}
	return decodeRecord([]byte(*out.SecretString))
}

func (s *AWS) Delete(ctx context.Context, key connector.ProviderKey) error {
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(s.name(key)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isAWSNotFound(err) {
		return dserrors.StoreError("aws", "delete", err)
	}
	return nil
}

func (s *AWS) List(ctx context.Context) ([]connector.ProviderKey, error) {
	input := &secretsmanager.ListSecretsInput{
		Filters: []types.Filter{{
			Key:    types.FilterNameStringTypeName,
			Values: []string{s.prefix + "/"},
		}},
	}

	var keys []connector.ProviderKey
	for {
		out, err := s.client.ListSecrets(ctx, input)
		if err != nil {
			return nil, dserrors.StoreError("aws", "list", err)
		}
		for _, entry := range out.SecretList {
			if key, ok := providerFromName(s.prefix, "/", aws.ToString(entry.Name)); ok {
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

func (s *AWS) Close() error { return nil }

func isAWSNotFound(err error) bool {
	var resourceNotFound *types.ResourceNotFoundException
	return errors.As(err, &resourceNotFound)
}
