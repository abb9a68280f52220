package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/finlink/internal/credstore"
)

// FakeSSMClient is an in-memory Parameter Store.
//
// It implements the operations used by credstore.SSM. PutParameter without
// Overwrite fails on an existing name like the real service does.
type FakeSSMClient struct {
	mu sync.Mutex

	// Parameters maps parameter names to their data
	Parameters map[string]*ParameterData
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// ListErr is returned from GetParametersByPath when set
	ListErr error
	// PageSize splits GetParametersByPath output into pages when positive
	PageSize int
}

// ParameterData holds the data for a fake parameter
type ParameterData struct {
	Value   string
	Type    ssmtypes.ParameterType
	KeyID   string
	Version int64
}

// NewFakeSSMClient creates a new fake Parameter Store client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]*ParameterData),
		Errors:     make(map[string]error),
	}
}

// AddSecureStringParameter adds a SecureString parameter
func (f *FakeSSMClient) AddSecureStringParameter(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Parameters[name] = &ParameterData{Value: value, Type: ssmtypes.ParameterTypeSecureString, Version: 1}
}

// AddError configures the fake to return an error for a specific parameter
func (f *FakeSSMClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Parameter returns a copy of the stored parameter.
func (f *FakeSSMClient) Parameter(name string) (ParameterData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Parameters[name]
	if !ok {
		return ParameterData{}, false
	}
	return *p, true
}

func parameterNotFound(name string) error {
	return &ssmtypes.ParameterNotFound{Message: aws.String("Parameter " + name + " not found.")}
}

// GetParameter returns a parameter. SecureString values are only returned
// in plaintext when WithDecryption is set.
func (f *FakeSSMClient) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	data, ok := f.Parameters[name]
	if !ok {
		return nil, parameterNotFound(name)
	}

	value := data.Value
	if data.Type == ssmtypes.ParameterTypeSecureString && !aws.ToBool(params.WithDecryption) {
		value = "AQICAHh-encrypted-" + name
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    params.Name,
			Value:   aws.String(value),
			Type:    data.Type,
			Version: data.Version,
			ARN:     aws.String("arn:aws:ssm:us-east-1:123456789012:parameter" + name),
		},
	}, nil
}

// PutParameter creates a parameter or, with Overwrite, replaces it
func (f *FakeSSMClient) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	data, exists := f.Parameters[name]
	if exists && !aws.ToBool(params.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("parameter already exists: " + name)}
	}
	if !exists {
		data = &ParameterData{}
		f.Parameters[name] = data
	}
	data.Value = aws.ToString(params.Value)
	data.Type = params.Type
	data.KeyID = aws.ToString(params.KeyId)
	data.Version++
	return &ssm.PutParameterOutput{Version: data.Version, Tier: ssmtypes.ParameterTierStandard}, nil
}

// DeleteParameter removes a parameter
func (f *FakeSSMClient) DeleteParameter(_ context.Context, params *ssm.DeleteParameterInput, _ ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	if _, ok := f.Parameters[name]; !ok {
		return nil, parameterNotFound(name)
	}
	delete(f.Parameters, name)
	return &ssm.DeleteParameterOutput{}, nil
}

// GetParametersByPath lists the parameters directly under Path. Recursive
// lookups also return deeper names.
func (f *FakeSSMClient) GetParametersByPath(_ context.Context, params *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	prefix := strings.TrimSuffix(aws.ToString(params.Path), "/") + "/"
	var names []string
	for name := range f.Parameters {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		if !aws.ToBool(params.Recursive) && strings.Contains(rest, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if params.NextToken != nil {
		fmt.Sscanf(*params.NextToken, "%d", &start)
	}
	end := len(names)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &ssm.GetParametersByPathOutput{}
	for _, name := range names[start:end] {
		data := f.Parameters[name]
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{
			Name:    aws.String(name),
			Type:    data.Type,
			Version: data.Version,
		})
	}
	if end < len(names) {
		out.NextToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

var _ credstore.SSMAPI = (*FakeSSMClient)(nil)
