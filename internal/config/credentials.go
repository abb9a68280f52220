package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/pkg/connector"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Bundle is the credential set handed to the registry at startup.
type Bundle map[connector.ProviderKey]connector.RawCredentials

// BundleDecrypter opens an opaque credentials bundle. *vault.Vault satisfies it.
type BundleDecrypter interface {
	DecryptCredentials(opaque string) (map[string]any, error)
}

// bundleSchema describes a credentials document: one object per provider,
// each with an optional kind and string-valued fields.
const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "propertyNames": {
    "enum": ["scotia", "rbc", "td", "bmo", "cibc", "desjardins", "national"]
  },
  "additionalProperties": {
    "type": "object",
    "properties": {
      "kind": {"enum": ["oauth2", "certificate", "api_key", "basic"]},
      "scopes": {"type": "array", "items": {"type": "string"}}
    },
    "additionalProperties": {"type": ["string", "array"]}
  }
}`

// LoadBundle assembles the credential bundle. A sealed bundle in
// FINLINK_CREDENTIALS wins over the credentials file; when neither is set the
// bundle is empty.
func (c *Config) LoadBundle(dec BundleDecrypter) (Bundle, error) {
	if sealed := strings.TrimSpace(c.SealedCredentials()); sealed != "" {
		if dec == nil {
			return nil, fmt.Errorf("sealed credentials present but no vault configured")
		}
		doc, err := dec.DecryptCredentials(sealed)
		if err != nil {
			return nil, dserrors.UserError{
				Message:    "Failed to open sealed credentials",
				Details:    err.Error(),
				Suggestion: "Check that " + EnvMasterKey + " matches the key used by 'finlink seal'",
				Err:        err,
			}
		}
		c.Logger.Debug("loaded sealed credentials for %d providers", len(doc))
		return ParseBundle(doc)
	}

	if c.Definition == nil || c.Definition.Credentials.File == "" {
		return Bundle{}, nil
	}

	path := c.Definition.Credentials.File
	if !filepath.IsAbs(path) && c.Path != "" {
		path = filepath.Join(filepath.Dir(c.Path), path)
	}
	return LoadCredentialsFile(path)
}

// LoadCredentialsFile reads a YAML or JSON credentials document.
func LoadCredentialsFile(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "credentials.file",
			Value:      path,
			Message:    "cannot read credentials file",
			Suggestion: "Check the path and file permissions",
		}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, dserrors.ConfigError{
			Field:      "credentials.file",
			Value:      path,
			Message:    "invalid YAML syntax in credentials file",
			Suggestion: "Credentials files may be YAML or JSON",
		}
	}
	return ParseBundle(doc)
}

// ParseBundle validates a decoded credentials document and converts every
// entry to its typed variant. Entries whose kind does not match the
// provider's expected kind are rejected.
func ParseBundle(doc map[string]any) (Bundle, error) {
	if err := validateBundle(doc); err != nil {
		return nil, err
	}

	bundle := make(Bundle, len(doc))
	for name, raw := range doc {
		key, err := connector.ParseProviderKey(name)
		if err != nil {
			return nil, err
		}

		fields, _ := raw.(map[string]any)
		want, _ := connector.ExpectedKind(key)
		kind := want
		if k, ok := fields["kind"].(string); ok && k != "" {
			kind = connector.Kind(k)
		}

		data := make(map[string]any, len(fields))
		for k, v := range fields {
			if k != "kind" {
				data[k] = v
			}
		}

		creds, err := connector.DecodeCredentials(kind, data)
		if err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", key, err)
		}
		if err := connector.CheckKind(key, creds); err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", key, err)
		}
		bundle[key] = creds
	}
	return bundle, nil
}

func validateBundle(doc map[string]any) error {
	// Round-trip through JSON so YAML-decoded values match the schema types.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode credentials document: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(bundleSchema)
	docLoader := gojsonschema.NewBytesLoader(normalized)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate credentials document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return dserrors.ConfigError{
		Field:      "credentials",
		Message:    "credentials document failed validation: " + strings.Join(errs, "; "),
		Suggestion: "Each provider entry needs the fields of its credential kind (see 'finlink providers')",
	}
}

// Map converts the bundle back to the loose document form accepted by
// ParseBundle, used when sealing.
func (b Bundle) Map() (map[string]any, error) {
	out := make(map[string]any, len(b))
	for key, creds := range b {
		data, err := json.Marshal(creds)
		if err != nil {
			return nil, fmt.Errorf("encode %s credentials: %w", key, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		fields["kind"] = string(creds.Kind())
		out[string(key)] = fields
	}
	return out, nil
}
