package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreError enhances credential store errors with context
func StoreError(backend string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s credential store error during %s", backend, operation),
		Suggestion: getStoreSuggestion(backend, err),
		Err:        err,
	}
}

// getStoreSuggestion returns helpful suggestions based on backend and error
func getStoreSuggestion(backend string, err error) string {
	errStr := err.Error()

	switch backend {
	case "aws":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:GetSecretValue and secretsmanager:PutSecretValue"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "aws.ssm":
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for ssm:GetParameter, ssm:PutParameter and kms:Decrypt on the parameter key"
		}
		if strings.Contains(errStr, "ParameterLimitExceeded") {
			return "Delete unused parameters or request a Parameter Store quota increase"
		}
		if strings.Contains(errStr, "AssumeRole") {
			return "Check that store.role_arn exists and trusts the calling identity"
		}

	case "akeyless":
		if strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "authentication failed") {
			return "Verify store.access_id and store.access_key, or the configured auth method"
		}
		if strings.Contains(errStr, "no such host") {
			return "Verify store.gateway_url, e.g. https://api.akeyless.io"
		}

	case "azure":
		if strings.Contains(errStr, "Forbidden") || strings.Contains(errStr, "403") {
			return "Grant the identity 'get' and 'set' secret permissions on the Key Vault access policy"
		}
		if strings.Contains(errStr, "no such host") {
			return "Verify store.vault_url, e.g. https://<vault-name>.vault.azure.net/"
		}

	case "gcp":
		if strings.Contains(errStr, "PermissionDenied") {
			return "Grant roles/secretmanager.secretAccessor and roles/secretmanager.secretVersionAdder"
		}
		if strings.Contains(errStr, "could not find default credentials") {
			return "Run 'gcloud auth application-default login' or set store.credentials_file"
		}

	case "keyring":
		if strings.Contains(errStr, "dbus") || strings.Contains(errStr, "secret service") {
			return "Start a Secret Service provider (gnome-keyring, KeePassXC) or choose another store type"
		}

	case "sql":
		if strings.Contains(errStr, "does not exist") || strings.Contains(errStr, "doesn't exist") {
			return "Create the credential_records table or set store.create_table: true"
		}
		if strings.Contains(errStr, "unknown driver") {
			return "Set store.driver to 'postgres' or 'mysql'"
		}

	case "bolt":
		if strings.Contains(errStr, "timeout") {
			return "Another finlink process holds the bolt file lock. Stop it or point store.path elsewhere"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and store configuration"
	}

	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"connection refused",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
		"service unavailable",
		"bad gateway",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "message authentication failed") {
		return UserError{
			Message:    "Sealed data could not be opened",
			Suggestion: "FINLINK_MASTER_KEY differs from the key that sealed it. Re-seal with 'finlink seal' or restore the old key",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "address already in use") {
		return UserError{
			Message:    "Listen address is taken",
			Suggestion: "Stop the other process or pass --listen with a free address",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "x509:") || strings.Contains(errStr, "tls:") {
		return UserError{
			Message:    "TLS handshake with the provider failed",
			Suggestion: "Check cert_path, key_path and ca_path in the provider credentials",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
