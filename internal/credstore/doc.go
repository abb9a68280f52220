// Package credstore persists sealed credential records.
//
// A Store only ever sees vault.Record values: ciphertext, IV, auth tag and
// salt plus non-secret metadata. Plaintext credentials never reach a backend.
//
// Backends:
//
//   - memory: process-local map, the default
//   - bolt: single-file bbolt database
//   - keyring: OS keychain via go-keyring
//   - sql: PostgreSQL or MySQL table
//   - aws: AWS Secrets Manager
//   - aws.ssm: AWS Systems Manager Parameter Store (SecureString)
//   - akeyless: Akeyless static secrets
//   - azure: Azure Key Vault secrets
//   - gcp: Google Secret Manager
//
// Open selects a backend from configuration:
//
//	store, err := credstore.Open(ctx, cfg.Definition.Store)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package credstore
