package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
)

func NewSealCommand(cfg *config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a credentials file into an opaque bundle",
		Long: `Read a plaintext credentials file, validate it, and print an opaque
encrypted bundle suitable for FINLINK_CREDENTIALS.

The bundle can only be opened with the same FINLINK_MASTER_KEY.`,
		Example: `  FINLINK_MASTER_KEY=... finlink seal --file credentials.yaml > bundle.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.LoadOptional(); err != nil {
				return err
			}
			if file == "" {
				file = cfg.Definition.Credentials.File
			}
			if file == "" {
				return dserrors.UserError{
					Message:    "No credentials file given",
					Suggestion: "Pass --file or set credentials.file in the configuration",
				}
			}

			bundle, err := config.LoadCredentialsFile(file)
			if err != nil {
				return err
			}
			doc, err := bundle.Map()
			if err != nil {
				return err
			}

			v, err := openVault(cfg)
			if err != nil {
				return err
			}
			defer v.Close()

			opaque, err := v.EncryptCredentials(doc)
			if err != nil {
				return fmt.Errorf("seal credentials: %w", err)
			}

			cfg.Logger.Debug("sealed credentials for %d providers", len(bundle))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), opaque)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Plaintext credentials file (YAML or JSON)")

	return cmd
}
