package commands

import (
	"errors"

	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/internal/vault"
)

// openVault derives the vault key from FINLINK_MASTER_KEY.
func openVault(cfg *config.Config) (*vault.Vault, error) {
	iterations := 0
	if cfg.Definition != nil {
		iterations = cfg.Definition.Vault.Iterations
	}

	v, err := vault.New(cfg.MasterKey(),
		vault.WithLogger(cfg.Logger),
		vault.WithIterations(iterations),
	)
	if errors.Is(err, vault.ErrMissingMasterSecret) {
		return nil, dserrors.UserError{
			Message:    "Master key not configured",
			Suggestion: "Export " + config.EnvMasterKey + " with the secret used to seal credentials",
			Err:        err,
		}
	}
	return v, err
}

// configuredLogger applies the logging section of the config file on top of
// the command-line flags.
func configuredLogger(cfg *config.Config) *logging.Logger {
	if cfg.Definition == nil {
		return cfg.Logger
	}
	def := cfg.Definition.Logging
	if !def.Debug && (def.Format == "" || def.Format == logging.FormatAuto) {
		return cfg.Logger
	}
	return logging.NewWithOptions(logging.Options{
		Debug:   def.Debug || cfg.Debug,
		NoColor: cfg.NoColor,
		Format:  def.Format,
		Out:     cfg.LogOutput,
	})
}
