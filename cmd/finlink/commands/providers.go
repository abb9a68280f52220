package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/connectors"
	"github.com/systmms/finlink/pkg/connector"
)

func NewProvidersCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List supported financial institutions",
		Long: `Display every supported institution, the credential kind it expects,
whether its connector is implemented, and its effective endpoint after
configuration overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.LoadOptional(); err != nil {
				return err
			}

			factories := connectors.NewRegistry()
			factories.ApplyOverrides(cfg.EndpointOverrides())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if verbose {
				_, _ = fmt.Fprintf(w, "PROVIDER\tKIND\tSTATUS\tBASE URL\tTIMEOUT\tRETRIES\n")
				_, _ = fmt.Fprintf(w, "--------\t----\t------\t--------\t-------\t-------\n")
			} else {
				_, _ = fmt.Fprintf(w, "PROVIDER\tKIND\tSTATUS\tBASE URL\n")
				_, _ = fmt.Fprintf(w, "--------\t----\t------\t--------\n")
			}

			for _, key := range connector.AllProviders() {
				kind, _ := connector.ExpectedKind(key)
				status := "pending"
				if factories.IsImplemented(key) {
					status = "implemented"
				}
				ep := factories.Endpoint(key)
				if verbose {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", key, kind, status, ep.BaseURL, ep.Timeout, ep.RetryAttempts)
				} else {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, kind, status, ep.BaseURL)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show timeouts and retry attempts")

	return cmd
}
