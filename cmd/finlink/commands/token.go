package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
)

func NewTokenCommand(cfg *config.Config) *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token and its digest",
		Long: `Generate a random API bearer token. The first line is the token to hand
to API clients; the second is the digest to configure as
server.api_token_hash or FINLINK_API_TOKEN_HASH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := vault.GenerateToken(size)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "token: %s\n", token)
			_, err = fmt.Fprintf(out, "hash:  %s\n", vault.Hash([]byte(token)))
			return err
		},
	}

	cmd.Flags().IntVar(&size, "bytes", vault.DefaultTokenBytes, "Number of random bytes")

	return cmd
}

func NewHashTokenCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the digest of an API token",
		Long: `Print the SHA-256 digest of an API token for server.api_token_hash.

With no argument the token is read from the first line of stdin, which keeps
it out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return dserrors.UserError{
						Message:    "No token given",
						Suggestion: "Pass the token as an argument or pipe it on stdin",
						Err:        err,
					}
				}
				token = line
			}

			token = strings.TrimSpace(token)
			if token == "" {
				return dserrors.UserError{Message: "Token is empty"}
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), vault.Hash([]byte(token)))
			return err
		},
	}

	return cmd
}
