// AngelaMos | 2026
// keygen.go

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/users-service/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	var privatePath, publicPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ES256 key pair for signing access tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, path := range []string{privatePath, publicPath} {
				if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
					return oops.Code("KEYGEN_FAILED").With("path", path).Wrap(err)
				}
			}

			if err := auth.GenerateKeyPair(privatePath, publicPath); err != nil {
				return oops.Code("KEYGEN_FAILED").Wrap(err)
			}

			cmd.Printf("Wrote %s and %s\n", privatePath, publicPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&privatePath, "private", "keys/private.pem", "private key output path")
	cmd.Flags().StringVar(&publicPath, "public", "keys/public.pem", "public key output path")

	return cmd
}
