package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/auth"
)

var hashSHA256 bool

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Generate a hash for the gateway secret",
	Long: `Generate a hash of the gateway secret for use in config.

The default output is an argon2id PHC string. With --sha256 the output is
"sha256:<hex>". Either form can be used in auth.gateway_secret_hash so the
plain secret never has to be stored.

Example:
  approval-gate hash-secret "my-gateway-secret"
  # Output: $argon2id$v=19$m=65536,t=1,p=...

Security note: The secret will appear in shell history.
Consider clearing history after use or using an environment variable:
  approval-gate hash-secret "$GATEWAY_SECRET"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashSHA256 {
			fmt.Fprintln(cmd.OutOrStdout(), auth.HashSecretSHA256(args[0]))
			return nil
		}
		hash, err := auth.HashSecretArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash secret: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashSecretCmd.Flags().BoolVar(&hashSHA256, "sha256", false, "emit a sha256:<hex> hash instead of argon2id")
	rootCmd.AddCommand(hashSecretCmd)
}
