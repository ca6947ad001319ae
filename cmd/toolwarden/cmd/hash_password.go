package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

var hashPasswordSHA256 bool

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Hash a password for config or the state file",
	Long: `Hash a password for use in the authentication.users config section.

The output is an Argon2id hash in PHC format, which can be pasted
directly into the password_hash field. With --sha256 the legacy
"sha256:<hex>" form is produced instead; new accounts should use the
default.

Example:
  toolwarden hash-password "correct horse battery staple"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The password will appear in shell history.
Consider clearing history after use or using an environment variable:
  toolwarden hash-password "$MY_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := args[0]
		if hashPasswordSHA256 {
			fmt.Printf("sha256:%s\n", auth.HashPasswordSHA256(password))
			return nil
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().BoolVar(&hashPasswordSHA256, "sha256", false, "produce the legacy sha256:<hex> form instead of Argon2id")
	rootCmd.AddCommand(hashPasswordCmd)
}
