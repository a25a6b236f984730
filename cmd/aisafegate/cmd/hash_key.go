package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aisafe-dev/aisafegate/internal/domain/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a key hash for the auth config",
	Long: `Generate a hash of an API key for use in the auth.api_keys.key_hash field.

By default the hash uses Argon2id in PHC format. Pass --sha256 for a
"sha256:<hex>" hash, which trades resistance to brute force for a
faster lookup on every request.

Example:
  aisafegate hash-key "my-secret-api-key"
  aisafegate hash-key --sha256 "my-secret-api-key"

Security note: the key will appear in shell history. Consider clearing
history after use or passing an environment variable:
  aisafegate hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if hashKeySHA256 {
			fmt.Printf("sha256:%s\n", auth.HashKey(key))
			return nil
		}
		hash, err := auth.HashKeyArgon2id(key)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "emit a SHA-256 hash instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
