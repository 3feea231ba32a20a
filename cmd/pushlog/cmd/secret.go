package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pushlog/internal/util"
)

var secretBytes int

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Secret helpers",
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random cookie secret",
	Long: `Prints a random, url-safe base64 secret suitable for PUSHUP_COOKIE_SECRET.
Rotating the secret logs out every session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := generateSecret(secretBytes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretGenerateCmd)
	secretGenerateCmd.Flags().IntVar(&secretBytes, "bytes", 32, "Number of random bytes")
}

func generateSecret(n int) (string, error) {
	if n < 16 {
		return "", errors.New("--bytes must be at least 16")
	}
	b, err := util.RandomBytes(n)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(b)
	return util.Base64URLEncode(b), nil
}
