package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pushlog/config"
	"github.com/jmcleod/pushlog/token"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and inspect session tokens",
	Long: `Operator tools for session tokens signed with the configured cookie secret
(PUSHUP_COOKIE_SECRET).`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenTTL <= 0 {
			return errors.New("--ttl must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tok, err := issueToken(cfg, time.Now(), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify TOKEN",
	Short: "Verify a session token and print its expiry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		claims, err := parseToken(cfg, args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "valid, expires %s\n", claims.ExpiresAt().UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd, tokenVerifyCmd)
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", token.DefaultTTL, "Token lifetime")
}

func issueToken(cfg *config.Config, now time.Time, ttl time.Duration) (string, error) {
	var tok string
	err := cfg.CookieSecret.Use(func(secret []byte) error {
		tok = token.Issue(secret, now, ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cookie secret: %w", err)
	}
	return tok, nil
}

func parseToken(cfg *config.Config, tok string, now time.Time) (token.Claims, error) {
	var claims token.Claims
	err := cfg.CookieSecret.Use(func(secret []byte) error {
		var err error
		claims, err = token.Parse(secret, tok, now)
		return err
	})
	if errors.Is(err, config.ErrSecretNotSet) {
		return claims, fmt.Errorf("cookie secret: %w", err)
	}
	if err != nil {
		return claims, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}
