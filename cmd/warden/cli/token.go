package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect bearer tokens",
	}

	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenInspectCmd())

	return cmd
}

// ---------- token issue ----------

func newTokenIssueCmd() *cobra.Command {
	var (
		role    string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token",
		Long: `Issue a signed bearer token with a role and TTL.

The signing secret is read from WARDEN_AUTH_JWT_SECRET (or warden.yaml); if
neither is set you are prompted for it. Keep TTLs short for high-privilege
roles: there is no revocation list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(cmd, role, subject, ttl)
		},
	}

	cmd.Flags().StringVar(&role, "role", "viewer", "Token role (viewer, operator, admin, webhook)")
	cmd.Flags().StringVar(&subject, "subject", "", "Optional token subject (who this token is for)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime (e.g. 30m, 12h)")

	return cmd
}

func runTokenIssue(cmd *cobra.Command, role, subject string, ttl time.Duration) error {
	parsedRole, err := model.ParseRole(role)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	secret, err := resolveJWTSecret()
	if err != nil {
		return err
	}

	token, err := service.NewAuthService(secret).Issue(parsedRole, subject, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// ---------- token inspect ----------

func newTokenInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Validate a token and print its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenInspect(cmd, args[0])
		},
	}
	return cmd
}

func runTokenInspect(cmd *cobra.Command, token string) error {
	secret, err := resolveJWTSecret()
	if err != nil {
		return err
	}

	md, err := service.NewAuthService(secret).Validate(token)
	if err != nil {
		return fmt.Errorf("token is not valid: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]string{
		"role":       string(md.Role),
		"subject":    md.Subject,
		"issued_at":  md.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at": md.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// resolveJWTSecret reads the signing secret from config/env, prompting on
// the terminal as a last resort so the secret never lands in shell history.
func resolveJWTSecret() (string, error) {
	if secret := viper.GetString("auth.jwt_secret"); secret != "" {
		return secret, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("auth.jwt_secret is not set (set WARDEN_AUTH_JWT_SECRET or warden.yaml)")
	}

	fmt.Fprint(os.Stderr, "JWT signing secret: ")
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	return secret, nil
}
