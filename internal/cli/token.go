package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalvas/gatekeeper/config"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect bearer tokens",
	}

	cmd.AddCommand(newTokenIssueCmd(opts), newTokenVerifyCmd(opts))

	return cmd
}

func newTokenIssueCmd(opts *globalOptions) *cobra.Command {
	var (
		subject string
		claims  map[string]string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a token signed with the default key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			if ttl != 0 {
				cfg.Token.TTL = ttl
			}

			rt, err := config.Build(cfg, config.BuildOptions{Logger: logger})
			if err != nil {
				return err
			}

			extra := make(map[string]any, len(claims))
			for k, v := range claims {
				extra[k] = v
			}

			raw, _, err := rt.Issuer.IssueFor(subject, extra)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), raw)

			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringToStringVar(&claims, "claim", nil, "extra claim as key=value, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: token.ttl)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func newTokenVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Validate a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			rt, err := config.Build(cfg, config.BuildOptions{Logger: logger})
			if err != nil {
				return err
			}

			if rt.Validator == nil {
				return fmt.Errorf("no keys configured")
			}

			claims, err := rt.Validator.Validate(args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(map[string]any{
				"sub":   claims.Subject,
				"jti":   claims.ID,
				"iat":   claims.IssuedAt.Unix(),
				"exp":   claims.ExpiresAt.Unix(),
				"extra": claims.Extra,
			})
		},
	}
}
