package cli

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalvas/gatekeeper/config"
	"github.com/vitalvas/gatekeeper/signature"
)

func newSignCmd(opts *globalOptions) *cobra.Command {
	var (
		method   string
		headers  map[string]string
		data     string
		dataFile string
	)

	cmd := &cobra.Command{
		Use:   "sign PATH",
		Short: "Print signature headers for a request",
		Long: `Print the headers that sign a request with the default key.
PATH may carry a query string, e.g. "/v1/items?page=2". X-Request-Date
is added when not given with --header.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			rt, err := config.Build(cfg, config.BuildOptions{Logger: logger})
			if err != nil {
				return err
			}

			target, err := url.ParseRequestURI(args[0])
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}

			body := []byte(data)
			if dataFile != "" {
				if body, err = os.ReadFile(dataFile); err != nil {
					return err
				}
			}

			query, err := signature.ParseQuery(target.RawQuery)
			if err != nil {
				return fmt.Errorf("invalid query: %w", err)
			}

			f := signature.Facts{
				Method:     strings.ToUpper(method),
				Path:       target.EscapedPath(),
				Query:      query,
				Headers:    make(map[string]string, len(headers)+1),
				BodyDigest: signature.DigestBody(body),
			}

			for k, v := range headers {
				f.Headers[strings.ToLower(k)] = v
			}

			var out []string

			if _, ok := f.Headers[strings.ToLower(signature.HeaderDate)]; !ok {
				date := time.Now().UTC().Format(time.RFC3339)
				f.Headers[strings.ToLower(signature.HeaderDate)] = date
				out = append(out, signature.HeaderDate+": "+date)
			}

			key, err := rt.Keys.Default()
			if err != nil {
				return err
			}

			sig, err := rt.Scheme.Sign(f, key)
			if err != nil {
				return err
			}

			input, value := sig.Headers()
			out = append(out, signature.HeaderInput+": "+input, signature.HeaderValue+": "+value)

			missing := slices.DeleteFunc(slices.Clone(rt.Scheme.Headers()), func(name string) bool {
				_, ok := f.Headers[name]
				return ok
			})
			for _, name := range missing {
				logger.WithField("header", name).Warn("covered header not given, signed as empty")
			}

			for _, line := range out {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "request method")
	cmd.Flags().StringToStringVarP(&headers, "header", "H", nil, "request header as name=value, repeatable")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "read the request body from a file")

	return cmd
}
