// Command courier sends a single HTTP request through a courier client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/courier"
)

type requestFlags struct {
	method      string
	headers     []string
	data        string
	timeout     time.Duration
	baseURL     string
	configPath  string
	cancelAfter time.Duration
	verbose     bool
	outputJSON  bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "courier",
		Short:        "HTTP client with interceptor chains and cooperative cancellation",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRequestCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRequestCmd() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "request URL",
		Short: "Send a request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd.Context(), cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.method, "method", "X", "get", "request method")
	cmd.Flags().StringArrayVarP(&flags.headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	cmd.Flags().StringVarP(&flags.data, "data", "d", "", "request body")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "request timeout")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "base URL for relative request URLs")
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "TOML file with client defaults")
	cmd.Flags().DurationVar(&flags.cancelAfter, "cancel-after", 0, "cancel the request after this long")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log request lifecycle to stderr")
	cmd.Flags().BoolVar(&flags.outputJSON, "json", false, "pretty-print a JSON response body")

	return cmd
}

func runRequest(ctx context.Context, cmd *cobra.Command, target string, flags requestFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var options []courier.Option
	if flags.configPath != "" {
		options = append(options, courier.WithConfigFile(flags.configPath))
	}
	if flags.baseURL != "" {
		options = append(options, courier.WithBaseURL(flags.baseURL))
	}
	if flags.verbose {
		options = append(options, courier.WithSimpleLogger())
	}
	client := courier.New(options...)
	if !client.IsValid() {
		return client.ValidationError()
	}

	cfg := &courier.Config{
		Method:  flags.method,
		URL:     target,
		Timeout: flags.timeout,
	}
	if flags.data != "" {
		cfg.Data = flags.data
	}
	for _, h := range flags.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		if cfg.Header == nil {
			cfg.Header = make(map[string][]string)
		}
		cfg.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	if flags.cancelAfter > 0 {
		source := courier.NewCancelSource()
		cfg.CancelToken = source.Token
		timer := time.AfterFunc(flags.cancelAfter, func() {
			source.Cancel(fmt.Sprintf("canceled after %s", flags.cancelAfter), nil, nil)
		})
		defer timer.Stop()
	}

	resp, err := client.Request(ctx, cfg).Await(ctx)
	if err != nil {
		if e, ok := courier.AsError(err); ok && flags.verbose {
			fmt.Fprint(cmd.ErrOrStderr(), e.DebugInfo())
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d %s\n", resp.Status, resp.StatusText)

	table := uitable.New()
	table.MaxColWidth = 80
	table.Separator = " "
	for _, name := range slices.Sorted(maps.Keys(resp.Header)) {
		table.AddRow(name+":", strings.Join(resp.Header[name], ", "))
	}
	fmt.Fprintln(out, table)
	fmt.Fprintln(out)

	if flags.outputJSON {
		var body any
		if err := resp.JSON(&body); err == nil {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		}
	}
	_, err = out.Write(resp.Data)
	return err
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), courier.Version)
				return
			}
			info := courier.GetVersionInfo()
			table := uitable.New()
			table.RightAlign(0)
			table.Separator = " "
			table.AddRow("version:", info["version"])
			table.AddRow("commit:", info["commit"])
			table.AddRow("buildDate:", info["build_date"])
			table.AddRow("goVersion:", info["go_version"])
			fmt.Fprintln(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
