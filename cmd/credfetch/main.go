package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/antchfx/xmlquery"
	"github.com/deploymenttheory/go-api-credential-dispatcher/coordinator"
	"github.com/deploymenttheory/go-api-credential-dispatcher/httpclient"
	"github.com/deploymenttheory/go-api-credential-dispatcher/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type fetchOptions struct {
	configPath string
	method     string
	data       string
	count      int
	logLevel   string
}

func newRootCommand() *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "credfetch [flags] <endpoint>",
		Short: "Send authenticated requests through the credential dispatcher",
		Long: `credfetch sends one or more concurrent requests to an endpoint. Tokens are obtained
with the configured OAuth2 grants and shared by all requests; a rejected token is replaced
and the request retried once.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFetch(ctx, opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a JSON or YAML config file (environment variables override it)")
	cmd.Flags().StringVarP(&opts.method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON request body")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of concurrent requests")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level override (LogLevelDebug, LogLevelInfo, ...)")

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetUserAgentHeader())
		},
	}
}

func loadConfig(opts fetchOptions) (*httpclient.ClientConfig, error) {
	var config *httpclient.ClientConfig
	if opts.configPath != "" {
		loaded, err := httpclient.LoadConfigFromFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	config, err := httpclient.LoadConfigFromEnv(config)
	if err != nil {
		return nil, err
	}
	// The flag wins over LOG_LEVEL; BuildClient validates the final value.
	if opts.logLevel != "" {
		config.LogLevel = opts.logLevel
	}
	return config, nil
}

func runFetch(ctx context.Context, opts fetchOptions, endpoint string, stdout, stderr io.Writer) error {
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	config, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var body any
	if opts.data != "" {
		if err := json.Unmarshal([]byte(opts.data), &body); err != nil {
			return fmt.Errorf("--data is not valid JSON: %w", err)
		}
	}

	client, err := httpclient.BuildClient(*config, false)
	if err != nil {
		return err
	}
	defer client.Close()

	var outMu sync.Mutex
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.count; i++ {
		g.Go(func() error {
			resp, err := client.Do(gctx, strings.ToUpper(opts.method), endpoint, body, nil)
			if err != nil {
				return err
			}
			outMu.Lock()
			defer outMu.Unlock()
			return enc.Encode(map[string]any{"status": resp.StatusCode, "body": printable(resp.Body)})
		})
	}
	err = g.Wait()

	m := client.Coordinator.Metrics()
	fmt.Fprintf(stderr, "dispatched=%d queued=%d replayed=%d retried401=%d generate=%d renew=%d refresh=%d\n",
		m.Dispatched, m.Queued, m.Replayed, m.Retried401,
		m.OperationsStarted[coordinator.OperationGenerate],
		m.OperationsStarted[coordinator.OperationRenew],
		m.OperationsStarted[coordinator.OperationRefresh])
	return err
}

// printable turns a decoded body into something encoding/json can print.
func printable(body any) any {
	switch b := body.(type) {
	case *xmlquery.Node:
		return b.OutputXML(true)
	case []byte:
		return string(b)
	}
	return body
}
