package sqlchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

// usageArgs reports positional argument mistakes as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err: fmt.Errorf("%s: %w", cmd.Name(), err)}
		}
		return nil
	}
}

type httpError struct {
	status int
	body   []byte
}

func (e httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 on request failures and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		var usage usageError
		if errors.As(err, &usage) {
			_, _ = fmt.Fprintln(stderr)
			_, _ = fmt.Fprint(stderr, root.UsageString())
			return 2
		}
		return 1
	}
	return 0
}

type client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRootCommand(defaults Options) *cobra.Command {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	newClient := func() *client {
		httpClient := defaults.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: timeout}
		}
		return &client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: strings.TrimSpace(apiKey), httpClient: httpClient}
	}

	root := &cobra.Command{
		Use:           "sqlchatctl",
		Short:         "Talk to a running sqlchat server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError{err: errors.New("a command is required")}
			}
			return usageError{err: fmt.Errorf("unknown command %q", args[0])}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8501"), "sqlchat server base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	simple := []struct {
		use, short, method, path string
	}{
		{use: "health", short: "GET /v1/health", method: http.MethodGet, path: "/v1/health"},
		{use: "ready", short: "GET /v1/ready", method: http.MethodGet, path: "/v1/ready"},
		{use: "status", short: "Show the connection status", method: http.MethodGet, path: "/v1/session"},
		{use: "disconnect", short: "Close the connection and drop the history", method: http.MethodDelete, path: "/v1/session"},
		{use: "history", short: "Print the conversation history", method: http.MethodGet, path: "/v1/session/history"},
		{use: "queries", short: "Print the query log", method: http.MethodGet, path: "/v1/session/queries"},
	}
	for _, spec := range simple {
		root.AddCommand(&cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				body, err := newClient().do(cmd.Context(), spec.method, spec.path, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), body)
			},
		})
	}

	root.AddCommand(newConnectCommand(newClient))
	root.AddCommand(newSchemaCommand(newClient))
	root.AddCommand(newAskCommand(newClient))
	root.AddCommand(newExportCommand(newClient))
	return root
}

func newConnectCommand(newClient func() *client) *cobra.Command {
	var params struct {
		Driver   string `json:"driver"`
		Host     string `json:"host"`
		Port     string `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		Database string `json:"database"`
	}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a database connection on the server",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient().do(cmd.Context(), http.MethodPost, "/v1/session/connect", params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringVar(&params.Driver, "driver", "mysql", "database driver (mysql, postgres, duckdb)")
	cmd.Flags().StringVar(&params.Host, "host", "localhost", "database host")
	cmd.Flags().StringVar(&params.Port, "port", "", "database port (driver default when empty)")
	cmd.Flags().StringVar(&params.User, "user", "root", "database user")
	cmd.Flags().StringVar(&params.Password, "password", "", "database password")
	cmd.Flags().StringVar(&params.Database, "database", "", "database name, or a file path for duckdb")
	return cmd
}

func newSchemaCommand(newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description sent to the model",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient().do(cmd.Context(), http.MethodGet, "/v1/session/schema", nil)
			if err != nil {
				return err
			}
			var response struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return fmt.Errorf("decode schema response: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), response.Text)
			return err
		},
	}
}

func newAskCommand(newClient func() *client) *cobra.Command {
	var showSQL, showRows bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the connected database",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			body, err := newClient().do(cmd.Context(), http.MethodPost, "/v1/session/ask", map[string]string{"question": question})
			if err != nil {
				return err
			}
			var reply struct {
				SQL    string `json:"sql"`
				Answer string `json:"answer"`
				Result struct {
					Columns   []string `json:"columns"`
					Rows      [][]any  `json:"rows"`
					Truncated bool     `json:"truncated"`
				} `json:"result"`
			}
			if err := json.Unmarshal(body, &reply); err != nil {
				return fmt.Errorf("decode ask response: %w", err)
			}
			out := cmd.OutOrStdout()
			if showSQL {
				_, _ = fmt.Fprintf(out, "SQL: %s\n\n", reply.SQL)
			}
			if showRows && len(reply.Result.Columns) > 0 {
				table, err := renderTable(reply.Result.Columns, reply.Result.Rows)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, table)
				if reply.Result.Truncated {
					_, _ = fmt.Fprintf(out, "(truncated after %d rows)\n", len(reply.Result.Rows))
				}
				_, _ = fmt.Fprintln(out)
			}
			_, err = fmt.Fprintln(out, reply.Answer)
			return err
		},
	}
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the executed SQL before the answer")
	cmd.Flags().BoolVar(&showRows, "rows", false, "print the result rows as a table before the answer")
	return cmd
}

func newExportCommand(newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "export <turn>",
		Short: "Export a turn's result rows as Parquet",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			turn, err := strconv.Atoi(args[0])
			if err != nil || turn < 1 {
				return usageError{err: fmt.Errorf("invalid turn %q", args[0])}
			}
			body, err := newClient().do(cmd.Context(), http.MethodPost, fmt.Sprintf("/v1/session/turns/%d/export", turn), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, httpError{status: resp.StatusCode, body: body}
	}
	return body, nil
}

func renderTable(columns []string, rows [][]any) (string, error) {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, columns)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			if value == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(value)
		}
		data = append(data, cells)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func printJSON(w io.Writer, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(formatted))
	return err
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
