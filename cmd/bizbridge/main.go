package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/atu-ide/bizbridge/internal/app"
	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/config"
	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/menu"
	"github.com/atu-ide/bizbridge/internal/models"
	"github.com/atu-ide/bizbridge/internal/output"
)

var (
	configPath    string
	socketPath    string
	wsURL         string
	transportKind string
	timeout       time.Duration
	jsonOutput    bool
	noColor       bool
	debugMode     bool

	// Color functions
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	keyColor     = color.New(color.FgYellow)
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "bizbridge",
	Short: "Request/event bridge client for IDE business services",
	Long: `bizbridge talks to a business backend over a Unix socket or websocket.

It sends requests addressed by request id and service name, waits for the
correlated response envelope, and subscribes to events the backend pushes.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		opts := logging.Options{Debug: debugMode}
		if debugMode {
			opts.Also = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor, TimeFormat: time.TimeOnly}
		}
		if err := logging.Init(opts); err != nil {
			// logging is best effort, commands still work without a log file
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		}
		return nil
	},
}

// fetchCmd sends one request and prints the response envelope
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Send a request and print the response",
	Long: `Sends a request addressed by --request-id and --service with a JSON --data
payload. Failed responses are shown through the error router unless
--ignore-error is set. The command exits non-zero when the response is not
successful.`,
	Example: `  bizbridge fetch --request-id get_config --service project --data '{"name":"main"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID, _ := cmd.Flags().GetString("request-id")
		service, _ := cmd.Flags().GetString("service")
		data, _ := cmd.Flags().GetString("data")
		project, _ := cmd.Flags().GetString("project")
		ignoreError, _ := cmd.Flags().GetBool("ignore-error")

		head := models.RequestHead{RequestID: requestID, ServiceName: service}
		if err := head.Validate(); err != nil {
			printError(err.Error())
			return err
		}

		s, err := openServices(cmd)
		if err != nil {
			printError(fmt.Sprintf("Failed to connect: %v", err))
			return err
		}
		defer s.Close()

		return runFetch(cmd.Context(), s, head, data, project, ignoreError)
	},
}

// listenCmd subscribes to pushed events
var listenCmd = &cobra.Command{
	Use:   "listen <request_id:service_name>...",
	Short: "Print events pushed by the backend",
	Long: `Registers a listener for each event and prints every event the backend
pushes for it. With --metrics-addr the bridge metrics are served at /metrics
while listening.`,
	Example: `  bizbridge listen compile_all:compiler build_done:compiler --count 1`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		heads := make([]models.RequestHead, 0, len(args))
		for _, arg := range args {
			head, err := parseHead(arg)
			if err != nil {
				printError(err.Error())
				return err
			}
			heads = append(heads, head)
		}
		count, _ := cmd.Flags().GetInt("count")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		s, err := openServices(cmd)
		if err != nil {
			printError(fmt.Sprintf("Failed to connect: %v", err))
			return err
		}
		defer s.Close()

		if metricsAddr == "" {
			metricsAddr = s.Config.Metrics.Addr
		}
		if metricsAddr != "" {
			stop := serveMetrics(metricsAddr, s.MetricsHandler())
			defer stop()
		}

		return runListen(cmd.Context(), s, heads, count)
	},
}

// keyCmd prints the event key of a head
var keyCmd = &cobra.Command{
	Use:   "key <request_id> <service_name>",
	Short: "Print the event key listeners are registered under",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := models.EventKey(args[0], args[1])
		if jsonOutput {
			return printJSON(map[string]string{"key": key})
		}
		fmt.Println(key)
		return nil
	},
}

// MARK: - Menu Commands

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Inspect and run configured menu contributions",
}

// menuListCmd prints what the configured menus contribute
var menuListCmd = &cobra.Command{
	Use:   "list",
	Short: "List menu contributions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(menu.Flatten(cfg.Menus))
		}
		if len(cfg.Menus) == 0 {
			infoColor.Println("No menus configured")
			return nil
		}

		table := output.NewMenuTable()
		menu.Contribute(table, cfg.Menus)
		return table.Render(os.Stdout)
	},
}

// menuRunCmd fetches the request a menu item is bound to
var menuRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run the request bound to a menu item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		item, ok := menu.Find(cfg.Menus, args[0])
		if !ok {
			return fmt.Errorf("menu item not found: %s", args[0])
		}
		if item.Request == nil {
			return fmt.Errorf("menu item %s has no request", item.ID)
		}
		if !item.IsEnabled() {
			return fmt.Errorf("menu item %s is disabled", item.ID)
		}

		data, _ := cmd.Flags().GetString("data")
		ignoreError, _ := cmd.Flags().GetBool("ignore-error")

		s, err := app.New(cmd.Context(), cfg, app.Options{NoColor: noColor})
		if err != nil {
			printError(fmt.Sprintf("Failed to connect: %v", err))
			return err
		}
		defer s.Close()

		return runFetch(cmd.Context(), s, *item.Request, data, "", ignoreError)
	},
}

// MARK: - Config Commands

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for showing, validating and creating the bizbridge configuration.`,
}

// configShowCmd shows the effective config
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		format := "yaml"
		if jsonOutput {
			format = "json"
		}
		data, err := cfg.Marshal(format)
		if err != nil {
			return err
		}
		fmt.Println(strings.TrimRight(string(data), "\n"))
		return nil
	},
}

// configValidateCmd validates a config file
var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		successColor.Println("✓ Configuration is valid")
		fmt.Printf("  Transport: %s\n", cfg.Transport.Kind)
		fmt.Printf("  Menu commands: %d\n", len(menu.Flatten(cfg.Menus)))
		fmt.Printf("  Output formats: %d\n", len(cfg.Output))

		return nil
	},
}

// configInitCmd creates a default config
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}

		successColor.Printf("✓ Created default config at: %s\n", path)
		return nil
	},
}

const defaultConfig = `# bizbridge configuration
transport:
  kind: unix
  socket: /tmp/bizbridge.sock
  # kind: websocket
  # url: ws://127.0.0.1:7070/bridge
  connectAttempts: 3
  dialTimeout: 5s

session:
  projectId: ""
  requestTimeout: 30s

locale:
  language: en
  # bundles: ~/.config/bizbridge/i18n
  # watch: true

metrics:
  addr: ""

output:
  echo: object

menus:
  - id: compile
    label: Compile
    location: ["5_atu_compile"]
    order: "5"
    children:
      - id: compile.echo
        label: Echo Test
        location: ["5_atu_compile"]
        keybinding: ctrl+alt+e
        request:
          request_id: ping
          service_name: echo
`

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/bizbridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", client.DefaultSocketPath, "Unix socket path")
	rootCmd.PersistentFlags().StringVar(&wsURL, "url", "", "Websocket URL, implies --transport websocket")
	rootCmd.PersistentFlags().StringVar(&transportKind, "transport", client.KindUnix, "Transport: unix or websocket")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (0 waits for the reply)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(mockCmd)

	rootCmd.AddCommand(menuCmd)
	menuCmd.AddCommand(menuListCmd)
	menuCmd.AddCommand(menuRunCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)

	// fetch flags
	fetchCmd.Flags().String("request-id", "", "Request id (required)")
	fetchCmd.Flags().String("service", "", "Service name (required)")
	fetchCmd.Flags().String("data", "null", "JSON request data")
	fetchCmd.Flags().String("project", "", "Project id, overrides session.projectId")
	fetchCmd.Flags().Bool("ignore-error", false, "Do not route a failed response to the error display")
	fetchCmd.MarkFlagRequired("request-id")
	fetchCmd.MarkFlagRequired("service")

	// listen flags
	listenCmd.Flags().Int("count", 0, "Exit after this many events (0 listens until interrupted)")
	listenCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, overrides metrics.addr")

	// menu run flags
	menuRunCmd.Flags().String("data", "null", "JSON request data")
	menuRunCmd.Flags().Bool("ignore-error", false, "Do not route a failed response to the error display")

	// mock flags
	mockCmd.Flags().String("ws-addr", "", "Serve the websocket transport on this address instead of the Unix socket")
	mockCmd.Flags().StringArray("echo", []string{"ping:echo"}, "Heads answered by echoing the request data")
	mockCmd.Flags().StringArray("fail", nil, "Heads answered with a SERIOUS_ERROR envelope")
	mockCmd.Flags().String("push", "", "Head to push a heartbeat event on")
	mockCmd.Flags().Duration("push-every", 2*time.Second, "Heartbeat interval")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Close()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// Helper functions

// loadConfig loads the config file, or defaults when none exists, and
// applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		logging.Debug().Err(err).Msg("using default config")
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport.Kind = transportKind
	}
	if flags.Changed("socket") {
		cfg.Transport.Socket = socketPath
	}
	if flags.Changed("url") {
		cfg.Transport.Kind = client.KindWebsocket
		cfg.Transport.URL = wsURL
	}
	if flags.Changed("timeout") {
		cfg.Session.RequestTimeout = timeout.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openServices(cmd *cobra.Command) (*app.Services, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.Options{NoColor: noColor})
}

func runFetch(ctx context.Context, s *app.Services, head models.RequestHead, data, project string, ignoreError bool) error {
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("--data is not valid JSON")
	}

	body := config.Body(s.Config, json.RawMessage(data))
	if project != "" {
		body.ProjectID = project
	}

	opts := s.RequestOptions(ignoreError)
	resp, err := s.Bridge.FetchRaw(ctx, head, body, opts)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return err
	}

	if opts.ShouldReport(resp.Error) {
		s.Bridge.ShowErrorMessage(resp.Error)
	}

	if jsonOutput {
		err = printJSON(resp)
	} else {
		err = s.Render(os.Stdout, head, resp)
	}
	if err != nil {
		return err
	}

	if !models.IsSuccess(resp) {
		return errUnsuccessful
	}
	return nil
}

var errUnsuccessful = errors.New("response was not successful")

func runListen(ctx context.Context, s *app.Services, heads []models.RequestHead, count int) error {
	var received atomic.Int64
	enough := make(chan struct{})
	var enoughOnce sync.Once
	var printMu sync.Mutex

	for _, head := range heads {
		key := head.EventKey()
		d, err := s.Bridge.AddServerEventListener(head, func(resp *models.RawResponse) {
			printMu.Lock()
			if jsonOutput {
				printJSON(map[string]any{"event": key, "response": resp})
			} else {
				output.PrintEventLine(os.Stdout, key, resp)
			}
			printMu.Unlock()

			if resp.Error.IsError() {
				s.Bridge.ShowErrorMessage(resp.Error)
			}
			if count > 0 && received.Add(1) >= int64(count) {
				enoughOnce.Do(func() { close(enough) })
			}
		})
		if err != nil {
			return err
		}
		defer d.Dispose()
	}

	if !jsonOutput {
		output.PrintListenersTable(os.Stdout, s.Bridge.ListenerCounts())
		infoColor.Println("Listening, press Ctrl-C to stop")
	}

	select {
	case <-ctx.Done():
		return nil
	case <-enough:
		return nil
	case <-s.Bridge.Done():
		err := s.Channel.Err()
		if errors.Is(err, client.ErrClosed) {
			return nil
		}
		printError(fmt.Sprintf("Connection lost: %v", err))
		return fmt.Errorf("connection lost: %w", err)
	}
}

func serveMetrics(addr string, h http.Handler) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	keyColor.Print("Metrics: ")
	fmt.Printf("http://%s/metrics\n", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// parseHead parses "request_id:service_name"
func parseHead(s string) (models.RequestHead, error) {
	requestID, service, ok := strings.Cut(s, ":")
	head := models.RequestHead{RequestID: requestID, ServiceName: service}
	if !ok {
		return head, fmt.Errorf("invalid event %q, want request_id:service_name", s)
	}
	if err := head.Validate(); err != nil {
		return head, fmt.Errorf("invalid event %q: %w", s, err)
	}
	return head, nil
}

func printJSON(data interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printError(msg string) {
	if noColor {
		fmt.Fprintln(os.Stderr, "Error:", msg)
	} else {
		errorColor.Fprint(os.Stderr, "✗ Error: ")
		fmt.Fprintln(os.Stderr, msg)
	}
}
