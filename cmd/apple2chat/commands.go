package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"apple2chat/internal/logger"
	"apple2chat/internal/server"
	"apple2chat/internal/services"
	"apple2chat/internal/shell"
	"apple2chat/internal/version"
)

// newRootCmd builds the command tree. Flags are bound into v, which also reads
// APPLE2CHAT_* environment variables (e.g. APPLE2CHAT_ADDR for --addr).
func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apple2chat",
		Short: "Apple ][e styled chat interface for hosted LLMs",
		Long: `apple2chat serves a green-on-black Apple ][e styled chat page and relays
each conversation to a hosted chat-completion API (Groq by default).`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := logger.Configure(v.GetString("log-level"), v.GetString("log-file"), v.GetBool("test-mode")); err != nil {
				return fmt.Errorf("error configuring logger: %w", err)
			}
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Long:  `Start the web interface (the default when no command is given).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	rootCmd.RunE = serveCmd.RunE

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat from the terminal",
		Long:  `Start an interactive terminal chat using the same provider, models and settings as the web interface.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), v)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
		},
	}

	persistent := rootCmd.PersistentFlags()
	persistent.String("provider", "", "Completion provider (groq|openai|anthropic|gemini) [default: APPLE2CHAT_PROVIDER or groq]")
	persistent.String("model", "", "Default model for new sessions [default: provider default]")
	persistent.StringSlice("models", nil, "Restrict the selectable models to this comma-separated list")
	persistent.Bool("stream", true, "Stream replies as they are generated")
	persistent.String("log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	persistent.String("log-file", "", "Write logs to file instead of stderr")
	persistent.Bool("test-mode", false, "Run in deterministic test mode")

	// Serve flags live on the root too, since serve is the default command
	for _, flags := range []*cobra.Command{rootCmd, serveCmd} {
		f := flags.Flags()
		f.String("addr", server.DefaultAddr, "Listen address")
		f.String("theme-config", "", "Streamlit-style config.toml with a [theme] table")
		f.String("stylesheet", "", "Stylesheet file to serve instead of the built-in one")
		f.Bool("watch-style", false, "Reload the stylesheet when its file changes")
		f.Bool("allow-ui-key", true, "Allow entering an API key in the page")
		f.Float64("rate-limit", 2, "API requests per second per client (0 disables)")
		f.Int("rate-burst", 10, "API request burst per client")
	}

	v.SetEnvPrefix("APPLE2CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	cobra.CheckErr(v.BindPFlags(persistent))
	rootCmd.PreRunE = bindLocalFlags(v)
	serveCmd.PreRunE = bindLocalFlags(v)

	rootCmd.AddCommand(serveCmd, chatCmd, versionCmd)
	return rootCmd
}

// bindLocalFlags binds the running command's own flags, so root and serve
// share viper keys without overwriting each other's bindings.
func bindLocalFlags(v *viper.Viper) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return v.BindPFlags(cmd.Flags())
	}
}

// bootstrap initializes the services and applies the command-line provider
// and model settings on top of the loaded configuration.
func bootstrap(v *viper.Viper) error {
	if err := shell.InitializeServices(v.GetBool("test-mode")); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	configuration, err := services.Lookup[*services.ConfigurationService]("configuration")
	if err != nil {
		return err
	}
	catalog, err := services.Lookup[*services.CatalogService]("catalog")
	if err != nil {
		return err
	}

	sessions, err := services.Lookup[*services.ChatSessionService]("chat_session")
	if err != nil {
		return err
	}

	// An unset flag leaves the provider from the environment or .env files in place
	if provider := strings.ToLower(strings.TrimSpace(v.GetString("provider"))); provider != "" {
		if err := configuration.SetConfigValue("APPLE2CHAT_PROVIDER", provider); err != nil {
			return err
		}
	}
	provider := sessions.Provider()
	if _, err := catalog.GetProvider(provider); err != nil {
		return err
	}
	if model := strings.TrimSpace(v.GetString("model")); model != "" {
		if err := configuration.SetConfigValue("APPLE2CHAT_MODEL", model); err != nil {
			return err
		}
	}
	if models := v.GetStringSlice("models"); len(models) > 0 {
		if err := catalog.UpdateModels(provider, models); err != nil {
			return err
		}
	}

	logger.Info("apple2chat ready", "version", version.GetVersion(), "provider", provider)
	return nil
}

// newServer bootstraps the services, applies the theme options and builds the web server.
func newServer(ctx context.Context, v *viper.Viper) (*server.Server, error) {
	if err := bootstrap(v); err != nil {
		return nil, err
	}

	configuration, err := services.Lookup[*services.ConfigurationService]("configuration")
	if err != nil {
		return nil, err
	}
	sessions, err := services.Lookup[*services.ChatSessionService]("chat_session")
	if err != nil {
		return nil, err
	}
	allowUIKey := v.GetBool("allow-ui-key")
	if !allowUIKey && !configuration.HasAnyAPIKey(sessions.Provider()) {
		_, keyErr := configuration.GetAPIKey(sessions.Provider())
		return nil, fmt.Errorf("no usable API key and --allow-ui-key=false: %w", keyErr)
	}

	theme, err := services.Lookup[*services.ThemeService]("theme")
	if err != nil {
		return nil, err
	}
	if path := v.GetString("theme-config"); path != "" {
		if err := theme.LoadThemeFile(path); err != nil {
			return nil, err
		}
	}
	if path := v.GetString("stylesheet"); path != "" {
		if err := theme.LoadStylesheet(path); err != nil {
			return nil, err
		}
		if v.GetBool("watch-style") {
			if err := theme.WatchStylesheet(ctx); err != nil {
				logger.Warn("Stylesheet hot reload disabled", "error", err)
			}
		}
	} else if v.GetBool("watch-style") {
		logger.Warn("--watch-style needs --stylesheet, ignoring")
	}

	cfg := server.DefaultConfig()
	cfg.Addr = v.GetString("addr")
	cfg.AllowUIKey = allowUIKey
	cfg.Stream = v.GetBool("stream")
	cfg.RateLimit = rate.Limit(v.GetFloat64("rate-limit"))
	cfg.RateBurst = v.GetInt("rate-burst")
	return server.New(cfg)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(parent context.Context, v *viper.Viper) error {
	ctx, stop := signalContext(parent)
	defer stop()

	srv, err := newServer(ctx, v)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func runChat(parent context.Context, v *viper.Viper) error {
	ctx, stop := signalContext(parent)
	defer stop()

	if err := bootstrap(v); err != nil {
		return err
	}
	sh, err := shell.New(os.Stdout, v.GetBool("stream"))
	if err != nil {
		return err
	}
	return sh.Run(ctx)
}
