package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/polychat/internal/auth"
	"github.com/manash/polychat/internal/config"
	"github.com/manash/polychat/internal/display"
	"github.com/manash/polychat/internal/keys"
	"github.com/manash/polychat/internal/kvstore"
	"github.com/manash/polychat/internal/media"
	"github.com/manash/polychat/internal/mode"
	"github.com/manash/polychat/internal/orchestrator"
	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/internal/provider/anthropic"
	"github.com/manash/polychat/internal/provider/gemini"
	"github.com/manash/polychat/internal/provider/mock"
	"github.com/manash/polychat/internal/provider/openai"
	"github.com/manash/polychat/internal/repl"
	"github.com/manash/polychat/internal/security"
	"github.com/manash/polychat/internal/session"
	"github.com/manash/polychat/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagEnvFile      string
	flagDB           string
	flagOutputDir    string
	flagProvider     string
	flagOffline      bool
	flagPremium      bool
	flagVerbose      bool
	flagGeminiKey    string
	flagOpenAIKey    string
	flagAnthropicKey string
)

type App struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	GetEnv func(string) string

	OpenStore    func(path string) (kvstore.Store, error)
	NewKeyStore  func() (*keys.Store, error)
	NewBackend   func(ctx context.Context, p models.ProviderType, cfg *provider.Config, logger *slog.Logger) (provider.Backend, error)
	ReadPassword func(prompt string) (string, error)
	PasswordCost int
}

func DefaultApp() *App {
	app := &App{
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
		GetEnv: os.Getenv,
		OpenStore: func(path string) (kvstore.Store, error) {
			return kvstore.OpenSQLite(path)
		},
		NewKeyStore: func() (*keys.Store, error) {
			return keys.NewStore()
		},
		NewBackend: newBackend,
	}
	app.ReadPassword = app.readPassword
	return app
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polychat",
		Short: "Chat with, compare and generate media from several AI models",
		Long: `polychat talks to a catalog of AI models from one place.

Without a subcommand it starts an interactive session. Chats are saved per
signed-in user; run 'polychat signup' or 'polychat login' first.

Examples:
  polychat
  polychat chat "explain goroutines"
  polychat compare --models gemini,claude "tabs or spaces?"
  polychat image "a lighthouse at dawn"
  polychat serve --addr 127.0.0.1:8787`,
		Args:          cobra.NoArgs,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, app)
		},
	}
	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagEnvFile, "env-file", config.DefaultEnvFile, "dotenv file to load before reading the environment")
	pf.StringVar(&flagDB, "db", "", "database path (defaults to POLYCHAT_DB or ~/.polychat/polychat.db)")
	pf.StringVarP(&flagOutputDir, "output-dir", "d", "", "directory for generated files (defaults to POLYCHAT_OUTPUT_DIR)")
	pf.StringVar(&flagProvider, "provider", "", "route every model to one provider (gemini, openai, anthropic, mock)")
	pf.BoolVar(&flagOffline, "offline", false, "answer with the built-in mock backend")
	pf.BoolVar(&flagPremium, "premium", false, "allow premium models and tasks")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&flagGeminiKey, "gemini-key", "", "Gemini API key (defaults to GEMINI_API_KEY or stored key)")
	pf.StringVar(&flagOpenAIKey, "openai-key", "", "OpenAI API key (defaults to OPENAI_API_KEY or stored key)")
	pf.StringVar(&flagAnthropicKey, "anthropic-key", "", "Anthropic API key (defaults to ANTHROPIC_API_KEY or stored key)")

	cmd.AddCommand(
		newChatCmd(app),
		newCompareCmd(app),
		newImageCmd(app),
		newVideoCmd(app),
		newBuildCmd(app),
		newModelsCmd(app),
		newSessionsCmd(app),
		newSignupCmd(app),
		newLoginCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newKeysCmd(app),
		newServeCmd(app),
	)
	return cmd
}

// runtime is everything a command needs once configuration is resolved.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  kvstore.Store
	engine *orchestrator.Engine
	saver  *media.Saver
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

func (app *App) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	cfg.Offline = cfg.Offline || flagOffline
	cfg.Premium = cfg.Premium || flagPremium
	cfg.Verbose = cfg.Verbose || flagVerbose
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (app *App) newLogger(cfg *config.Config) (*slog.Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(app.Err, &slog.HandlerOptions{Level: lvl})), nil
}

func (app *App) openStore(cfg *config.Config) (kvstore.Store, error) {
	path := cfg.DBPath
	if path == "" {
		p, err := kvstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	store, err := app.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func (app *App) newDirectory(store kvstore.Store) *auth.Directory {
	if app.PasswordCost > 0 {
		return auth.NewDirectory(store, auth.WithCost(app.PasswordCost))
	}
	return auth.NewDirectory(store)
}

// setup resolves configuration, opens storage and builds the engine with the
// signed-in user's sessions loaded.
func (app *App) setup(ctx context.Context) (*runtime, error) {
	cfg, err := app.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := app.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	gateway, err := app.newGateway(ctx, cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	store, err := app.openStore(cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(session.NewStore(store), logger)
	modes := mode.New(registry, mode.WithPremium(cfg.Premium))
	engine, err := orchestrator.New(gateway, sessions, modes, registry, orchestrator.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, err
	}

	user, err := app.newDirectory(store).Current(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if user != "" {
		engine.SwitchUser(ctx, user)
	}

	saver := media.NewSaver(cfg.OutputDir, media.WithURLPolicy(security.NewURLPolicy(cfg.StrictURLs)))
	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		engine: engine,
		saver:  saver,
	}, nil
}

type backendKey struct {
	flag, env, envVar string
}

// newGateway registers a backend for every provider the catalog routes to.
// Providers without a key are left out; their models fail with a
// "provider not configured" error when used.
func (app *App) newGateway(ctx context.Context, cfg *config.Config, registry *models.ModelRegistry, logger *slog.Logger) (provider.Gateway, error) {
	router := provider.NewRouter(logger)
	router.Register(mock.New())
	if cfg.Offline {
		return router, nil
	}

	keyStore, err := app.NewKeyStore()
	if err != nil {
		return nil, err
	}

	sources := map[models.ProviderType]backendKey{
		models.ProviderGemini:    {flagGeminiKey, cfg.GeminiAPIKey, "GEMINI_API_KEY"},
		models.ProviderOpenAI:    {flagOpenAIKey, cfg.OpenAIAPIKey, "OPENAI_API_KEY"},
		models.ProviderAnthropic: {flagAnthropicKey, cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY"},
	}
	baseURLs := map[models.ProviderType]string{
		models.ProviderOpenAI:    cfg.OpenAIBaseURL,
		models.ProviderAnthropic: cfg.AnthropicBaseURL,
	}

	for _, p := range []models.ProviderType{models.ProviderGemini, models.ProviderOpenAI, models.ProviderAnthropic} {
		if len(registry.ListByProvider(p)) == 0 {
			continue
		}
		src := sources[p]
		key, source, err := keyStore.Lookup(string(p), src.flag, src.env, src.envVar)
		if errors.Is(err, keys.ErrKeyNotFound) {
			logger.Warn("no API key, models on this provider are unavailable", "provider", p, "hint", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s key: %w", p, err)
		}
		logger.Debug("using API key", "provider", p, "source", source, "key", keys.MaskKey(key))

		b, err := app.NewBackend(ctx, p, &provider.Config{
			APIKey:     key,
			BaseURL:    baseURLs[p],
			TimeoutSec: cfg.TimeoutSec,
			Verbose:    cfg.Verbose,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s backend: %w", p, err)
		}
		router.Register(b)
	}
	return router, nil
}

func newBackend(ctx context.Context, p models.ProviderType, cfg *provider.Config, logger *slog.Logger) (provider.Backend, error) {
	switch p {
	case models.ProviderGemini:
		return gemini.New(ctx, cfg, logger)
	case models.ProviderOpenAI:
		return openai.New(ctx, cfg, logger)
	case models.ProviderAnthropic:
		return anthropic.New(ctx, cfg, logger)
	case models.ProviderMock:
		return mock.New(), nil
	}
	return nil, fmt.Errorf("%w: %s", provider.ErrProviderNotFound, p)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runInteractive(_ *cobra.Command, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	r := repl.New(&repl.Config{
		In:      app.In,
		Out:     app.Out,
		Err:     app.Err,
		Engine:  rt.engine,
		Saver:   rt.saver,
		Preview: display.New(app.Out, app.GetEnv),
	})
	err = r.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readPassword reads without echo from a terminal, or a line from In when
// input is piped.
func (app *App) readPassword(prompt string) (string, error) {
	fmt.Fprint(app.Err, prompt)
	if f, ok := app.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(app.Err)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(app.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
