package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mixelka/mailhub/internal/config"
	"github.com/mixelka/mailhub/internal/database"
	"github.com/mixelka/mailhub/internal/dispatch"
	"github.com/mixelka/mailhub/internal/email"
	"github.com/mixelka/mailhub/internal/filter"
	"github.com/mixelka/mailhub/internal/graph"
	"github.com/mixelka/mailhub/internal/httpapi"
	"github.com/mixelka/mailhub/internal/mailbox"
	"github.com/mixelka/mailhub/internal/notify"
	"github.com/mixelka/mailhub/internal/parser"
	"github.com/mixelka/mailhub/internal/public"
	"github.com/mixelka/mailhub/internal/scheduler"
	"github.com/mixelka/mailhub/internal/token"
)

var rootCmd = &cobra.Command{
	Use:           "mailhub",
	Short:         "Scheduled sender and shared inbox views for OAuth2 mail accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	registry *prometheus.Registry
	tokens   *token.Cache
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("database ready", "driver", cfg.DatabaseDriver)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		registry: registry,
		tokens:   token.NewCache(db, cfg.TokenURL, logger),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// backends returns the send and folder transports selected by MAIL_BACKEND
func (a *app) backends() (dispatch.Sender, mailbox.FolderSource) {
	if a.cfg.MailBackend == config.BackendIMAP {
		sender := email.NewSMTPSender(email.SMTPConfig{Server: a.cfg.SMTPServer, DialTimeout: a.cfg.DialTimeout}, a.logger)
		source := email.NewIMAPSource(email.IMAPConfig{Server: a.cfg.IMAPServer, DialTimeout: a.cfg.DialTimeout}, a.logger)
		return sender, source
	}
	client := graph.NewClient(a.cfg.GraphBaseURL, a.cfg.SendTimeout)
	return client, client
}

func (a *app) dispatcher() *dispatch.Dispatcher {
	sender, _ := a.backends()
	return dispatch.NewDispatcher(a.tokens, sender, a.cfg.SendTimeout, a.logger)
}

func (a *app) loop() *scheduler.Loop {
	opts := []scheduler.Option{scheduler.WithMetrics(scheduler.NewMetrics(a.registry))}
	if a.cfg.AlertsEnabled() {
		n, err := notify.NewTelegram(a.cfg.TelegramToken, a.cfg.TelegramAlertChatID, a.logger)
		if err != nil {
			a.logger.Warn("telegram alerts disabled", "error", err)
		} else {
			opts = append(opts, scheduler.WithNotifier(n))
		}
	}
	return scheduler.NewLoop(a.db, a.dispatcher(), a.logger, opts...)
}

func (a *app) resolver() *public.Resolver {
	_, source := a.backends()
	reader := mailbox.NewReader(a.tokens, source, a.cfg.FetchTimeout, a.logger)
	engine := filter.NewEngine(parser.NewNormalizer())
	return public.NewResolver(a.db, reader, engine, a.logger)
}

// withApp wraps a command body with app setup and teardown
func withApp(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), a, args)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the public HTTP server",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		runner, err := scheduler.NewRunner(a.loop(), a.cfg.Schedule, a.logger)
		if err != nil {
			return err
		}
		server := httpapi.NewServer(httpapi.Deps{
			Resolver: a.resolver(),
			Renderer: public.NewRenderer(a.cfg.Location()),
			DB:       a.db,
			Gatherer: a.registry,
			Logger:   a.logger,
		})

		a.logger.Info("starting mailhub", "backend", a.cfg.MailBackend, "schedule", a.cfg.Schedule)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runner.Run(ctx) })
		g.Go(func() error { return server.Run(ctx, a.cfg.HTTPAddr) })
		err = g.Wait()
		a.logger.Info("mailhub stopped")
		return err
	}),
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Process due send tasks once",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		s := a.loop().Tick(ctx)
		fmt.Printf("due=%d sent=%d failed=%d dead=%d skipped=%d store_errors=%d\n",
			s.Due, s.Sent, s.Failed, s.Dead, s.Skipped, s.StoreErrors)
		return nil
	}),
}

var (
	sendAccountFlag int64
	sendToFlag      string
	sendSubjectFlag string
	sendBodyFlag    string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message immediately",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		acc, err := a.db.GetAccountByID(ctx, sendAccountFlag)
		if err != nil {
			return fmt.Errorf("account %d: %w", sendAccountFlag, err)
		}
		res := a.dispatcher().Send(ctx, acc, sendToFlag, sendSubjectFlag, sendBodyFlag)
		if !res.OK {
			return fmt.Errorf("send failed: %s", res.Error)
		}
		fmt.Println("sent")
		return nil
	}),
}

var queryHTMLFlag bool

var queryCmd = &cobra.Command{
	Use:   "query CODE",
	Short: "Resolve a share code and print its messages",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		res, err := a.resolver().Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		renderer := public.NewRenderer(a.cfg.Location())
		if queryHTMLFlag {
			fmt.Print(renderer.RenderHTML(res))
		} else {
			fmt.Println(renderer.RenderText(res))
		}
		return nil
	}),
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: withApp(func(_ context.Context, a *app, _ []string) error {
		a.logger.Info("database migrations completed")
		return nil
	}),
}

func init() {
	sendCmd.Flags().Int64Var(&sendAccountFlag, "account", 0, "Account ID (required)")
	sendCmd.Flags().StringVar(&sendToFlag, "to", "", "Recipient address (required)")
	sendCmd.Flags().StringVar(&sendSubjectFlag, "subject", "", "Subject")
	sendCmd.Flags().StringVar(&sendBodyFlag, "body", "", "HTML body")
	sendCmd.MarkFlagRequired("account")
	sendCmd.MarkFlagRequired("to")

	queryCmd.Flags().BoolVar(&queryHTMLFlag, "html", false, "Render HTML instead of plain text")

	rootCmd.AddCommand(serveCmd, tickCmd, sendCmd, queryCmd, migrateCmd)
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
