package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"technical-analyst/config"
	"technical-analyst/internal/api"
	"technical-analyst/internal/app"
	"technical-analyst/internal/client"
	"technical-analyst/internal/livepoll"
	"technical-analyst/internal/scheduler"
	"technical-analyst/internal/search"
	"technical-analyst/models"
	"technical-analyst/observability"
)

// Build-time variables (set via -ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "technical-analyst",
	Short:         "Stock charting dashboard with technical indicators",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Server.LogLevel
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			level = override
		}
		observability.InitLoggerWithLevel(cfg.Server.Production, observability.ParseLevel(level))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server", "", "query a running server at this base URL instead of in-process sources")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(searchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("technical-analyst %s (%s)\n", version, commit)
	},
}

// --- Serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.Build(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to start application: %w", err)
		}

		var jobs *scheduler.Scheduler
		if cfg.Scheduler.Enabled {
			jobs = scheduler.New(application, observability.GetMetrics(), cfg.SourceTimeout())
			if err := jobs.Register(cfg.Scheduler); err != nil {
				return err
			}
			jobs.Start()
			observability.Info("scheduler started", "jobs", jobs.Entries())
		}

		handler := api.NewHandler(application, cfg)
		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewRouter(handler, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			observability.Info("starting server", "addr", cfg.Server.Addr, "version", version)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			observability.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if jobs != nil {
				jobs.Stop()
			}
			err := server.Shutdown(shutdownCtx)
			application.Shutdown(shutdownCtx)
			return err
		})

		if err := g.Wait(); err != nil {
			return err
		}
		observability.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from HTTP_ADDR or PORT)")
}

// --- Quote ---

var quoteCmd = &cobra.Command{
	Use:   "quote [ticker]",
	Short: "Print the latest quote for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		if err := api.ValidateSymbol(ticker); err != nil {
			return err
		}

		src, closeFn, err := quoteSource(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SourceTimeout())
		defer cancel()
		q, err := src.Quote(ctx, ticker)
		if err != nil {
			return err
		}
		printUpdate(livepoll.NewUpdate(ticker, *q))
		return nil
	},
}

// --- Watch ---

var watchCmd = &cobra.Command{
	Use:   "watch [ticker]",
	Short: "Refresh the quote for a ticker until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		if err := api.ValidateSymbol(ticker); err != nil {
			return err
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = cfg.LivePoll.Interval
		}

		src, closeFn, err := quoteSource(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		poller := livepoll.New(src, livepoll.DisplayFunc(printUpdate), ticker, interval, observability.GetMetrics())
		poller.Tick(ctx)
		poller.Start(ctx)
		<-ctx.Done()
		poller.Stop()
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "refresh interval (default from LIVE_POLL_INTERVAL_SECONDS)")
}

// --- Search ---

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Interactive ticker suggestions on stdin",
	Long: `Reads one query per line and prints suggestions as the dashboard would.
Lines /down, /up, /enter and /esc act like the arrow, Enter and Escape keys.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var searcher search.Searcher
		if base, _ := cmd.Flags().GetString("server"); base != "" {
			searcher = client.New(base, nil)
		} else {
			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Shutdown(context.Background())
			searcher = appSearcher{application}
		}

		ctl := search.New(searcher, stdoutView{}, search.Config{Debounce: cfg.Search.Debounce})
		defer ctl.Close()

		keys := map[string]string{"/down": search.KeyArrowDown, "/up": search.KeyArrowUp, "/enter": search.KeyEnter, "/esc": search.KeyEscape}
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if key, ok := keys[strings.TrimSpace(line)]; ok {
				ctl.Key(key)
				continue
			}
			ctl.Input(line)
		}
		// piped input ends before the last debounce fires
		ctl.Flush()
		return scanner.Err()
	},
}

type appSearcher struct{ a *app.App }

func (s appSearcher) Search(_ context.Context, query string) ([]models.SuggestionItem, error) {
	return s.a.Search(query), nil
}

type stdoutView struct{}

func (stdoutView) ShowSuggestions(rows []search.Row) {
	for _, r := range rows {
		fmt.Printf("%2d  %-10s %-32s %s\n", r.Index, r.Ticker, r.Name, r.Market)
	}
}

func (stdoutView) ShowNoResults(text string) { fmt.Println(text) }
func (stdoutView) Hide()                     {}
func (stdoutView) Highlight(index int)       { fmt.Printf("> %d\n", index) }
func (stdoutView) Navigate(target string)    { fmt.Println(target) }

// quoteSource returns a remote client when --server is set, otherwise an
// in-process application
func quoteSource(cmd *cobra.Command) (livepoll.QuoteFetcher, func(), error) {
	if base, _ := cmd.Flags().GetString("server"); base != "" {
		return client.New(base, nil), func() {}, nil
	}
	application, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return application, func() { application.Shutdown(context.Background()) }, nil
}

func printUpdate(u livepoll.Update) {
	fmt.Printf("%s  %s  %s\n", u.Ticker, u.Price, u.Percent)
}
