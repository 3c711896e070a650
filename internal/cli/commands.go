package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillm/kis-trader/internal/api"
	"github.com/kirillm/kis-trader/internal/botstate"
	"github.com/kirillm/kis-trader/internal/config"
	"github.com/kirillm/kis-trader/internal/exchange"
	"github.com/kirillm/kis-trader/internal/strategy"
	"github.com/kirillm/kis-trader/internal/telegram"
	"github.com/kirillm/kis-trader/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	envFiles []string
	logLevel string
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "kis-trader",
		Short: "Threshold trading bot for Korea Investment & Securities",
		Long: `kis-trader polls the KIS quotation API for one symbol and flips between
FLAT and LONG with market orders when the price crosses the configured
buy and sell thresholds. A small HTTP API controls the bot at runtime.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newTokenCmd(opts))
	rootCmd.AddCommand(newPriceCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	return rootCmd
}

func (o *rootOptions) load() (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, utils.NewLogger(cfg.LogLevel), nil
}

// newRunCmd creates the service command
func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop and the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runService(ctx, cfg, logger)
		},
	}
}

// newTokenCmd checks credentials with a single token exchange
func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Exchange KIS app credentials for an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			client := exchange.NewKISClient(kisOptions(cfg, logger))
			token, err := client.Session().Credential(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Token OK (%s, %s)\n", maskToken(token), modeName(cfg))
			return nil
		},
	}
}

// newPriceCmd fetches one quote
func newPriceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "price [SYMBOL]",
		Short: "Fetch the current price of a symbol",
		Long: `Fetch the current price of a domestic stock.
Example: kis-trader price 005930`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			symbol := cfg.Bot.Symbol
			if len(args) == 1 {
				symbol = args[0]
			}

			client := exchange.NewKISClient(kisOptions(cfg, logger))
			quote, err := client.GetPrice(cmd.Context(), symbol)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s KRW\n", quote.Symbol, telegram.FormatKRW(quote.LastPrice))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "kis-trader v0.1.0")
		},
	}
}

// runService wires the loop, the API and the optional telegram bot, then
// blocks until ctx is cancelled or the API server fails.
func runService(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("Starting kis-trader (%s, %s)", modeName(cfg), cfg.KIS.BaseURL)

	client := exchange.NewKISClient(kisOptions(cfg, logger))
	store := botstate.NewStore(cfg.InitialBotConfig(), cfg.Bot.Autostart)

	var notify func(string)
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger, store)
		if err != nil {
			logger.Warn("Telegram disabled: %v", err)
		} else {
			notify = bot.SendMessage
			go bot.Start(ctx)
		}
	}

	scheduler := strategy.NewScheduler(client, store, cfg.Account(), cfg.Bot.TickInterval, logger, notify)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	server := api.NewServer(logger, store, cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown: %v", err)
	}

	logger.Info("kis-trader stopped")
	return nil
}

func kisOptions(cfg *config.Config, logger *utils.Logger) exchange.Options {
	return exchange.Options{
		BaseURL: cfg.KIS.BaseURL,
		Credentials: exchange.Credentials{
			AppKey:    cfg.KIS.AppKey,
			AppSecret: cfg.KIS.AppSecret,
		},
		RealTrading: cfg.KIS.RealTrading,
		Timeout:     cfg.KIS.RequestTimeout,
		RateLimit:   cfg.KIS.RateLimit,
		TokenExpiry: cfg.KIS.TokenExpiry,
		Logger:      logger,
	}
}

func modeName(cfg *config.Config) string {
	if cfg.KIS.RealTrading {
		return "real trading"
	}
	return "paper trading"
}

// maskToken оставляет только края токена
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
