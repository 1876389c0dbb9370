// Package cli wires the dodo command tree to exchange clients.
package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"dodo/internal/config"
	"dodo/internal/convert"
	"dodo/internal/exchange"
	"dodo/internal/journal"
	"dodo/internal/keystore"
	"dodo/internal/logging"
	"dodo/internal/model"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type clientFactory func(name string, logger *zap.SugaredLogger, cfg *config.Config, creds keystore.Credentials) (exchange.Client, error)

// app holds the state shared by all commands of one invocation.
type app struct {
	configPath string
	out        io.Writer

	cfg      *config.Config
	logger   *zap.SugaredLogger
	closeLog func() error
	keys     *keystore.Store

	newClient   clientFactory
	openJournal func(ctx context.Context, logger *zap.SugaredLogger, cfg config.JournalConfig) (journal.Repository, func())
	rng         func() *rand.Rand
}

func newApp(out io.Writer) *app {
	return &app{
		out:         out,
		keys:        keystore.New(),
		newClient:   exchange.NewClient,
		openJournal: openJournal,
		rng: func() *rand.Rand {
			return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
		},
	}
}

// Execute runs the dodo command line.
func Execute(ctx context.Context) error {
	a := newApp(os.Stdout)
	defer a.close()
	return newRootCommand(a).ExecuteContext(ctx)
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dodo",
		Short:         "Trade on cryptocurrency exchanges from the command line",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/dodo/dodo.yaml)")

	root.AddCommand(
		newSetupCommand(a),
		newSupportedCommand(a),
		newRatioCommand(a),
		newConvertCommand(a),
	)
	for _, name := range exchange.Supported() {
		root.AddCommand(newExchangeCommand(a, name))
	}
	return root
}

func (a *app) load() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	a.cfg = &cfg

	logger, closeLog, err := logging.New(cfg.Settings.LogLevel, cfg.Settings.LogFile)
	if err != nil {
		return fmt.Errorf("cannot create logger: %w", err)
	}
	a.logger = logger.Sugar()
	a.closeLog = closeLog
	return nil
}

func newSetupCommand(a *app) *cobra.Command {
	var customerID string
	cmd := &cobra.Command{
		Use:   "setup <exchange> <api-key> <secret>",
		Short: "Store API keys of an exchange in the system keyring",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ok := exchange.Canonical(args[0])
			if !ok {
				return fmt.Errorf("unknown exchange: %s", args[0])
			}
			if err := a.keys.SetKey(name, args[1], args[2], customerID); err != nil {
				return err
			}
			a.logger.Infow("api keys stored", "exchange", name)
			fmt.Fprintf(cmd.OutOrStdout(), "API keys for %s saved.\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&customerID, "id", "", "customer id, required by some exchanges")
	return cmd
}

func newSupportedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supported-exchanges",
		Short: "List supported exchanges",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range exchange.Supported() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newRatioCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ratio <coin> <coins>",
		Short: "Price of one coin in terms of others, e.g. ratio btc eur,usd",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := convert.New(a.cfg.Settings)
			if err != nil {
				return err
			}
			rates, err := c.Ratio(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printRates(cmd.OutOrStdout(), rates)
			return nil
		},
	}
}

func newConvertCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <coin> <quantity> <coin>",
		Short: "Convert a quantity of one coin into another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			c, err := convert.New(a.cfg.Settings)
			if err != nil {
				return err
			}
			value, err := c.Convert(cmd.Context(), args[0], qty, args[2])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value.String())
			return nil
		},
	}
}

// dispatch adapts a Dispatcher call into a cobra RunE for the named exchange.
func (a *app) dispatch(name string, run func(ctx context.Context, d *Dispatcher, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		creds, err := a.keys.ReadKeys(name)
		if err != nil {
			return err
		}
		client, err := a.newClient(name, a.logger, a.cfg, creds)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		repo, closeJournal := a.openJournal(ctx, a.logger, a.cfg.Journal)
		defer closeJournal()

		d := NewDispatcher(a.logger, client, repo, a.cfg, a.rng(), cmd.OutOrStdout())
		return run(ctx, d, args)
	}
}

// openJournal connects the order journal. Failures disable it rather than the command.
func openJournal(ctx context.Context, logger *zap.SugaredLogger, cfg config.JournalConfig) (journal.Repository, func()) {
	if cfg.DSN == "" {
		return journal.Nop{}, func() {}
	}

	repo, err := journal.Connect(ctx, cfg.DSN)
	if err != nil {
		logger.Errorw("order journal disabled", "error", err)
		return journal.Nop{}, func() {}
	}
	if err := repo.Migrate(ctx); err != nil {
		logger.Errorw("order journal disabled", "error", err)
		repo.Close()
		return journal.Nop{}, func() {}
	}
	return repo, repo.Close
}

func newExchangeCommand(a *app, name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Trade on %s", name),
	}
	cmd.Aliases = exchange.Aliases(name)

	var depthLimit int
	depth := &cobra.Command{
		Use:   "depth <pair>",
		Short: "Show the order book",
		Args:  cobra.ExactArgs(1),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.Depth(ctx, args[0], depthLimit)
		}),
	}
	depth.Flags().IntVar(&depthLimit, "limit", 20, "number of levels per side")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "markets",
			Short: "List tradeable pairs",
			Args:  cobra.NoArgs,
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Markets(ctx)
			}),
		},
		depth,
		&cobra.Command{
			Use:   "spread <pair>",
			Short: "Show the bid ask spread",
			Args:  cobra.ExactArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Spread(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "volume <pair>",
			Short: "Show the 24h volume",
			Args:  cobra.ExactArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Volume(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "ticker <pair>",
			Short: "Show the 24h market summary",
			Args:  cobra.ExactArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Ticker(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "watch <pair>",
			Short: "Stream live prices until interrupted",
			Args:  cobra.ExactArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Watch(ctx, args[0])
			}),
		},
		newLimitCommand(a, name, model.SideBuy),
		newLimitCommand(a, name, model.SideSell),
		newMarketCommand(a, name, model.SideBuy),
		newMarketCommand(a, name, model.SideSell),
		newWorthCommand(a, name, model.SideBuy),
		newWorthCommand(a, name, model.SideSell),
		newLeveragedCommand(a, name, "long", model.SideBuy),
		newLeveragedCommand(a, name, "short", model.SideSell),
		&cobra.Command{
			Use:   "orders [pair]",
			Short: "Show open orders",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Orders(ctx, firstArg(args))
			}),
		},
		newCancelOrderCommand(a, name),
		newCancelAllCommand(a, name),
		&cobra.Command{
			Use:   "balance [coin]",
			Short: "Show balances of the trade account",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Balance(ctx, firstArg(args))
			}),
		},
		&cobra.Command{
			Use:   "deposit <coin>",
			Short: "Show the deposit address of a coin",
			Args:  cobra.ExactArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.Deposit(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "new-deposit-address <coin>",
			Short: "Generate a new deposit address for a coin",
			Args:  cobra.ExactArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.NewDepositAddress(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "deposit-history [coin]",
			Short: "Show recent deposits",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.DepositHistory(ctx, firstArg(args))
			}),
		},
		newWithdrawCommand(a, name),
		&cobra.Command{
			Use:   "withdraw-history [coin]",
			Short: "Show recent withdrawals",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
				return d.WithdrawHistory(ctx, firstArg(args))
			}),
		},
		newTopCommand(a, name),
	)
	return cmd
}

func newLimitCommand(a *app, name string, side model.Side) *cobra.Command {
	var (
		spread string
		ladder int
	)
	cmd := &cobra.Command{
		Use:   string(side) + " <pair> <rate> <amount>",
		Short: fmt.Sprintf("Place a limit %s order, optionally laddered", side),
		Example: fmt.Sprintf("  dodo %s %s btc-eur 60000 0.5\n  dodo %s %s xrp-btc 2400sat 100 --spread 50sat --ladder 5",
			name, side, name, side),
		Args: cobra.ExactArgs(3),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.Limit(ctx, side, args[0], args[1], args[2], spread, ladder)
		}),
	}
	cmd.Flags().StringVar(&spread, "spread", "", "scatter orders within this distance of rate")
	cmd.Flags().IntVar(&ladder, "ladder", 0, "number of orders to scatter the amount across, requires --spread")
	return cmd
}

func newMarketCommand(a *app, name string, side model.Side) *cobra.Command {
	return &cobra.Command{
		Use:   string(side) + "-market <pair> <amount>",
		Short: fmt.Sprintf("Place a market %s order", side),
		Args:  cobra.ExactArgs(2),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.Market(ctx, side, args[0], args[1])
		}),
	}
}

func newWorthCommand(a *app, name string, side model.Side) *cobra.Command {
	return &cobra.Command{
		Use:   string(side) + "-worth <pair> <target-price> <base-amount>",
		Short: fmt.Sprintf("Place a limit %s order at target price worth base-amount", side),
		Args:  cobra.ExactArgs(3),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.Worth(ctx, side, args[0], args[1], args[2])
		}),
	}
}

func newLeveragedCommand(a *app, name, use string, side model.Side) *cobra.Command {
	var leverage int
	cmd := &cobra.Command{
		Use:   use + " <pair> <rate> <amount>",
		Short: fmt.Sprintf("Place a leveraged %s order", side),
		Args:  cobra.ExactArgs(3),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.Leveraged(ctx, side, args[0], args[1], args[2], leverage)
		}),
	}
	cmd.Flags().IntVar(&leverage, "leverage", 0, "leverage, exchange default when unset")
	return cmd
}

func newCancelOrderCommand(a *app, name string) *cobra.Command {
	var pair string
	cmd := &cobra.Command{
		Use:   "cancel-order <id>",
		Short: "Cancel an open order",
		Args:  cobra.ExactArgs(1),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.CancelOrder(ctx, args[0], pair)
		}),
	}
	cmd.Flags().StringVar(&pair, "pair", "", "pair of the order, required by some exchanges")
	return cmd
}

func newCancelAllCommand(a *app, name string) *cobra.Command {
	var pair string
	cmd := &cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel all open orders",
		Args:  cobra.NoArgs,
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.CancelAll(ctx, pair)
		}),
	}
	cmd.Flags().StringVar(&pair, "pair", "", "only cancel orders of this pair")
	return cmd
}

func newWithdrawCommand(a *app, name string) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "withdraw <coin> <amount> <address>",
		Short: "Withdraw coins to an address or configured alias",
		Args:  cobra.ExactArgs(3),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			return d.Withdraw(ctx, args[0], args[1], args[2], tag)
		}),
	}
	cmd.Flags().StringVar(&tag, "tag", "", "destination tag or memo")
	return cmd
}

func newTopCommand(a *app, name string) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "top [quote]",
		Short: "List the markets of a quote coin with the most 24h volume",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.dispatch(name, func(ctx context.Context, d *Dispatcher, args []string) error {
			quote := firstArg(args)
			if quote == "" {
				quote = "btc"
			}
			return d.Top(ctx, quote, n)
		}),
	}
	cmd.Flags().IntVar(&n, "n", DefaultTopMarkets, "number of markets to list")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
