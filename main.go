package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/exchange/registry"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
)

const usage = `usage: exchangeflow [flags] <command>

commands:
  markets     list the markets of -exchange
  ticker      fetch the ticker of -symbol on -exchange
  orderbook   fetch the order book of -symbol on -exchange
  trades      fetch recent public trades of -symbol on -exchange
  balance     fetch the account balance on -exchange (needs credentials)
  collect     poll the configured exchanges and ship rows to S3 and Kafka
  serve       expose the adapters over HTTP

flags:
`

type cliFlags struct {
	configPath string
	exchange   string
	symbol     string
	limit      int
	since      int64
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	var f cliFlags
	flag.StringVar(&f.configPath, "config", config.DefaultPath, "path to configuration file")
	flag.StringVar(&f.exchange, "exchange", "", "exchange id for one-shot commands")
	flag.StringVar(&f.symbol, "symbol", "", "unified symbol, e.g. BTC/USDT")
	flag.IntVar(&f.limit, "limit", 0, "maximum number of levels or trades (0 = exchange default)")
	flag.Int64Var(&f.since, "since", 0, "only trades at or after this unix millisecond timestamp")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}
	if len(cfg.Logging.Fields) > 0 {
		log.AddHook(logger.NewFieldsHook(cfg.Logging.Fields))
	}
	metrics.Configure(cfg.Metrics)

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"command": command,
		"env":     env,
	}).Info("starting exchangeflow")

	if config.IsProductionLike(env) {
		for _, id := range cfg.EnabledExchanges() {
			if !cfg.Exchanges[id].HasCredentials() {
				log.WithExchange(id).Warn("exchange enabled without credentials; private endpoints will fail")
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, command, f); err != nil {
		log.WithError(err).WithFields(logger.Fields{"command": command}).Error("command failed")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, f cliFlags) error {
	switch command {
	case "collect", "serve":
		startTelemetry(ctx, cfg)
		exchanges, err := registry.FromConfig(cfg)
		if err != nil {
			return err
		}
		if len(exchanges) == 0 {
			return fmt.Errorf("no exchange is enabled")
		}
		if command == "collect" {
			return collect(ctx, cfg, exchanges)
		}
		return serve(ctx, cfg, exchanges)
	case "markets", "ticker", "orderbook", "trades", "balance":
		ex, err := oneShotExchange(cfg, f.exchange)
		if err != nil {
			return err
		}
		result, err := fetch(ctx, ex, command, f)
		if err != nil {
			return err
		}
		return printJSON(result)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func startTelemetry(ctx context.Context, cfg *config.Config) {
	log := logger.GetLogger()
	if strings.EqualFold(cfg.Logging.Level, "report") {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}
	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Listen)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
}

// oneShotExchange builds the adapter named by -exchange. The exchange does
// not need to be enabled; its section only supplies credentials and options.
func oneShotExchange(cfg *config.Config, id string) (exchange.Exchange, error) {
	if id == "" {
		return nil, fmt.Errorf("-exchange is required (one of %s)", strings.Join(registry.IDs(), ", "))
	}
	return registry.New(id, exchange.OptionsFromConfig(cfg, id))
}

func fetch(ctx context.Context, ex exchange.Exchange, command string, f cliFlags) (any, error) {
	if command != "markets" && command != "balance" && f.symbol == "" {
		return nil, fmt.Errorf("-symbol is required for %s", command)
	}
	switch command {
	case "markets":
		return ex.LoadMarkets(ctx, false)
	case "ticker":
		return ex.FetchTicker(ctx, f.symbol)
	case "orderbook":
		return ex.FetchOrderBook(ctx, f.symbol, f.limit)
	case "trades":
		var since *int64
		if f.since > 0 {
			since = &f.since
		}
		return ex.FetchTrades(ctx, f.symbol, since, f.limit)
	case "balance":
		return ex.FetchBalance(ctx)
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
