package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solguard/riskengine/internal/cache"
	"github.com/solguard/riskengine/internal/config"
	"github.com/solguard/riskengine/internal/detectors"
	"github.com/solguard/riskengine/internal/exchange"
	"github.com/solguard/riskengine/internal/fusion"
	"github.com/solguard/riskengine/internal/labeldir"
	"github.com/solguard/riskengine/internal/oracle"
	"github.com/solguard/riskengine/internal/rpcpool"
	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/sigfetch"
	"github.com/solguard/riskengine/internal/tracer"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	mint := flag.String("mint", "", "token mint address to analyze")
	traceWallet := flag.String("trace", "", "wallet address to run a forensic funding trace on")
	bypass := flag.Bool("bypass", false, "skip the re-analysis cooldown")
	tui := flag.Bool("tui", false, "open the interactive report viewer")
	oracleURL := flag.String("oracle-url", "https://api.dexscreener.com", "market data oracle base URL")
	flag.Parse()

	if *mint == "" && *traceWallet == "" {
		fmt.Fprintln(os.Stderr, "usage: riskcli -mint <address> [-bypass] [-tui] | -trace <wallet>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config invalid")
	}

	store, err := cache.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cache init failed")
	}
	defer store.Close()

	whitelist := exchange.New(cfg.KnownExchangeAddresses)
	if persisted, err := store.LoadExchangeDetections(); err == nil {
		for _, addr := range persisted {
			whitelist.Promote(addr, "persisted", "cache")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; log.Info().Msg("shutting down..."); cancel() }()

	pool := rpcpool.New(cfg)
	pool.StartHeartbeat(ctx)
	fetcher := sigfetch.New(pool)
	directory := labeldir.New(cfg, whitelist)

	if *traceWallet != "" {
		runTrace(ctx, fetcher, directory, *traceWallet)
		return
	}

	md := oracle.NewCached(oracle.NewHTTPOracle(*oracleURL), store)
	agg := fusion.New(cfg, []detectors.Detector{
		detectors.NewBundleDetector(),
		detectors.NewAgedWalletDetector(),
		detectors.NewFundingDetector(directory),
		detectors.NewWhaleDetector(),
		detectors.NewSniperDetector(),
		detectors.NewTimeBasedDetector(),
	})
	engine := fusion.NewEngine(cfg, md, agg, fetcher, whitelist)
	engine.OnTokenAnalyzed = func(m string, level schema.RiskLevel) {
		log.Info().Str("mint", abbrev(m)).Str("risk", string(level)).Msg("📊 token analyzed")
	}

	printBanner(cfg)

	report, err := engine.AnalyzeMint(ctx, *mint, *bypass)
	if err != nil {
		if errors.Is(err, rpcpool.ErrInvalidInput) {
			log.Fatal().Err(err).Msg("invalid mint address")
		}
		log.Fatal().Err(err).Msg("analysis failed")
	}

	// Persist any exchange addresses auto-detected during this run.
	for _, d := range whitelist.Detections() {
		_ = store.RecordExchangeDetection(d.Address, d.Label, d.Source)
	}

	if *tui {
		if err := runTUI(report); err != nil {
			log.Error().Err(err).Msg("tui error")
		}
		return
	}
	printReport(report)
}

func runTrace(ctx context.Context, fetcher *sigfetch.Fetcher, directory *labeldir.Directory, wallet string) {
	tr := tracer.New(fetcher, directory)
	result, err := tr.Trace(ctx, wallet)
	if err != nil {
		log.Fatal().Err(err).Msg("trace failed")
	}
	printTrace(result)
}

func printBanner(cfg *config.Config) {
	fmt.Println("\n" + strings.Repeat("═", 60))
	fmt.Println("  🛡  SOLGUARD RISK ENGINE")
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("  Endpoints: %d\n", len(cfg.RPCEndpoints))
	fmt.Printf("  Timeout:   %s\n", cfg.AnalysisTimeout)
	fmt.Println(strings.Repeat("═", 60) + "\n")
}

func abbrev(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:8] + "..."
}
