package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/mdgateway/internal/config"
	"github.com/sawpanic/mdgateway/internal/httpclient"
	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/orderbook"
	"github.com/sawpanic/mdgateway/internal/scheduler"
	"github.com/sawpanic/mdgateway/internal/venue"
)

const (
	appName = "mdgateway"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "mdgateway streams and normalizes multi-venue cryptocurrency market data",
		Version: version,
	}
	rootCmd.PersistentFlags().String("sessions", "sessions.xml", "venue session XML file")
	rootCmd.PersistentFlags().String("runtime-config", "", "optional runtime-tuning YAML overlay")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")

	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to every active venue session and stream quotes",
		RunE:  runConnect,
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Connect, bootstrap, print a book snapshot for one instrument, and exit",
		RunE:  runSnapshot,
	}
	snapshotCmd.Flags().String("instrument", "BTC/USD", "instrument to snapshot (BASE/QUOTE)")
	snapshotCmd.Flags().Int("levels", 5, "number of price levels to print per side")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Connect briefly and report per-venue connection health",
		RunE:  runHealth,
	}

	rootCmd.AddCommand(connectCmd, snapshotCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("mdgateway exited with error")
		os.Exit(1)
	}
}

func setLogLevel(cmd *cobra.Command) {
	lvl, _ := cmd.Flags().GetString("log-level")
	if parsed, err := zerolog.ParseLevel(lvl); err == nil {
		zerolog.SetGlobalLevel(parsed)
	}
}

func buildManager(cmd *cobra.Command) (*venue.Manager, []model.CurrencyPair, *scheduler.Timer, error) {
	setLogLevel(cmd)

	sessionsPath, _ := cmd.Flags().GetString("sessions")
	runtimePath, _ := cmd.Flags().GetString("runtime-config")

	sessions, err := config.LoadSessions(sessionsPath)
	if err != nil {
		return nil, nil, nil, err
	}
	rt, err := config.LoadRuntimeConfig(runtimePath)
	if err != nil {
		return nil, nil, nil, err
	}

	book := orderbook.New(log.Logger)
	mgr := venue.NewManager(rt.StaleAfter)

	var instruments []model.CurrencyPair
	seen := make(map[model.CurrencyPair]bool)

	for _, s := range config.ActiveSessions(sessions) {
		if s.Kind() != "MD" {
			continue
		}
		restClient := httpclient.New(10, 20, s.Name, log.Logger)

		var v venue.Venue
		switch s.Venue() {
		case "Binance":
			v = venue.NewBinanceVenue(s.Host, s.Depth, restClient, log.Logger)
		case "Coinbase":
			v = venue.NewCoinbaseVenue(s.Host, s.APIKey, s.SecretKey, s.Passphrase, log.Logger)
		case "OKX":
			v = venue.NewOKXVenue(s.Host, s.APIKey, s.SecretKey, s.Passphrase, log.Logger)
		default:
			log.Warn().Str("session", s.Name).Str("venue", s.Venue()).Msg("unknown venue schema, skipping")
			continue
		}

		conn := venue.New(v, venue.GorillaDialer{}, book, log.Logger,
			venue.WithWorkers(rt.Workers), venue.WithQueueSize(rt.QueueSize))
		mgr.Add(conn)

		for _, sym := range s.InstrumentList() {
			cp, err := model.ParseCurrencyPair(sym)
			if err != nil || !cp.Valid() {
				log.Warn().Str("instrument", sym).Msg("invalid instrument in session config, skipping")
				continue
			}
			if !seen[cp] {
				seen[cp] = true
				instruments = append(instruments, cp)
			}
		}
	}

	timer := scheduler.New(1, log.Logger)
	timer.Start()
	timer.Schedule("orderbook-cleanup", func() { runCleanupSweep(book, rt.StaleAfter) },
		rt.CleanupInterval, rt.CleanupInterval, func(err error) {
			log.Error().Err(err).Msg("orderbook cleanup sweep panicked")
		})

	return mgr, instruments, timer, nil
}

// runCleanupSweep evicts stale quotes on both sides of every tracked
// instrument, the periodic cadence described in spec §6.
func runCleanupSweep(book *orderbook.OrderBook, staleAfter time.Duration) {
	for _, cp := range book.Instruments() {
		for _, isBid := range []bool{true, false} {
			if n := book.Cleanup(cp, isBid, staleAfter); n > 0 {
				log.Debug().Str("instrument", cp.String()).Bool("bid", isBid).Int("evicted", n).Msg("orderbook cleanup")
			}
		}
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	mgr, instruments, timer, err := buildManager(cmd)
	if err != nil {
		return err
	}
	defer timer.Stop()
	if len(instruments) == 0 {
		return fmt.Errorf("no active MD sessions with valid instruments found")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mgr.ConnectAll(ctx, instruments); err != nil {
		return err
	}
	log.Info().Strs("instruments", instrumentStrings(instruments)).Msg("connected, streaming until signal")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, disconnecting")
	mgr.DisconnectAll()
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	mgr, instruments, timer, err := buildManager(cmd)
	if err != nil {
		return err
	}
	defer timer.Stop()

	instrumentFlag, _ := cmd.Flags().GetString("instrument")
	levels, _ := cmd.Flags().GetInt("levels")

	target, err := model.ParseCurrencyPair(instrumentFlag)
	if err != nil || !target.Valid() {
		return fmt.Errorf("invalid --instrument %q", instrumentFlag)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := mgr.ConnectAll(ctx, instruments); err != nil {
		return err
	}
	defer mgr.DisconnectAll()

	time.Sleep(2 * time.Second) // allow bootstrap + a first burst of deltas to land

	for _, name := range []string{"Binance", "Coinbase", "OKX"} {
		c, ok := mgr.Get(name)
		if !ok {
			continue
		}
		fmt.Printf("== %s %s ==\n", name, target)
		for _, g := range c.Book().GetLevels(target, true, levels) {
			fmt.Printf("  bid %s\n", formatLevel(target, g))
		}
		for _, g := range c.Book().GetLevels(target, false, levels) {
			fmt.Printf("  ask %s\n", formatLevel(target, g))
		}
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	mgr, instruments, timer, err := buildManager(cmd)
	if err != nil {
		return err
	}
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mgr.ConnectAll(ctx, instruments); err != nil {
		return err
	}
	time.Sleep(3 * time.Second)
	mgr.DisconnectAll()

	for name, h := range mgr.HealthSummary() {
		fmt.Printf("%-10s state=%-12s last_message_age=%-10s exceptions=%d\n",
			name, h.State, h.LastMessageAge.Round(time.Millisecond), h.ExceptionCount)
	}
	if unhealthy := mgr.UnhealthyVenues(); len(unhealthy) > 0 {
		fmt.Printf("unhealthy: %s\n", strings.Join(unhealthy, ", "))
	}
	return nil
}

func formatLevel(cp model.CurrencyPair, g *orderbook.QuoteGroup) string {
	agg := g.Aggregate(false)
	return fmt.Sprintf("%.8f x %.8f (quotes=%d)", cp.CpipsToPrice(g.Price), model.HundredthsToVolume(agg.TotalVolume), len(g.Quotes()))
}

func instrumentStrings(instruments []model.CurrencyPair) []string {
	out := make([]string, len(instruments))
	for i, cp := range instruments {
		out[i] = cp.String()
	}
	return out
}
