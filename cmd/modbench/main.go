// Command modbench load tests a running moderator through its NATS check
// subjects and prints latency percentiles plus the moderator's own metrics.
//
// Usage:
//
//	modbench --nats-url nats://localhost:4222 --requests 5000 --concurrency 100
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/whisper/modbot/internal/bench"
	"github.com/whisper/modbot/internal/messaging"
)

// defaultCorpus mixes clean chat with disguised scam terms.
var defaultCorpus = []string{
	"good morning everyone",
	"anyone up for a game tonight?",
	"**FREE AIRDROP** claim now",
	"join the 1c0 presale",
	"g1ve4way for the first 100",
	"lol that was great",
	"check discord.gg/abcdef",
	"see you tomorrow",
}

func main() {
	def := bench.DefaultConfig()
	app := &cli.App{
		Name:  "modbench",
		Usage: "load test the moderator over NATS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "nats-url", Value: "nats://localhost:4222", EnvVars: []string{"NATS_URL"}},
			&cli.IntFlag{Name: "requests", Value: def.Requests, Usage: "total checks to send"},
			&cli.IntFlag{Name: "concurrency", Value: def.Concurrency, Usage: "maximum checks in flight"},
			&cli.DurationFlag{Name: "timeout", Value: def.Timeout, Usage: "per-check result timeout"},
			&cli.StringFlag{Name: "corpus", Usage: "file with one message per line (built-in mix when unset)"},
			&cli.StringFlag{Name: "metrics-url", Usage: "moderator /metrics URL to scrape during the run"},
			&cli.DurationFlag{Name: "scrape-interval", Value: time.Second},
		},
		Action: run,
	}
	app.RunAndExitOnError()
}

func run(cctx *cli.Context) error {
	log := logrus.New()

	texts := defaultCorpus
	if path := cctx.String("corpus"); path != "" {
		var err error
		if texts, err = readCorpus(path); err != nil {
			return err
		}
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cctx.String("nats-url")
	natsConfig.Name = "modbench"
	natsConfig.MaxReconnects = 0
	client, err := messaging.NewNATSClient(natsConfig, log)
	if err != nil {
		return err
	}
	defer client.Close()

	collector := bench.NewCollector()
	runner, err := bench.NewRunner(client, collector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scraper *bench.Scraper
	if u := cctx.String("metrics-url"); u != "" {
		scraper = bench.NewScraper(u, cctx.Duration("scrape-interval"))
		scraper.Start(ctx)
		collector.SetScraper(scraper)
	}

	cfg := bench.Config{
		Requests:    cctx.Int("requests"),
		Concurrency: cctx.Int("concurrency"),
		Timeout:     cctx.Duration("timeout"),
		Source:      "bench",
	}
	fmt.Printf("modbench: %d checks to %s (concurrency=%d, timeout=%s, corpus=%d lines)\n",
		cfg.Requests, natsConfig.URL, cfg.Concurrency, cfg.Timeout, len(texts))

	runErr := runner.Run(ctx, cfg, texts)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if scraper != nil {
		scraper.Stop()
	}
	collector.Report(os.Stdout)
	return nil
}

func readCorpus(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	return texts, nil
}
