package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gregLibert/emv-reader/internal/config"
	"github.com/gregLibert/emv-reader/internal/reader"
	"github.com/gregLibert/emv-reader/pkg/emv"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
)

type globalFlags struct {
	flagset            *flag.FlagSet
	configPath         string
	readerName         string
	trace              bool
	abortOnRecordError bool
	logLevel           string
	logFormat          string
}

func newGlobalFlags() *globalFlags {
	f := &globalFlags{
		flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	f.flagset.StringVar(&f.configPath, "config", "", "YAML configuration file")
	f.flagset.StringVar(
		&f.readerName,
		"reader",
		"",
		"use the first reader whose name contains this text",
	)
	f.flagset.BoolVar(&f.trace, "trace", false, "print a report of every APDU exchange")
	f.flagset.BoolVar(
		&f.abortOnRecordError,
		"abort-on-record-error",
		false,
		"fail on the first unreadable AFL record instead of skipping it",
	)
	f.flagset.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	f.flagset.StringVar(&f.logFormat, "log-format", "", "text or json")
	return f
}

// apply overrides the configuration with the flags given on the command line.
func (f *globalFlags) apply(cfg *config.Config) error {
	f.flagset.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "reader":
			cfg.Reader.Name = f.readerName
		case "trace":
			cfg.Discovery.Trace = f.trace
		case "abort-on-record-error":
			cfg.Discovery.AbortOnRecordError = f.abortOnRecordError
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
	return cfg.Validate()
}

func main() {
	f := newGlobalFlags()
	if err := f.flagset.Parse(os.Args[1:]); err != nil {
		fmt.Printf("failed to parse command args: %s\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := f.apply(cfg); err != nil {
		fmt.Printf("ERROR: invalid flags: %s\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	os.Exit(run(cfg, logger))
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	// --- 1. Hardware Setup ---
	card, err := reader.Open(cfg.Reader, logger)
	if err != nil {
		logger.Error("cannot reach a card", "error", err)
		return 1
	}
	defer func() {
		if err := card.Close(); err != nil {
			logger.Warn("failed to close card connection", "error", err)
		}
	}()

	fmt.Printf(">> Using reader: %s\n", card.Name)

	// --- 2. Logic Setup ---
	client := iso7816.NewClient(card)
	client.Logger = logger
	client.MaxGetResponse = cfg.Discovery.MaxGetResponse

	// Both were checked by config validation.
	cls, _ := cfg.Card.Class()
	aids, _ := cfg.Card.AIDs()

	opts := []emv.Option{
		emv.WithClass(cls),
		emv.WithCandidateAIDs(aids...),
		emv.WithMaxDirectoryRecords(cfg.Discovery.MaxDirectoryRecords),
		emv.WithAbortOnRecordError(cfg.Discovery.AbortOnRecordError),
		emv.WithLogger(logger),
	}
	if cfg.Discovery.Trace {
		opts = append(opts, emv.WithTraceWriter(os.Stdout))
	}

	// --- 3. Execution Flow ---
	res, err := emv.NewSession(client, opts...).Run()

	fmt.Println()
	fmt.Println(res.Describe())

	if err != nil {
		fmt.Printf("\n>> Discovery failed: %s\n", err)
		return 1
	}
	if !res.Found() {
		fmt.Println("\n>> No payment application found.")
		return 0
	}

	fmt.Println("\n>> Discovery Finished Successfully")
	return 0
}
