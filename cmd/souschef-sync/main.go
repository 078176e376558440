// Command souschef-sync reads and changes SousChef recipes, wines and the
// user profile through the resource cache, or runs as a long-lived process
// that keeps the cache warm and exposes its health and metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/config"
	"github.com/illmade-knight/go-resourcesync/pkg/microservice"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const usage = `usage: souschef-sync [flags] <command> [args]

commands:
  recipes [id]                 list recipes, or show one
  wines [id]                   list wines, or show one
  me                           show the signed-in user
  ask <question>               ask the sommelier
  analyze-recipe <image>...    extract and save a recipe from photos (local paths or gs:// URLs)
  analyze-wine <image>...      ask the sommelier about label photos
  delete-recipe <id>
  delete-wine <id>
  delete-account <id>          delete the account and everything it owns
  serve                        keep the cache warm and serve /healthz, /metrics and /stats
`

var errUsage = errors.New("invalid usage")

func main() {
	fs := pflag.NewFlagSet("souschef-sync", pflag.ExitOnError)
	config.RegisterFlags(fs)
	prompt := fs.String("prompt", "", "extra instructions for analyze-recipe and analyze-wine")
	timeout := fs.Duration("wait", 2*time.Minute, "how long one-shot commands wait for a result")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n", fs.FlagUsages())
	}
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(cfg.Level()).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start.")
	}

	err = run(ctx, a, fs.Args(), *prompt, *timeout)
	a.Close()
	if errors.Is(err, errUsage) {
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Command failed.")
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app, args []string, prompt string, wait time.Duration) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	if cmd == "serve" {
		return serve(ctx, a)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	c := a.client

	switch cmd {
	case "recipes":
		if len(args) == 0 {
			w, err := c.Recipes.List()
			if err != nil {
				return err
			}
			defer w.Close()
			return printValue(w.Value(ctx))
		}
		w, err := c.Recipes.Get(args[0])
		if err != nil {
			return err
		}
		defer w.Close()
		return printValue(w.Value(ctx))
	case "wines":
		if len(args) == 0 {
			w, err := c.Wines.List()
			if err != nil {
				return err
			}
			defer w.Close()
			return printValue(w.Value(ctx))
		}
		w, err := c.Wines.Get(args[0])
		if err != nil {
			return err
		}
		defer w.Close()
		return printValue(w.Value(ctx))
	case "me":
		w, err := c.Users.Me()
		if err != nil {
			return err
		}
		defer w.Close()
		return printValue(w.Value(ctx))
	case "ask":
		if len(args) == 0 {
			return errUsage
		}
		return printValue(c.Wines.Ask(ctx, strings.Join(args, " ")))
	case "analyze-recipe", "analyze-wine":
		files, err := a.loader.Load(ctx, args...)
		if err != nil {
			return err
		}
		if cmd == "analyze-recipe" {
			return printValue(c.Recipes.AnalyzeImages(ctx, files, prompt))
		}
		return printValue(c.Wines.AnalyzeImages(ctx, files, prompt))
	case "delete-recipe", "delete-wine", "delete-account":
		if len(args) != 1 {
			return errUsage
		}
		switch cmd {
		case "delete-recipe":
			return c.Recipes.Delete(ctx, args[0])
		case "delete-wine":
			return c.Wines.Delete(ctx, args[0])
		default:
			return c.Users.Delete(ctx, args[0])
		}
	default:
		return errUsage
	}
}

func serve(ctx context.Context, a *app) error {
	server := microservice.NewServer(a.cfg.Server.HTTPPort, a.metrics.Handler(), a.client.Engine(), a.logger)
	if err := server.Start(); err != nil {
		return err
	}

	subscriber, err := a.subscribe(ctx)
	if err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}

	subs, err := a.client.Warm(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Cache warm-up did not complete.")
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()
	a.logger.Info().Int("warmed", len(subs)).Msg("Serving.")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if subscriber != nil {
		if err := subscriber.Stop(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Mutation subscriber did not stop cleanly.")
		}
	}
	return server.Shutdown(shutdownCtx)
}

func printValue(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
