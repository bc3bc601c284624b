package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/config"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/reconcile"
	"github.com/capitalize-ai/ordering-assistant/internal/store"
	"github.com/capitalize-ai/ordering-assistant/internal/store/gormstore"
)

type consoleOptions struct {
	*rootOptions
	Demo       bool
	CustomerID string
}

func newConsoleCommand(root *rootOptions) *cobra.Command {
	opts := &consoleOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the assistant in the terminal",
		Long: `Chat with the assistant as one customer, reading messages from stdin.

With --demo the assistant runs against an in-memory store seeded with a
small grocery list, so no database is needed. Without a language model key
a rule-based interpreter understands commands such as "add 2 onions",
"remove onions", "change rice to 2" and "done".

Example:
  assistant console --demo
  assistant console --customer +919800000001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "use an in-memory store with demo inventory")
	cmd.Flags().StringVar(&opts.CustomerID, "customer", "+910000000000", "customer id (phone number) to chat as")

	return cmd
}

func runConsole(ctx context.Context, opts *consoleOptions, in io.Reader, out io.Writer) error {
	cfg := config.Load()

	log, err := newLogger(cfg, opts.LogLevel, true)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if opts.Demo || cfg.DatabaseURL == "" {
		mem := store.NewMemory()
		mem.SeedInventory(cfg.ShopID, store.DemoInventory())
		st = mem
		log.Info("using in-memory demo store", zap.String("shop_id", cfg.ShopID))
	} else {
		gs, err := gormstore.Open(cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer gs.Close()
		st = gs
	}

	interp, err := newInterpreter(cfg, log)
	if err != nil {
		return fmt.Errorf("create language model client: %w", err)
	}

	eng, err := buildEngine(cfg, st, reconcile.NewMemoryQueue(), interp, nil, log)
	if err != nil {
		return err
	}
	go eng.reconciler.Run(ctx)

	fmt.Fprintf(out, "Chatting as %s with %s. Type \"bye\" to finish.\n", opts.CustomerID, cfg.ShopName)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := eng.assistant.Handle(ctx, opts.CustomerID, line)
		if err != nil {
			if errors.Is(err, model.ErrBusy) {
				fmt.Fprintln(out, "(still working on your last message, try again)")
				continue
			}
			return err
		}
		fmt.Fprintln(out, reply)

		if len(eng.assistant.ListActive(ctx)) == 0 {
			// The conversation ended; drain what the order queued before exiting.
			eng.reconciler.Drain(context.WithoutCancel(ctx))
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if err := eng.assistant.End(ctx, opts.CustomerID); err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return nil
}
