package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguard/internal/whitelist"
	"github.com/jkaninda/shellguard/internal/workspace"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Inspect or edit the approved directories",
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the whitelisted directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withWhitelist(func(ctx context.Context, s *whitelist.Store) error {
			dirs, err := s.List(ctx)
			if err != nil {
				return err
			}
			return printLines(cmd.OutOrStdout(), dirs)
		})
	},
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <dir>...",
	Short: "Add directories to the whitelist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWhitelist(func(ctx context.Context, s *whitelist.Store) error {
			for _, dir := range args {
				if err := s.Add(ctx, dir); err != nil {
					return fmt.Errorf("adding %s: %w", dir, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", dir)
			}
			return nil
		})
	},
}

var whitelistRemoveCmd = &cobra.Command{
	Use:   "remove <dir>...",
	Short: "Remove directories from the whitelist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWhitelist(func(ctx context.Context, s *whitelist.Store) error {
			for _, dir := range args {
				if err := s.Remove(ctx, dir); err != nil {
					return fmt.Errorf("removing %s: %w", dir, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
			}
			return nil
		})
	},
}

func init() {
	whitelistCmd.AddCommand(whitelistListCmd, whitelistAddCmd, whitelistRemoveCmd)
}

// withWhitelist opens the configured whitelist store and runs fn against it.
func withWhitelist(fn func(ctx context.Context, s *whitelist.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	ws, err := workspace.New(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}
	store := openWhitelist(cfg, ws, logger)
	logger.Debug("whitelist opened", slog.String("path", store.Path()))
	return fn(context.Background(), store)
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
