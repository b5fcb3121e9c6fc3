package cli

// This file contains the list command for displaying previous test runs.

import (
	"fmt"
	"strings"
	"time"

	"github.com/perfgo/e2erun/history"
	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	onlyFailed := ctx.Bool("failed")
	limit := ctx.Int("limit")

	root := ctx.String("history-dir")
	if root == "" {
		var err error
		if root, err = history.DefaultRoot(); err != nil {
			return err
		}
	}

	// Load all history entries, newest first
	entries, err := history.LoadEntries(a.logger, root)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	var filtered []history.Entry
	for _, entry := range entries {
		if !onlyFailed || entry.Run.Failed() {
			filtered = append(filtered, entry)
		}
	}

	out := a.stdout
	if len(filtered) == 0 {
		if onlyFailed {
			fmt.Fprintln(out, "No failed runs found")
		} else {
			fmt.Fprintln(out, "No runs found")
			fmt.Fprintf(out, "Runs are saved to %s/<timestamp>-<id>/\n", root)
		}
		return nil
	}

	// Apply limit
	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Fprintf(out, "\n=== History (%d total) ===\n\n", len(filtered))

	for _, entry := range display {
		run := entry.Run
		timestamp := run.Timestamp.Format("2006-01-02 15:04:05")
		duration := run.Duration.Round(time.Millisecond)

		status := "✓"
		if run.Failed() {
			status = "✗"
		}

		// Show short ID (first 8 chars)
		shortID := run.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Fprintf(out, "%s  %s  [%s]  %s  id=%s\n", status, timestamp, duration, run.Summary, shortID)
		fmt.Fprintf(out, "   Target: %s (%s", run.Target.URL, run.Target.Browser)
		if run.Target.Driver != "" {
			fmt.Fprintf(out, " via %s", run.Target.Driver)
		}
		fmt.Fprintln(out, ")")
		if run.Loop {
			fmt.Fprintf(out, "   Loop cycle: %d\n", run.Cycle)
		}
		if run.Git != nil && run.Git.Commit != "" {
			shortCommit := run.Git.Commit
			if len(shortCommit) > 8 {
				shortCommit = shortCommit[:8]
			}
			fmt.Fprintf(out, "   Commit: %s", shortCommit)
			if run.Git.Branch != "" {
				fmt.Fprintf(out, " (%s)", run.Git.Branch)
			}
			fmt.Fprintln(out)
		}
		for _, test := range run.Tests {
			if test.Verdict != "fail" {
				continue
			}
			fmt.Fprintf(out, "   FAIL %s after %d attempt(s): %s\n", test.Name, test.Attempts, firstLine(test.Error))
			for _, artifact := range test.Artifacts {
				fmt.Fprintf(out, "      %s: %s (%.1f KB)\n", artifact.Type, artifact.File, float64(artifact.Size)/1024)
			}
		}
		fmt.Fprintf(out, "   %s\n", entry.FullPath)
		fmt.Fprintln(out)
	}

	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
