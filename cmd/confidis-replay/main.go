// Command confidis-replay ingests one or more command-log text files
// (newline-separated lines in the textual command language) and replays
// them into a fresh belief engine and command log, concurrently parsing
// and validating each file before applying them in file order.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/waoai/confidis/internal/graph"
	"github.com/waoai/confidis/internal/lang"
	"github.com/waoai/confidis/internal/walog"
)

func main() {
	os.Exit(run())
}

func run() int {
	walDir := flag.String("wal-dir", "./data/wal", "directory for the replayed command log")
	workers := flag.Int("workers", 4, "number of files to parse concurrently")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: confidis-replay [-wal-dir dir] [-workers n] file [file...]")
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	parsed, err := parseFiles(files, *workers, logger)
	if err != nil {
		logger.Error("parse failed", "error", err)
		return 1
	}

	log, err := walog.Open(logger, *walDir, 0)
	if err != nil {
		logger.Error("open command log failed", "error", err)
		return 1
	}
	defer func() { _ = log.Close() }()

	engine := graph.New(logger)
	var applied, failed int
	for _, fileCommands := range parsed {
		for _, cmd := range fileCommands {
			if _, err := log.Append(cmd); err != nil {
				logger.Error("command log append failed", "error", err)
				return 1
			}
			if _, err := engine.ExecuteCommand(cmd); err != nil {
				logger.Warn("command execution failed, continuing", "error", err, "kind", cmd.Kind)
				failed++
				continue
			}
			applied++
		}
	}

	logger.Info("replay complete", "applied", applied, "failed", failed)
	return 0
}

// parseFiles reads and parses every file concurrently (bounded by workers),
// then returns each file's commands in file-argument order. Commands within
// a file always stay in their original line order; only parsing itself
// runs in parallel, never application.
func parseFiles(files []string, workers int, logger *slog.Logger) ([][]graph.Command, error) {
	results := make([][]graph.Command, len(files))
	var skipped atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i, path := range files {
		g.Go(func() error {
			cmds, n, err := parseFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			skipped.Add(int64(n))
			results[i] = cmds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if n := skipped.Load(); n > 0 {
		logger.Warn("skipped unparsable lines", "count", n)
	}
	return results, nil
}

// parseFile parses every non-empty, non-comment line of path. It returns
// the parsed commands and a count of lines skipped for failing to parse —
// a malformed line in a replay file is counted and dropped, not fatal,
// since stopping the whole replay over one bad line defeats the purpose of
// recovering everything that is still good.
func parseFile(path string) ([]graph.Command, int, error) {
	f, err := os.Open(path) //nolint:gosec // paths are operator-supplied CLI arguments
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var cmds []graph.Command
	var skipped int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := lang.Parse(line)
		if err != nil {
			skipped++
			continue
		}
		cmds = append(cmds, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, err
	}
	return cmds, skipped, nil
}
