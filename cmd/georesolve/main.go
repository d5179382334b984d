// Command georesolve resolves one text per input line and writes one JSON
// object per line.
//
//	georesolve [-config path] [-workers n] [-strict] [-out file] [input]
//
// Input is read from stdin when no file is given.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/geo-recog/app/bootstrap"
	"github.com/geo-recog/app/config"
	"github.com/geo-recog/app/services"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/app.yaml", "path to the configuration file")
	workers := flag.Int("workers", 0, "concurrent resolutions, 0 means one per endpoint")
	strict := flag.Bool("strict", false, "report extraction failures instead of null fields")
	out := flag.String("out", "", "output file, stdout when empty")
	flag.Parse()

	if err := run(*configPath, *workers, *strict, *out, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "georesolve:", err)
		os.Exit(1)
	}
}

func run(configPath string, workers int, strict bool, outPath, inPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Batch.Workers = workers
	}

	logger, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	texts, err := readInput(inPath)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		logger.Info("No input")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	step := len(texts) / 20
	if step < 1 {
		step = 1
	}
	items := rt.Batch.ResolveBatch(ctx, texts, services.ResolveOptions{Strict: strict, UseCache: !strict}, func(done int) {
		if done%step == 0 || done == len(texts) {
			logger.Info("Progress", zap.Int("done", done), zap.Int("total", len(texts)))
		}
	})

	failed, err := writeItems(w, items)
	if err != nil {
		return err
	}
	logger.Info("Batch finished", zap.Int("total", len(items)), zap.Int("failed", failed))
	return ctx.Err()
}

func readInput(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return readLines(r)
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	var texts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return texts, nil
}

// writeItems writes items as NDJSON and counts those carrying an error.
func writeItems(w io.Writer, items []services.BatchItem) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
		}
		if err := enc.Encode(item); err != nil {
			return failed, fmt.Errorf("write output: %w", err)
		}
	}
	return failed, bw.Flush()
}
