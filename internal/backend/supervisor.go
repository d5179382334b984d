// Package backend owns the lifecycle of the local inference servers.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/geo-recog/internal/pool"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrModelNotFound is returned by Start when the model directory has no
// config.json.
var ErrModelNotFound = errors.New("model not found")

// Config describes the servers. URLs[i] is where server i answers; when
// Launch is set, server i is started on GPU i listening on BasePort+i.
type Config struct {
	URLs          []string
	Launch        bool
	BasePort      int
	ModelPath     string
	ServedName    string
	Python        string
	ExtraArgs     []string
	APIKey        string
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	StopGrace     time.Duration
}

// Probe reports whether the server at baseURL answers.
type Probe func(ctx context.Context, baseURL string) error

type process struct {
	index int
	cmd   *exec.Cmd
	done  chan struct{}
	err   error
}

// Supervisor starts the servers, waits until they are ready and stops them.
type Supervisor struct {
	cfg    Config
	probe  Probe
	logger *zap.Logger

	mu    sync.Mutex
	procs []*process
}

// New builds a Supervisor. Nothing runs until Start.
func New(cfg Config, logger *zap.Logger) *Supervisor {
	if cfg.Python == "" {
		cfg.Python = "python"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Minute
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = 5 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	return &Supervisor{cfg: cfg, probe: ModelsProbe(cfg.APIKey), logger: logger}
}

// WithProbe replaces the readiness check.
func (s *Supervisor) WithProbe(p Probe) *Supervisor {
	s.probe = p
	return s
}

// ModelsProbe lists models through the OpenAI-compatible API.
func ModelsProbe(apiKey string) Probe {
	if apiKey == "" {
		apiKey = "None"
	}
	return func(ctx context.Context, baseURL string) error {
		client := openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		)
		_, err := client.Models.List(ctx)
		return err
	}
}

// Start launches the servers when configured to and returns the endpoints
// once every one answers. On failure, launched servers are stopped.
func (s *Supervisor) Start(ctx context.Context) ([]pool.Endpoint, error) {
	if len(s.cfg.URLs) == 0 {
		return nil, fmt.Errorf("backend: no endpoints configured")
	}
	endpoints := make([]pool.Endpoint, len(s.cfg.URLs))
	for i, u := range s.cfg.URLs {
		endpoints[i] = pool.Endpoint{Index: i, BaseURL: u}
	}

	if s.cfg.Launch {
		if err := s.launch(); err != nil {
			s.Stop()
			return nil, err
		}
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(readyCtx)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error { return s.waitReady(gctx, ep) })
	}
	if err := g.Wait(); err != nil {
		s.Stop()
		return nil, err
	}

	s.logger.Info("Inference backends ready", zap.Int("count", len(endpoints)))
	return endpoints, nil
}

func (s *Supervisor) launch() error {
	if _, err := os.Stat(filepath.Join(s.cfg.ModelPath, "config.json")); err != nil {
		return fmt.Errorf("backend: %w at %s: %v", ErrModelNotFound, s.cfg.ModelPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cfg.URLs {
		port := s.cfg.BasePort + i
		args := []string{
			"-m", "vllm.entrypoints.openai.api_server",
			"--served-model-name", s.cfg.ServedName,
			"--model", s.cfg.ModelPath,
			"--port", strconv.Itoa(port),
		}
		args = append(args, s.cfg.ExtraArgs...)

		cmd := exec.Command(s.cfg.Python, args...)
		cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES="+strconv.Itoa(i))
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("backend: start server %d: %w", i, err)
		}

		p := &process{index: i, cmd: cmd, done: make(chan struct{})}
		go func() {
			p.err = cmd.Wait()
			close(p.done)
		}()
		s.procs = append(s.procs, p)
		s.logger.Info("Launched inference server",
			zap.Int("gpu", i),
			zap.Int("port", port),
			zap.Int("pid", cmd.Process.Pid))
	}
	return nil
}

func (s *Supervisor) waitReady(ctx context.Context, ep pool.Endpoint) error {
	proc := s.process(ep.Index)
	var lastErr error
	for attempt := 1; ; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyInterval)
		lastErr = s.probe(probeCtx, ep.BaseURL)
		cancel()
		if lastErr == nil {
			s.logger.Debug("Backend ready", zap.Int("endpoint", ep.Index), zap.Int("attempts", attempt))
			return nil
		}

		var exited <-chan struct{}
		if proc != nil {
			exited = proc.done
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("backend: endpoint %d at %s not ready: %w", ep.Index, ep.BaseURL, lastErr)
		case <-exited:
			return fmt.Errorf("backend: server %d exited before ready: %v", ep.Index, proc.err)
		case <-time.After(s.cfg.ReadyInterval):
		}
	}
}

func (s *Supervisor) process(index int) *process {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.procs {
		if p.index == index {
			return p
		}
	}
	return nil
}

// Running returns how many launched servers have not exited.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.procs {
		select {
		case <-p.done:
		default:
			n++
		}
	}
	return n
}

// Stop terminates every launched server, killing those still alive after
// the grace period. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	procs := s.procs
	s.procs = nil
	s.mu.Unlock()

	for _, p := range procs {
		select {
		case <-p.done:
			continue
		default:
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	timer := time.NewTimer(s.cfg.StopGrace)
	defer timer.Stop()
	expired := false
	for _, p := range procs {
		if !expired {
			select {
			case <-p.done:
				continue
			case <-timer.C:
				expired = true
			}
		}
		select {
		case <-p.done:
		default:
			s.logger.Warn("Killing inference server", zap.Int("gpu", p.index))
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	}
	if len(procs) > 0 {
		s.logger.Info("Inference servers stopped", zap.Int("count", len(procs)))
	}
}
