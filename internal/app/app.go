// Package app wires the pipeline loader and the operation queue into a
// runnable application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sudoplatform/sudo-operations-go/internal/ctxlog"
	"github.com/sudoplatform/sudo-operations-go/pipeline"
	"github.com/sudoplatform/sudo-operations-go/queue"
)

// App is one configured run of a pipeline.
type App struct {
	config *Config
	logger *slog.Logger
}

// NewApp builds an App writing logs to outW as configured.
func NewApp(outW io.Writer, cfg *Config) *App {
	return &App{
		config: cfg,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, outW),
	}
}

// Run loads the pipeline, builds its operations, and drives them to
// completion on a queue.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	p, err := pipeline.Load(ctx, a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	a.logger.Info("Pipeline loaded.", "operations", len(p.Steps))

	ops, err := p.Build(a.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	q := queue.New(queue.WithWorkers(a.config.WorkerCount))
	for _, op := range ops {
		q.Add(op)
	}
	return q.Run(ctx)
}
