package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/bootstrap"
	"github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/printing"
	"github.com/erp/docservice/internal/interfaces/cli"
)

func main() {
	if err := cli.NewRootCmd(loadEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadEnv(ctx context.Context, configPath string) (*cli.Env, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	// stdout carries command output
	cfg.Log.Output = "stderr"
	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	stack, err := bootstrap.NewStorage(ctx, cfg, bootstrap.StorageOptions{}, log)
	if err != nil {
		return nil, err
	}

	env := &cli.Env{
		Mover: stack.Mover,
		Files: stack.Router,
		Close: func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			stack.Close(closeCtx)
			_ = logger.Sync(log)
		},
	}
	if stack.Sessions != nil {
		env.Sessions = stack.Sessions
	}
	if stack.Objects != nil {
		env.Bucket = stack.Objects
	}
	if dev, err := printing.NewDevOutput(cfg.DevOutput.Dir, log.Named("devoutput")); err == nil {
		env.Dev = dev
	} else {
		log.Warn("Dev output directory unavailable", zap.String("dir", cfg.DevOutput.Dir), zap.Error(err))
	}
	return env, nil
}
