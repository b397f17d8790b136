package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"capturepair/internal/api"
	"capturepair/internal/app"
	"capturepair/internal/config"
	"capturepair/internal/ipc"
	"capturepair/internal/logging"
)

type commandContext struct {
	configFlag   *string
	outputFlag   *string
	logLevelFlag *string
	localFlag    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	buildOptions []app.Option
}

func newCommandContext(configFlag, outputFlag, logLevelFlag *string, localFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		outputFlag:   outputFlag,
		logLevelFlag: logLevelFlag,
		localFlag:    localFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) outputFormat() outputFormat {
	if c.outputFlag == nil {
		return outputTable
	}
	format, err := parseOutputFormat(*c.outputFlag)
	if err != nil {
		return outputTable
	}
	return format
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) forceLocal() bool {
	return c.localFlag != nil && *c.localFlag
}

// dialDaemon returns a client when the daemon API answers.
func (c *commandContext) dialDaemon(ctx context.Context) (*ipc.Client, bool) {
	cfg := c.configValue()
	if cfg == nil || c.forceLocal() || strings.TrimSpace(cfg.Paths.APIBind) == "" {
		return nil, false
	}
	client, err := ipc.Dial(ctx, cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return nil, false
	}
	return client, true
}

// withService runs fn against the daemon when reachable, otherwise against an
// in-process runtime that is closed afterwards.
func (c *commandContext) withService(cmd *cobra.Command, fn func(api.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if client, ok := c.dialDaemon(ctx); ok {
		return fn(client)
	}

	rt, err := c.buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.Start(ctx)
	return fn(rt.API)
}

func (c *commandContext) buildRuntime() (*app.Runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.localLogger()
	if err != nil {
		return nil, err
	}
	rt, err := app.Build(cfg, logger, c.buildOptions...)
	if err != nil {
		return nil, fmt.Errorf("build runtime: %w", err)
	}
	return rt, nil
}

func (c *commandContext) localLogger() (*slog.Logger, error) {
	level := c.logLevel()
	if level == "" {
		level = "warn"
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
