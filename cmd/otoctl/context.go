package main

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"oto-insights-go/internal/app"
	"oto-insights-go/internal/config"
	"oto-insights-go/internal/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := os.Getenv("OTO_CONFIG")
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = *c.configFlag
		}
		c.config, c.configErr = config.LoadPath(path)
	})
	return c.config, c.configErr
}

// withApp wires the application for one command and closes it afterwards.
// Logs go to stderr so stdout stays parseable.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(cfg.Environment, cfg.LogLevel, cmd.ErrOrStderr())
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
