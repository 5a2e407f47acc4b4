package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal"
	pkgconfig "github.com/starford/raido/pkg/config"
)

var configFlag = &cli.StringFlag{
	Name:        "config",
	Aliases:     []string{"c"},
	Usage:       "Path to config file (.yaml or .toml)",
	DefaultText: "config/config.yaml",
	Value:       "config/config.yaml",
	Sources:     cli.EnvVars("APP_CONFIG_FILE"),
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func build(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithForce(cmd.Bool("force")),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("build error: %w", err)
	}

	return nil
}

func watch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithForce(cmd.Bool("force")),
		internal.WithWatch(true),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}

	return nil
}

func main() {
	forceFlag := &cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "Rebuild everything regardless of the manifest",
	}

	cmd := &cli.Command{
		Name:  "raido",
		Usage: "Incremental static site builder for Markdown pages with optimized assets",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Build the site once",
				Flags:  []cli.Flag{forceFlag},
				Action: build,
			},
			{
				Name:   "watch",
				Usage:  "Build the site and rebuild on changes",
				Flags:  []cli.Flag{forceFlag},
				Action: watch,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
