package commands

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/coinchat/internal/models"
)

// NewModelsCommand returns the models subcommand.
func NewModelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the selectable models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: table, json or yaml",
				Value:   outputTable,
			},
		},
		Action: runModels,
	}
}

func runModels(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("output")
	if err := checkOutput(format); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	catalog := newCatalog(cfg.Models, models.NewRegistry(cfg.Models))
	opts := catalog.List(ctx)
	return writeModels(os.Stdout, format, opts, models.Resolve(opts, cfg.Models.Default))
}
