package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ig-automation/internal/automation"
	"ig-automation/internal/config"
	"ig-automation/internal/database"
	"ig-automation/internal/flow"
	"ig-automation/internal/instagram"
	"ig-automation/internal/store"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "triggerctl",
		Usage: "Operate the Instagram automation trigger processor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			processCommand(),
			batchCommand(),
			resumeDueCommand(),
			importFlowCommand(),
			syncSequencesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func loadStore(c *cli.Context) (*config.Config, *store.Store, error) {
	if path := c.String("config"); path != "" {
		os.Setenv("CONFIG_FILE", path)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	config.SetupLogging(cfg)

	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store.New(db), nil
}

func loadEngine(c *cli.Context) (*automation.Engine, error) {
	cfg, s, err := loadStore(c)
	if err != nil {
		return nil, err
	}
	client := instagram.NewClient(cfg.GraphAPIBaseURL, cfg.GraphAPIRPS)
	return automation.NewEngine(s, client, automation.OptionsFromConfig(cfg)), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Process one trigger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "trigger", Aliases: []string{"t"}, Usage: "Trigger `ID`", Required: true},
		},
		Action: func(c *cli.Context) error {
			engine, err := loadEngine(c)
			if err != nil {
				return err
			}
			res, err := engine.Process(c.Context, c.String("trigger"))
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Process PENDING triggers, oldest first",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "campaign", Usage: "Restrict to campaign `ID` (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			engine, err := loadEngine(c)
			if err != nil {
				return err
			}
			var ids []string
			if c.IsSet("campaign") {
				ids = c.StringSlice("campaign")
			}
			sum, err := engine.ProcessBatch(c.Context, ids)
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
}

func resumeDueCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume-due",
		Usage: "Continue delayed flows whose resume time has passed",
		Action: func(c *cli.Context) error {
			engine, err := loadEngine(c)
			if err != nil {
				return err
			}
			sum, err := engine.RunDueResumes(c.Context, nil)
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
}

func importFlowCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-flow",
		Usage:     "Store a flow editor export as relational nodes and edges",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "Owner `ID` of the flow", Required: true},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one FILE argument")
			}
			raw, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			f, err := flow.ParseExport(raw, c.String("owner"))
			if err != nil {
				return err
			}
			_, s, err := loadStore(c)
			if err != nil {
				return err
			}
			if err := s.SaveFlow(c.Context, f); err != nil {
				return fmt.Errorf("failed to save flow: %w", err)
			}
			fmt.Printf("Imported flow %s (%d nodes, %d edges)\n", f.ID, len(f.Nodes), len(f.Edges))
			return nil
		},
	}
}

func syncSequencesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-sequences",
		Usage: "Move postgres id sequences past the current maximum ids",
		Action: func(c *cli.Context) error {
			_, s, err := loadStore(c)
			if err != nil {
				return err
			}
			return database.SyncSequences(s.DB())
		},
	}
}
