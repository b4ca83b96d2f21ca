// README: Command-line runner: executes a scenario locally or exports the generated city as DOT.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"carpool/internal/infra"
	"carpool/internal/modules/directory"
	"carpool/internal/modules/report"
	"carpool/internal/modules/simulation"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "carpool-sim",
		Usage: "Run decentralized ride-pooling negotiations on a generated city",
		Commands: []*cli.Command{
			runCmd,
			graphCmd,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}
}

var scenarioFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "scenario",
		Aliases: []string{"s"},
		Usage:   "specify the scenario YAML (defaults to the built-in scenario)",
	},
	&cli.IntFlag{
		Name:  "drivers",
		Value: -1,
		Usage: "override the number of drivers",
	},
	&cli.IntFlag{
		Name:  "riders",
		Value: -1,
		Usage: "override the number of riders",
	},
	&cli.Int64Flag{
		Name:  "seed",
		Usage: "override the scenario and world seed (0 keeps the file's)",
	},
}

func loadScenario(ctx *cli.Context) (simulation.Scenario, error) {
	sc := simulation.DefaultScenario()
	if path := ctx.String("scenario"); path != "" {
		var err error
		if sc, err = simulation.LoadScenario(path); err != nil {
			return sc, err
		}
	}
	if n := ctx.Int("drivers"); n >= 0 {
		sc.Drivers = n
	}
	if n := ctx.Int("riders"); n >= 0 {
		sc.Riders = n
	}
	if seed := ctx.Int64("seed"); seed != 0 {
		sc.Seed = seed
		sc.World.Seed = seed
	}
	return sc, sc.Validate()
}

var runCmd = &cli.Command{
	Name:    "run",
	Usage:   "Run a scenario and print the summary",
	Aliases: []string{"r"},
	Flags: append(append([]cli.Flag{}, scenarioFlags...),
		&cli.StringFlag{
			Name:  "out",
			Usage: "specify an SQLite file to store every actor's result",
		},
		&cli.StringFlag{
			Name:    "redis",
			EnvVars: []string{"CARPOOL_REDIS_ADDR"},
			Usage:   "specify a Redis address for the actor directory (in-process when empty)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			EnvVars: []string{"CARPOOL_LOG_LEVEL"},
			Usage:   "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			EnvVars: []string{"CARPOOL_LOG_FORMAT"},
			Usage:   "text or json",
		},
		&cli.BoolFlag{
			Name:  "results",
			Usage: "print every actor's result, not only the summary",
		},
	),
	Action: func(ctx *cli.Context) error {
		sc, err := loadScenario(ctx)
		if err != nil {
			return err
		}
		log := infra.NewLogger(os.Stderr, ctx.String("log-level"), ctx.String("log-format"))

		var store report.Store
		if path := ctx.String("out"); path != "" {
			db, err := infra.NewSQLite(ctx.Context, path)
			if err != nil {
				return err
			}
			defer db.Close()
			s := report.NewSQLiteStore(db)
			if err := s.EnsureSchema(ctx.Context); err != nil {
				return err
			}
			store = s
		}

		var dirs simulation.DirectoryFactory
		if addr := ctx.String("redis"); addr != "" {
			client, err := infra.NewRedis(ctx.Context, addr)
			if err != nil {
				return err
			}
			defer client.Close()
			dirs = redisDirectories(client)
		}

		m := simulation.NewManager(store, dirs, log)
		defer m.Shutdown()
		sim, err := m.Start(sc)
		if err != nil {
			return err
		}
		done, err := m.Wait(ctx.Context, sim.ID)
		if err != nil {
			return err
		}
		if done.Status == simulation.StatusFailed {
			return fmt.Errorf("simulation %s failed: %s", done.ID, done.Error)
		}

		out := map[string]any{"simulation": done}
		if ctx.Bool("results") {
			results, err := m.Results(ctx.Context, done.ID)
			if err != nil {
				return err
			}
			out["results"] = results
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func redisDirectories(client *redis.Client) simulation.DirectoryFactory {
	return func(id string) directory.Directory {
		return directory.NewRedisStore(client, id)
	}
}

var graphCmd = &cli.Command{
	Name:    "graph",
	Usage:   "Write the scenario's city as a Graphviz DOT file",
	Aliases: []string{"g"},
	Flags: append(append([]cli.Flag{}, scenarioFlags...),
		&cli.StringFlag{
			Name:  "out",
			Usage: "specify the output .dot file (stdout when empty)",
		},
	),
	Action: func(ctx *cli.Context) error {
		sc, err := loadScenario(ctx)
		if err != nil {
			return err
		}
		setup, err := sc.Build()
		if err != nil {
			return err
		}
		w := os.Stdout
		if path := ctx.String("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return setup.Graph.WriteDOT(w)
	},
}
