package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/danmuck/aqltest/internal/aql"
	"github.com/danmuck/aqltest/internal/cluster"
	"github.com/danmuck/aqltest/internal/config"
	"github.com/danmuck/aqltest/internal/fixture"
	"github.com/danmuck/aqltest/internal/harness"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

var indexSets = map[string]func(ns, set string) []fixture.IndexSpec{
	"show":     harness.ShowIndexes,
	"select":   harness.SelectIndexes,
	"negative": harness.NegativeIndexes,
	"none":     nil,
}

func indexSetNames() []string {
	return sortedKeys(indexSets)
}

// seedOptions turns --populate/--indexes into harness options.
func seedOptions(populate bool, indexes string) harness.Options {
	return harness.Options{Populate: populate, IndexSet: indexSets[indexes]}
}

func addUpCommand(app *kingpin.Application) {
	c := app.Command("up", "Start a server container and leave it running.")
	populate := c.Flag("populate", "Write the fixture records once the server is up.").Bool()
	indexes := c.Flag("indexes", "Secondary index set to create.").Default("none").Enum(indexSetNames()...)
	c.Action(func(*kingpin.ParseContext) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := cluster.NewDockerEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		suite := harness.New(cfg, engine, nil, nil)
		release := harness.HandleInterrupt(harness.StopOnInterrupt(cancel, suite))
		defer release()

		if err := suite.Start(ctx, seedOptions(*populate, *indexes)); err != nil {
			return err
		}
		suite.Disconnect()
		fmt.Println(upSummary(cfg, suite.Seed(), suite.Server.ImageSize()))
		return nil
	})
}

func upSummary(cfg config.Config, seed fixture.Seed, imageSize int64) string {
	image := cfg.ImageRef()
	if imageSize > 0 {
		image += " (" + humanize.Bytes(uint64(imageSize)) + ")"
	}
	return fmt.Sprintf("%s %s on %s (container %s)", color.GreenString("[UP]"), image, seed, cfg.ContainerName)
}

func addDownCommand(app *kingpin.Application) {
	c := app.Command("down", "Remove the server container and its work directory.")
	c.Action(func(*kingpin.ParseContext) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := cluster.NewDockerEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		cluster.NewServer(cfg, engine, nil).Shutdown(context.Background())
		fmt.Printf("%s %s\n", color.YellowString("[DOWN]"), cfg.ContainerName)
		return nil
	})
}

func addSeedCommand(app *kingpin.Application) {
	c := app.Command("seed", "Load fixture records and indexes into a running server.")
	populate := c.Flag("populate", "Write the fixture records.").Default("true").Bool()
	indexes := c.Flag("indexes", "Secondary index set to create.").Default("select").Enum(indexSetNames()...)
	drop := c.Flag("drop", "Drop these index names instead of creating.").Strings()
	c.Action(func(*kingpin.ParseContext) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		seed := fixture.Seed{Host: cfg.ServerIP, Port: cfg.PortBase}
		store, err := fixture.Connect(ctx, seed, cfg.ClientAttempts, cfg.ClientTimeout)
		if err != nil {
			return err
		}
		defer store.Close()
		return runSeed(ctx, cfg, store, seedOptions(*populate, *indexes), *drop)
	})
}

func runSeed(ctx context.Context, cfg config.Config, store fixture.Store, opts harness.Options, drop []string) error {
	if len(drop) > 0 {
		for _, name := range drop {
			if err := fixture.DeleteIndex(ctx, store, cfg.Namespace, name); err != nil {
				return err
			}
		}
		return nil
	}
	if opts.Populate {
		n, err := fixture.Populate(ctx, store, cfg.Namespace, cfg.SetName)
		if err != nil {
			return err
		}
		log.Info().Int("records", n).Str("set", cfg.SetName).Msg("seeded")
	}
	if opts.IndexSet != nil {
		if err := fixture.CreateIndexes(ctx, store, opts.IndexSet(cfg.Namespace, cfg.SetName)); err != nil {
			return err
		}
	}
	return nil
}

func addQueryCommand(app *kingpin.Application) {
	c := app.Command("query", "Run one aql command against the configured server.")
	command := c.Arg("command", "aql command string, e.g. \"show sets\".").Required().Strings()
	asJSON := c.Flag("json", "Request JSON output and summarise the decoded tables.").Bool()
	c.Action(func(*kingpin.ParseContext) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runner, err := aql.Resolve(cfg.AQLBinary, cfg.Valgrind)
		if err != nil {
			return err
		}
		cmd := strings.Join(*command, " ")
		if *asJSON {
			cmd = aql.JSON(cmd)
		}
		out, err := runner.RunArgs(context.Background(), aql.Args{Host: cfg.ServerIP, Port: cfg.PortBase, Command: cmd})
		if err != nil {
			return err
		}
		os.Stdout.Write(out.Stdout)
		os.Stderr.Write(out.Stderr)
		if *asJSON && out.ExitCode == 0 {
			summariseJSON(out.Stdout)
		}
		if out.ExitCode != 0 {
			flushMetrics()
			os.Exit(out.ExitCode)
		}
		return nil
	})
}

func summariseJSON(stdout []byte) {
	doc, err := aql.ParseJSONOutput(stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("[JSON]"), err)
		return
	}
	for i, table := range doc {
		rows := table.Data()
		label := fmt.Sprintf("table %d", i)
		if node, ok := table.Node(); ok {
			label += " node " + node
		}
		fmt.Fprintf(os.Stderr, "%s %s: %d rows\n", color.CyanString("[JSON]"), label, len(rows))
	}
	if status, err := doc.Status(); err == nil {
		fmt.Fprintf(os.Stderr, "%s status %d\n", color.CyanString("[JSON]"), status)
	}
}
