package main

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/danmuck/aqltest/internal/config"
)

func addConfigCommand(app *kingpin.Application) {
	c := app.Command("config", "Generate or validate a harness config file.")

	initCmd := c.Command("init", "Write a config file populated with the defaults.")
	output := initCmd.Flag("output", "Output path.").Default(config.DefaultFileName).String()
	force := initCmd.Flag("force", "Overwrite an existing file.").Bool()
	initCmd.Action(func(*kingpin.ParseContext) error {
		if err := config.WriteTemplate(*output, *force); err != nil {
			return err
		}
		fmt.Printf("Wrote harness config to %s\n", *output)
		return nil
	})

	validate := c.Command("validate", "Load --config plus env overrides and print the result.")
	validate.Action(func(*kingpin.ParseContext) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("image:     %s\n", cfg.ImageRef())
		fmt.Printf("service:   %s\n", cfg.ServiceAddr())
		fmt.Printf("ports:     %v\n", cfg.Ports().All())
		fmt.Printf("container: %s (%s)\n", cfg.ContainerName, cfg.ContainerDir)
		fmt.Printf("set:       %s.%s\n", cfg.Namespace, cfg.SetName)
		return nil
	})
}
