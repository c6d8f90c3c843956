package main

import (
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/danmuck/aqltest/internal/config"
	"github.com/danmuck/aqltest/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	configPath *string
	metricsOut *string
)

func main() {
	app := kingpin.New("aqltest", "End-to-end harness for the aql command line tool.")
	configPath = app.Flag("config", "Harness config file (TOML).").Envar(config.EnvConfigFile).String()
	metricsOut = app.Flag("metrics-out", "Write harness metrics to this textfile on exit.").String()

	addRunCommand(app)
	addListCommand(app)
	addUpCommand(app)
	addDownCommand(app)
	addSeedCommand(app)
	addQueryCommand(app)
	addConfigCommand(app)

	observability.InitLogger("aqltest")

	_, err := app.Parse(os.Args[1:])
	flushMetrics()
	if err != nil {
		log.Error().Err(err).Msg("aqltest failed")
		os.Exit(1)
	}
}

// loadConfig reads --config (or AQLTEST_CONFIG) over the defaults, then env overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if path := strings.TrimSpace(*configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func flushMetrics() {
	if metricsOut == nil || strings.TrimSpace(*metricsOut) == "" {
		return
	}
	if err := observability.WriteTextfile(*metricsOut); err != nil {
		log.Warn().Err(err).Str("path", *metricsOut).Msg("metrics textfile not written")
	}
}
