package cluster

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/aqltest/internal/config"
	"github.com/drone/envsubst"
)

const ConfFileName = "aerospike.conf"

//go:embed templates/aerospike.conf
var confTemplate string

// ConfParams returns the template variables for cfg.
func ConfParams(cfg config.Config) map[string]string {
	ports := cfg.Ports()
	return map[string]string{
		"state_directory": path.Join(cfg.ContainerDir, cfg.StateDir),
		"service_port":    strconv.Itoa(ports.Service),
		"fabric_port":     strconv.Itoa(ports.Fabric),
		"heartbeat_port":  strconv.Itoa(ports.Heartbeat),
		"info_port":       strconv.Itoa(ports.Info),
		"access_address":  cfg.AccessAddress,
	}
}

// bareVar matches $name references; $$ is matched too so it is left alone.
var bareVar = regexp.MustCompile(`\$\$|\$([A-Za-z_][A-Za-z0-9_]*)`)

// braceVars rewrites $name to ${name} so both forms go through the lookup.
func braceVars(template string) string {
	return bareVar.ReplaceAllStringFunc(template, func(m string) string {
		if m == "$$" {
			return m
		}
		return "${" + m[1:] + "}"
	})
}

// RenderConf substitutes $name and ${name} references from params. Every
// referenced variable must be provided.
func RenderConf(template string, params map[string]string) (string, error) {
	var missing []string
	out, err := envsubst.Eval(braceVars(template), func(name string) string {
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if err != nil {
		return "", fmt.Errorf("render server conf: %w", err)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("render server conf: missing variables %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// WriteConf renders the embedded template for cfg into dir and returns the file path.
func WriteConf(cfg config.Config, dir string) (string, error) {
	content, err := RenderConf(confTemplate, ConfParams(cfg))
	if err != nil {
		return "", err
	}
	file := filepath.Join(dir, ConfFileName)
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write server conf: %w", err)
	}
	return file, nil
}
