package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultSetName        = "aql-tests"
	DefaultNamespace      = "test"
	DefaultImage          = "aerospike/aerospike-server"
	DefaultVersion        = "latest"
	DefaultPortBase       = 10000
	DefaultServerIP       = "127.0.0.1"
	DefaultContainerName  = "aql-test-server"
	DefaultContainerDir   = "/opt/work"
	DefaultWorkDir        = "work"
	DefaultStateDir       = "state-1"
	DefaultClientAttempts = 20
	DefaultClientTimeout  = 3 * time.Second
	DefaultReadyTimeout   = 30 * time.Second
)

const (
	EnvConfigFile = "AQLTEST_CONFIG"
	EnvVersion    = "AQLTEST_SERVER_VERSION"
	EnvImage      = "AQLTEST_SERVER_IMAGE"
	EnvPortBase   = "AQLTEST_PORT"
	EnvBinary     = "AQLTEST_AQL_BINARY"
	EnvValgrind   = "AQLTEST_VALGRIND"
	EnvWorkDir    = "AQLTEST_WORK_DIR"
)

var ErrInvalidConfig = errors.New("invalid harness config")

// Config holds everything the harness needs to stand up a server and drive aql.
type Config struct {
	SetName        string
	Namespace      string
	Image          string
	Version        string
	PortBase       int
	ServerIP       string
	AccessAddress  string
	ContainerName  string
	ContainerDir   string
	WorkDir        string
	StateDir       string
	ClientAttempts int
	ClientTimeout  time.Duration
	ReadyTimeout   time.Duration
	AQLBinary      string
	Valgrind       bool
}

// Ports are the four server listeners derived from the port base.
type Ports struct {
	Service   int
	Fabric    int
	Heartbeat int
	Info      int
}

type fileConfig struct {
	SetName        string `toml:"set_name"`
	Namespace      string `toml:"namespace"`
	Image          string `toml:"image"`
	Version        string `toml:"version"`
	PortBase       int    `toml:"port_base"`
	ServerIP       string `toml:"server_ip"`
	AccessAddress  string `toml:"access_address"`
	ContainerName  string `toml:"container_name"`
	ContainerDir   string `toml:"container_dir"`
	WorkDir        string `toml:"work_dir"`
	StateDir       string `toml:"state_dir"`
	ClientAttempts int    `toml:"client_attempts"`
	ClientTimeout  string `toml:"client_timeout"`
	ReadyTimeout   string `toml:"ready_timeout"`
	AQLBinary      string `toml:"aql_binary"`
	Valgrind       bool   `toml:"valgrind"`
}

func Default() Config {
	return Config{
		SetName:        DefaultSetName,
		Namespace:      DefaultNamespace,
		Image:          DefaultImage,
		Version:        DefaultVersion,
		PortBase:       DefaultPortBase,
		ServerIP:       DefaultServerIP,
		AccessAddress:  DefaultServerIP,
		ContainerName:  DefaultContainerName,
		ContainerDir:   DefaultContainerDir,
		WorkDir:        DefaultWorkDir,
		StateDir:       DefaultStateDir,
		ClientAttempts: DefaultClientAttempts,
		ClientTimeout:  DefaultClientTimeout,
		ReadyTimeout:   DefaultReadyTimeout,
	}
}

// Load decodes path over the defaults. Keys absent from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load harness config (%s): %w", path, err)
	}

	setString := func(key string, dst *string, v string) {
		if meta.IsDefined(key) {
			if v = strings.TrimSpace(v); v != "" {
				*dst = v
			}
		}
	}
	setString("set_name", &cfg.SetName, raw.SetName)
	setString("namespace", &cfg.Namespace, raw.Namespace)
	setString("image", &cfg.Image, raw.Image)
	setString("version", &cfg.Version, raw.Version)
	setString("server_ip", &cfg.ServerIP, raw.ServerIP)
	setString("access_address", &cfg.AccessAddress, raw.AccessAddress)
	setString("container_name", &cfg.ContainerName, raw.ContainerName)
	setString("container_dir", &cfg.ContainerDir, raw.ContainerDir)
	setString("work_dir", &cfg.WorkDir, raw.WorkDir)
	setString("state_dir", &cfg.StateDir, raw.StateDir)
	setString("aql_binary", &cfg.AQLBinary, raw.AQLBinary)

	if meta.IsDefined("port_base") {
		cfg.PortBase = raw.PortBase
	}
	if meta.IsDefined("client_attempts") {
		cfg.ClientAttempts = raw.ClientAttempts
	}
	if meta.IsDefined("valgrind") {
		cfg.Valgrind = raw.Valgrind
	}
	if meta.IsDefined("client_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ClientTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse client_timeout: %w", err)
		}
		cfg.ClientTimeout = d
	}
	if meta.IsDefined("ready_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadyTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse ready_timeout: %w", err)
		}
		cfg.ReadyTimeout = d
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}
	return cfg, nil
}

// Resolve loads the file named by AQLTEST_CONFIG (if any), applies env overrides and validates.
func Resolve() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvVersion)); v != "" {
		cfg.Version = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvImage)); v != "" {
		cfg.Image = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBinary)); v != "" {
		cfg.AQLBinary = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkDir)); v != "" {
		cfg.WorkDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPortBase)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvPortBase, v, err)
		}
		cfg.PortBase = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvValgrind)); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvValgrind, v, err)
		}
		cfg.Valgrind = enabled
	}
	return nil
}

func Validate(cfg Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"set_name", cfg.SetName},
		{"namespace", cfg.Namespace},
		{"image", cfg.Image},
		{"version", cfg.Version},
		{"server_ip", cfg.ServerIP},
		{"container_name", cfg.ContainerName},
		{"container_dir", cfg.ContainerDir},
		{"work_dir", cfg.WorkDir},
		{"state_dir", cfg.StateDir},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidConfig, field.name)
		}
	}
	// The base and the next three ports must all be valid.
	if cfg.PortBase < 1 || cfg.PortBase > 65532 {
		return fmt.Errorf("%w: port_base %d out of range", ErrInvalidConfig, cfg.PortBase)
	}
	if cfg.ClientAttempts < 1 {
		return fmt.Errorf("%w: client_attempts must be positive", ErrInvalidConfig)
	}
	if cfg.ClientTimeout <= 0 || cfg.ReadyTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) ImageRef() string {
	return c.Image + ":" + c.Version
}

func (c Config) Ports() Ports {
	return Ports{
		Service:   c.PortBase,
		Fabric:    c.PortBase + 1,
		Heartbeat: c.PortBase + 2,
		Info:      c.PortBase + 3,
	}
}

func (c Config) ServiceAddr() string {
	return net.JoinHostPort(c.ServerIP, strconv.Itoa(c.PortBase))
}

// All lists the ports in service, fabric, heartbeat, info order.
func (p Ports) All() []int {
	return []int{p.Service, p.Fabric, p.Heartbeat, p.Info}
}
