package config

import (
	"fmt"
	"os"
)

// DefaultFileName is where `aqltest config init` writes unless told otherwise.
const DefaultFileName = "aqltest.toml"

// Template is a commented harness config carrying the default values.
func Template() string {
	return template
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o644)
}

const template = `# aqltest harness config. Every key is optional; AQLTEST_* env vars win over the file.

set_name = "aql-tests"
namespace = "test"

image = "aerospike/aerospike-server"
version = "latest"

# service, fabric, heartbeat and info listen on port_base .. port_base+3
port_base = 10000
server_ip = "127.0.0.1"
access_address = "127.0.0.1"

container_name = "aql-test-server"
container_dir = "/opt/work"
work_dir = "work"
state_dir = "state-1"

client_attempts = 20
client_timeout = "3s"
ready_timeout = "30s"

# aql_binary = "target/Linux-x86_64/bin/aql"
valgrind = false
`
