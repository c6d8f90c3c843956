package aql

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var ErrBinaryNotFound = errors.New("aql binary not found")

// buildTargets are the platform directories the aql build writes to, in search order.
var buildTargets = []string{
	"Linux-x86_64",
	"Darwin-x86_64",
	"Darwin-arm64",
}

// platformTarget names the build directory for the running host, if it is one we know.
func platformTarget() string {
	switch runtime.GOOS + "/" + runtime.GOARCH {
	case "linux/amd64":
		return "Linux-x86_64"
	case "darwin/amd64":
		return "Darwin-x86_64"
	case "darwin/arm64":
		return "Darwin-arm64"
	}
	return ""
}

// Candidates lists the relative paths searched for the binary. The host's own
// target comes first, then the remaining targets, each under ../target and target.
func Candidates() []string {
	targets := make([]string, 0, len(buildTargets))
	if own := platformTarget(); own != "" {
		targets = append(targets, own)
	}
	for _, t := range buildTargets {
		if t != platformTarget() {
			targets = append(targets, t)
		}
	}

	out := make([]string, 0, 2*len(targets))
	for _, root := range []string{filepath.Join("..", "target"), "target"} {
		for _, t := range targets {
			out = append(out, filepath.Join(root, t, "bin", "aql"))
		}
	}
	return out
}

// FindBinary returns override when set, else the first candidate that exists under dir.
func FindBinary(dir, override string) (string, error) {
	if override != "" {
		if !isFile(override) {
			return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, override)
		}
		return filepath.Abs(override)
	}
	for _, candidate := range Candidates() {
		path := filepath.Join(dir, candidate)
		if isFile(path) {
			return filepath.Abs(path)
		}
	}
	return "", fmt.Errorf("%w under %s", ErrBinaryNotFound, dir)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
