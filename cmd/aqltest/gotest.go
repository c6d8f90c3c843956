package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/danmuck/aqltest/internal/aql"
	"github.com/danmuck/aqltest/internal/cluster"
	"github.com/danmuck/aqltest/internal/config"
	"github.com/danmuck/aqltest/internal/tools"
	"golang.org/x/sync/errgroup"
)

type packageTests struct {
	ImportPath string
	RelPath    string
	Group      string
	Tests      []string
}

var listNamePattern = regexp.MustCompile(`^(Test|Benchmark|Fuzz|Example)[A-Za-z0-9_]+$`)

const preflightTimeout = 5 * time.Second

type goTestCommand struct {
	pkg     *string
	run     *string
	tags    *string
	verbose *bool
	out     io.Writer
}

func addRunCommand(app *kingpin.Application) {
	cmd := &goTestCommand{out: os.Stdout}
	c := app.Command("run", "Run test packages through go test -json, one package at a time.").Action(cmd.runAction)
	cmd.pkg = c.Flag("pkg", "Package pattern(s), comma or space separated.").Default("./...").String()
	cmd.run = c.Flag("run", "go test -run regex.").String()
	cmd.tags = c.Flag("tags", "Build tags; e2e enables the server-backed suites.").Default("e2e").String()
	cmd.verbose = c.Flag("verbose", "Print test output as it arrives instead of only for failures.").Short('v').Bool()
}

func addListCommand(app *kingpin.Application) {
	cmd := &goTestCommand{out: os.Stdout}
	c := app.Command("list", "List tests per package.").Action(cmd.listAction)
	cmd.pkg = c.Flag("pkg", "Package pattern(s), comma or space separated.").Default("./...").String()
	cmd.tags = c.Flag("tags", "Build tags.").Default("e2e").String()
}

func (c *goTestCommand) runAction(*kingpin.ParseContext) error {
	exitCode, err := c.runTests(context.Background())
	if err != nil {
		return err
	}
	if exitCode != 0 {
		flushMetrics()
		os.Exit(exitCode)
	}
	return nil
}

func (c *goTestCommand) listAction(*kingpin.ParseContext) error {
	return c.runList(context.Background())
}

func tagArgs(tags string) []string {
	tags = strings.TrimSpace(tags)
	if tags == "" {
		return nil
	}
	return []string{"-tags", tags}
}

func (c *goTestCommand) runList(ctx context.Context) error {
	modulePath, err := goListModulePath(ctx)
	if err != nil {
		return err
	}
	patterns := parsePatterns(*c.pkg)
	packages, err := goListPackages(ctx, *c.tags, patterns)
	if err != nil {
		return err
	}
	if len(packages) == 0 {
		fmt.Fprintln(c.out, "No packages matched.")
		return nil
	}

	byGroup := make(map[string][]packageTests)
	for _, pkg := range packages {
		tests, err := listTestsForPackage(ctx, *c.tags, pkg)
		if err != nil {
			return err
		}
		rel := relImportPath(modulePath, pkg)
		group := moduleGroup(rel)
		byGroup[group] = append(byGroup[group], packageTests{
			ImportPath: pkg,
			RelPath:    rel,
			Group:      group,
			Tests:      tests,
		})
	}

	groups := sortedKeys(byGroup)
	totalPackages := 0
	totalTests := 0

	fmt.Fprintln(c.out, "Test Inventory")
	fmt.Fprintf(c.out, "Patterns: %s\n\n", strings.Join(patterns, ", "))

	for _, group := range groups {
		pkgList := byGroup[group]
		sort.Slice(pkgList, func(i, j int) bool {
			return pkgList[i].RelPath < pkgList[j].RelPath
		})
		groupTests := 0
		for _, p := range pkgList {
			groupTests += len(p.Tests)
		}
		totalPackages += len(pkgList)
		totalTests += groupTests

		fmt.Fprintf(c.out, "Module: %s  (packages=%d tests=%d)\n", group, len(pkgList), groupTests)
		for _, p := range pkgList {
			fmt.Fprintf(c.out, "  Package: %s", p.RelPath)
			if len(p.Tests) == 0 {
				fmt.Fprintln(c.out, "  [no tests]")
				continue
			}
			fmt.Fprintf(c.out, "  [tests=%d]\n", len(p.Tests))
			for _, testName := range p.Tests {
				fmt.Fprintf(c.out, "    - %s\n", testName)
			}
		}
		fmt.Fprintln(c.out)
	}

	fmt.Fprintln(c.out, "Summary")
	fmt.Fprintf(c.out, "  Modules:  %d\n", len(groups))
	fmt.Fprintf(c.out, "  Packages: %d\n", totalPackages)
	fmt.Fprintf(c.out, "  Tests:    %d\n", totalTests)
	return nil
}

// runTests runs go test -json -p 1 so suites never race for the server ports.
func (c *goTestCommand) runTests(ctx context.Context) (int, error) {
	modulePath, err := goListModulePath(ctx)
	if err != nil {
		return 1, err
	}
	if hasTag(*c.tags, "e2e") {
		for _, note := range preflight(ctx) {
			fmt.Fprintf(c.out, "%s e2e suites will skip: %s\n", skipLabel("[WARN]"), note)
		}
	}

	patterns := parsePatterns(*c.pkg)
	args := []string{"test", "-json", "-p", "1", "-count", "1"}
	args = append(args, tagArgs(*c.tags)...)
	if strings.TrimSpace(*c.run) != "" {
		args = append(args, "-run", *c.run)
	}
	args = append(args, patterns...)

	env, err := childEnv(*configPath)
	if err != nil {
		return 1, err
	}
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Env = append(cmd.Environ(), env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, err
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return 1, err
	}

	out := &lockedWriter{w: c.out}
	printer := newEventPrinter(out, modulePath, *c.verbose)
	var g errgroup.Group
	g.Go(func() error { return printer.consume(stdout) })
	g.Go(func() error { return streamStderr(out, stderr) })

	// Pipes must be drained before Wait closes them.
	streamErr := g.Wait()
	waitErr := cmd.Wait()
	if streamErr != nil {
		return 1, streamErr
	}
	if waitErr != nil && !tools.IsExitError(waitErr) {
		return 1, waitErr
	}

	printRunSummary(c.out, printer.summary(), time.Since(start))
	return tools.ExitCode(waitErr), nil
}

// preflight lists the reasons the server-backed suites would skip.
func preflight(ctx context.Context) []string {
	cfg, err := loadConfig()
	if err != nil {
		return []string{err.Error()}
	}
	var notes []string
	if _, err := aql.Resolve(cfg.AQLBinary, cfg.Valgrind); err != nil {
		notes = append(notes, fmt.Sprintf("%v (set %s)", err, config.EnvBinary))
	}
	engine, err := cluster.NewDockerEngine()
	if err != nil {
		return append(notes, err.Error())
	}
	defer engine.Close()
	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	if err := engine.Ping(ctx); err != nil {
		notes = append(notes, err.Error())
	}
	return notes
}

// childEnv passes --config on to the test binaries, which only read the environment.
func childEnv(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return []string{config.EnvConfigFile + "=" + abs}, nil
}

func hasTag(tags, want string) bool {
	for _, tag := range strings.FieldsFunc(tags, func(r rune) bool { return r == ',' || r == ' ' }) {
		if tag == want {
			return true
		}
	}
	return false
}

// lockedWriter serialises writes from the stdout and stderr pumps.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func printRunSummary(w io.Writer, summary runSummary, took time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary")
	fmt.Fprintf(w, "  Packages: total=%d pass=%d fail=%d\n",
		summary.packagesTotal,
		summary.packagesPass,
		summary.packagesFail,
	)
	fmt.Fprintf(w, "  Tests:    run=%d pass=%d fail=%d skip=%d\n",
		summary.testsRun,
		summary.testsPass,
		summary.testsFail,
		summary.testsSkip,
	)
	fmt.Fprintf(w, "  Duration: %s\n", took.Round(time.Millisecond))
	if len(summary.skips) > 0 {
		fmt.Fprintln(w, "  Skipped Tests:")
		for _, s := range summary.skips {
			fmt.Fprintf(w, "    - %s: %s\n", s.name, s.reason)
		}
	}
	if len(summary.failures) > 0 {
		fmt.Fprintln(w, "  Failed Tests:")
		for _, name := range summary.failures {
			fmt.Fprintf(w, "    - %s\n", name)
		}
	}
}

func parsePatterns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"./..."}
	}
	chunks := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return []string{"./..."}
	}
	return out
}

// goCommand runs the go tool and returns stdout, folding stderr into the error.
func goCommand(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, _, err := tools.ExecRunner{}.Run(ctx, "go", args...)
	if err != nil {
		return "", fmt.Errorf("go %s: %w: %s", args[0], err, strings.TrimSpace(string(stderr)))
	}
	return string(stdout), nil
}

func goListModulePath(ctx context.Context) (string, error) {
	out, err := goCommand(ctx, "list", "-m", "-f", "{{.Path}}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func goListPackages(ctx context.Context, tags string, patterns []string) ([]string, error) {
	args := append([]string{"list"}, tagArgs(tags)...)
	args = append(args, patterns...)
	out, err := goCommand(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitPackages(out), nil
}

func splitPackages(raw string) []string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}

func listTestsForPackage(ctx context.Context, tags, pkg string) ([]string, error) {
	args := append([]string{"test"}, tagArgs(tags)...)
	args = append(args, pkg, "-list", ".")
	out, err := goCommand(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list tests in %s: %w", pkg, err)
	}
	return parseTestList(out), nil
}

func parseTestList(raw string) []string {
	lines := strings.Split(raw, "\n")
	tests := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !listNamePattern.MatchString(line) {
			continue
		}
		tests = append(tests, line)
	}
	sort.Strings(tests)
	return tests
}

func relImportPath(modulePath string, importPath string) string {
	if importPath == modulePath {
		return "."
	}
	prefix := modulePath + "/"
	if strings.HasPrefix(importPath, prefix) {
		return strings.TrimPrefix(importPath, prefix)
	}
	return importPath
}

func moduleGroup(relPath string) string {
	if relPath == "." {
		return "root"
	}
	parts := strings.Split(relPath, "/")
	switch parts[0] {
	case "cmd", "e2e":
		return parts[0]
	case "internal":
		if len(parts) >= 2 {
			return "internal/" + parts[1]
		}
		return "internal"
	}
	return parts[0]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
