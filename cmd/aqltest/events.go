package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
)

type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

type packageStats struct {
	testsRun  int
	testsPass int
	testsFail int
	testsSkip int
	status    string
}

type skipNote struct {
	name   string
	reason string
}

type runSummary struct {
	packagesTotal int
	packagesPass  int
	packagesFail  int
	testsRun      int
	testsPass     int
	testsFail     int
	testsSkip     int
	failures      []string
	skips         []skipNote
}

var (
	frameworkLine = regexp.MustCompile(`^(=== (RUN|PAUSE|CONT|NAME)|--- (PASS|FAIL|SKIP):|(ok|FAIL|\?)\s+\S+|PASS$|FAIL$)`)

	passLabel = color.New(color.FgGreen).Sprint
	failLabel = color.New(color.FgRed, color.Bold).Sprint
	skipLabel = color.New(color.FgYellow).Sprint
	runLabel  = color.New(color.FgCyan).Sprint
)

type testKey struct {
	pkg  string
	test string
}

// eventPrinter renders a go test -json stream. Output of a test is held back
// until the test ends and only shown when it fails, unless verbose is set.
type eventPrinter struct {
	w          io.Writer
	modulePath string
	verbose    bool

	current  string
	order    []string
	packages map[string]*packageStats
	held     map[testKey][]string
	failures []string
	skips    []skipNote
}

func newEventPrinter(w io.Writer, modulePath string, verbose bool) *eventPrinter {
	return &eventPrinter{
		w:          w,
		modulePath: modulePath,
		verbose:    verbose,
		packages:   make(map[string]*packageStats),
		held:       make(map[testKey][]string),
	}
}

func (p *eventPrinter) consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev testEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			fmt.Fprintf(p.w, "raw> %s\n", line)
			continue
		}
		p.handle(ev)
	}
	return sc.Err()
}

func (p *eventPrinter) pkg(name string) *packageStats {
	ps, ok := p.packages[name]
	if !ok {
		ps = &packageStats{}
		p.packages[name] = ps
		p.order = append(p.order, name)
	}
	if name != p.current {
		p.current = name
		fmt.Fprintf(p.w, "\nPackage: %s\n", relImportPath(p.modulePath, name))
	}
	return ps
}

func (p *eventPrinter) handle(ev testEvent) {
	if ev.Package == "" {
		return
	}
	ps := p.pkg(ev.Package)
	key := testKey{pkg: ev.Package, test: ev.Test}

	if ev.Test == "" {
		p.handlePackage(ps, ev)
		return
	}

	switch ev.Action {
	case "run":
		ps.testsRun++
		if p.verbose {
			fmt.Fprintf(p.w, "  %s %s\n", runLabel("[RUN ]"), ev.Test)
		}
	case "output":
		line := cleanOutput(ev.Output)
		if line == "" {
			return
		}
		p.held[key] = append(p.held[key], line)
		if p.verbose {
			fmt.Fprintf(p.w, "    | %s\n", line)
		}
	case "pass":
		ps.testsPass++
		fmt.Fprintf(p.w, "  %s %s (%.2fs)\n", passLabel("[PASS]"), ev.Test, ev.Elapsed)
		delete(p.held, key)
	case "fail":
		ps.testsFail++
		p.failures = append(p.failures, relImportPath(p.modulePath, ev.Package)+":"+ev.Test)
		fmt.Fprintf(p.w, "  %s %s (%.2fs)\n", failLabel("[FAIL]"), ev.Test, ev.Elapsed)
		if !p.verbose {
			for _, line := range p.held[key] {
				fmt.Fprintf(p.w, "    | %s\n", line)
			}
		}
		delete(p.held, key)
	case "skip":
		ps.testsSkip++
		reason := skipReason(p.held[key])
		p.skips = append(p.skips, skipNote{name: ev.Test, reason: reason})
		fmt.Fprintf(p.w, "  %s %s (%s)\n", skipLabel("[SKIP]"), ev.Test, reason)
		delete(p.held, key)
	}
}

func (p *eventPrinter) handlePackage(ps *packageStats, ev testEvent) {
	switch ev.Action {
	case "output":
		if line := cleanOutput(ev.Output); line != "" {
			fmt.Fprintf(p.w, "  | %s\n", line)
		}
	case "pass":
		ps.status = "pass"
		fmt.Fprintf(p.w, "%s package (%.2fs)\n", passLabel("[PASS]"), ev.Elapsed)
	case "fail":
		ps.status = "fail"
		fmt.Fprintf(p.w, "%s package (%.2fs)\n", failLabel("[FAIL]"), ev.Elapsed)
	case "skip":
		if ps.status == "" {
			ps.status = "skip"
			fmt.Fprintf(p.w, "%s package, no tests\n", skipLabel("[SKIP]"))
		}
	}
}

func (p *eventPrinter) summary() runSummary {
	s := runSummary{
		packagesTotal: len(p.order),
		failures:      p.failures,
		skips:         p.skips,
	}
	for _, name := range p.order {
		ps := p.packages[name]
		s.testsRun += ps.testsRun
		s.testsPass += ps.testsPass
		s.testsFail += ps.testsFail
		s.testsSkip += ps.testsSkip
		if ps.status == "fail" {
			s.packagesFail++
		} else {
			s.packagesPass++
		}
	}
	return s
}

// cleanOutput drops the framework's own status lines.
func cleanOutput(raw string) string {
	line := strings.TrimSpace(raw)
	if frameworkLine.MatchString(line) {
		return ""
	}
	return line
}

// skipReason is the last line the test logged, which is the t.Skip message.
func skipReason(lines []string) string {
	if len(lines) == 0 {
		return "no reason given"
	}
	reason := lines[len(lines)-1]
	// Drop the "file_test.go:12: " location prefix.
	if i := strings.Index(reason, ": "); i > 0 && strings.Contains(reason[:i], ".go:") {
		reason = reason[i+2:]
	}
	return reason
}

func streamStderr(w io.Writer, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 16*1024), 2*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "stderr> %s\n", line)
	}
	return sc.Err()
}
