package aql

import "strconv"

// Args are the connection flags and command string for one aql run.
type Args struct {
	Host    string
	Port    int
	Command string
	Extra   []string
}

func (a Args) Strings() []string {
	out := make([]string, 0, 6+len(a.Extra))
	if a.Host != "" {
		out = append(out, "-h", a.Host)
	}
	if a.Port > 0 {
		out = append(out, "-p", strconv.Itoa(a.Port))
	}
	out = append(out, a.Extra...)
	if a.Command != "" {
		out = append(out, "-c", a.Command)
	}
	return out
}

// JSON prefixes the command so aql renders JSON output.
func JSON(command string) string {
	return "set output json; " + command
}
