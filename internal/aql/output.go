package aql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var (
	ErrJSONOutput = errors.New("unable to parse JSON output, must be incorrectly formatted")
	ErrNoRowCount = errors.New("no row count in output")
)

// jsonHeaderLines precede the JSON document when aql runs with "set output json".
const jsonHeaderLines = 4

var (
	jsonAPI = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()

	rowCountPattern = regexp.MustCompile(`(?m)^\s*(\d+) rows? in set`)
)

type Row map[string]any

type Table []Row

// JSONOutput is the decoded document: result tables followed by a status table.
type JSONOutput []Table

// ParseJSONOutput skips the header lines and decodes the rest of stdout.
func ParseJSONOutput(stdout []byte) (JSONOutput, error) {
	lines := bytes.Split(stdout, []byte("\n"))
	if len(lines) <= jsonHeaderLines {
		return nil, fmt.Errorf("%w: only %d lines", ErrJSONOutput, len(lines))
	}
	body := bytes.Join(lines[jsonHeaderLines:], []byte("\n"))

	var out JSONOutput
	if err := jsonAPI.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONOutput, err)
	}
	return out, nil
}

func (o JSONOutput) Table(i int) (Table, error) {
	if i < 0 || i >= len(o) {
		return nil, fmt.Errorf("%w: no table %d in %d tables", ErrJSONOutput, i, len(o))
	}
	return o[i], nil
}

// Rows is the first table.
func (o JSONOutput) Rows() (Table, error) {
	return o.Table(0)
}

// Status is the Status field of the first row of the second table.
func (o JSONOutput) Status() (int64, error) {
	t, err := o.Table(1)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, fmt.Errorf("%w: empty status table", ErrJSONOutput)
	}
	status, ok := t[0].Int("Status")
	if !ok {
		return 0, fmt.Errorf("%w: status row has no integer Status: %v", ErrJSONOutput, t[0])
	}
	return status, nil
}

// Data drops the trailing row when it only carries the node name.
func (t Table) Data() Table {
	if len(t) > 0 && t[len(t)-1].IsNodeRow() {
		return t[:len(t)-1]
	}
	return t
}

// Node returns the node name from a trailing node row.
func (t Table) Node() (string, bool) {
	if len(t) == 0 || !t[len(t)-1].IsNodeRow() {
		return "", false
	}
	return t[len(t)-1].String("node")
}

func (r Row) IsNodeRow() bool {
	_, ok := r["node"]
	return ok && len(r) == 1
}

func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Row) Int(bin string) (int64, bool) {
	switch v := r[bin].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func (r Row) String(bin string) (string, bool) {
	s, ok := r[bin].(string)
	return s, ok
}

// Value returns the bin with numbers narrowed to int64 or float64.
func (r Row) Value(bin string) (any, bool) {
	v, ok := r[bin]
	if !ok {
		return nil, false
	}
	if n, isNum := v.(json.Number); isNum {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return v, true
}

// RowCount returns N from the last "N rows in set" line of stdout.
func RowCount(stdout []byte) (int, error) {
	matches := rowCountPattern.FindAllSubmatch(stdout, -1)
	if len(matches) == 0 {
		return 0, ErrNoRowCount
	}
	return strconv.Atoi(string(matches[len(matches)-1][1]))
}
