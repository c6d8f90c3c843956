//go:build e2e

package e2e

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/danmuck/aqltest/internal/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShow(t *testing.T) {
	s := harness.StartT(t, harness.Options{
		Populate: true,
		IndexSet: harness.ShowIndexes,
	})

	cases := []struct {
		name    string
		command string
		rows    int
		columns []string
	}{
		{"bins", "show bins", 8, []string{"bin", "count", "namespace", "quota"}},
		{"namespaces", "show namespaces", 2, []string{"namespaces"}},
		{"indexes", "show indexes", 4, []string{
			"bin", "indexname", "indextype", "ns", "context", "set", "state", "type",
		}},
		{"sets", "show sets", 1, []string{
			"device_data_bytes",
			"disable-eviction",
			"enable-index",
			"index_populating",
			"memory_data_bytes",
			"ns",
			"set",
			"objects",
			"sindexes",
			"stop-writes-count",
			"tombstones",
			"truncate_lut",
			"stop-writes-size",
			"truncating",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := queryJSON(t, s, tc.command)
			rows, err := doc.Rows()
			require.NoError(t, err)

			data := rows.Data()
			require.Len(t, data, tc.rows)
			for _, row := range data {
				assert.ElementsMatch(t, tc.columns, row.Keys())
			}

			_, ok := rows.Node()
			assert.True(t, ok, "last row should only carry the node name")

			status, err := doc.Status()
			require.NoError(t, err)
			assert.Zero(t, status)
		})
	}
}

// show namespaces must agree with what the server itself reports.
func TestShowNamespacesMatchesInfo(t *testing.T) {
	s := harness.StartT(t, harness.Options{})

	info, err := s.Store().Info(context.Background(), "namespaces")
	require.NoError(t, err)
	require.NotEmpty(t, info)

	var want []string
	for _, resp := range info {
		want = strings.Split(resp, ";")
		break
	}
	sort.Strings(want)

	doc := queryJSON(t, s, "show namespaces")
	rows, err := doc.Rows()
	require.NoError(t, err)

	var got []string
	for _, row := range rows.Data() {
		name, ok := row.String("namespaces")
		require.True(t, ok, "row %v", row)
		got = append(got, name)
	}
	sort.Strings(got)
	assert.Equal(t, want, got)
}
