package fixture

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/aqltest/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	puts    []Record
	putErr  error
	failAt  int
	created []IndexSpec
	dropped []string
	info    map[string]string
}

func (s *fakeStore) Put(ctx context.Context, namespace, set string, rec Record) error {
	if s.putErr != nil && len(s.puts) == s.failAt {
		return s.putErr
	}
	s.puts = append(s.puts, rec)
	return nil
}

func (s *fakeStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	s.created = append(s.created, spec)
	return nil
}

func (s *fakeStore) DropIndex(ctx context.Context, namespace, set, name string) error {
	s.dropped = append(s.dropped, namespace+"/"+name)
	return nil
}

func (s *fakeStore) Info(ctx context.Context, command string) (map[string]string, error) {
	return s.info, nil
}

func (s *fakeStore) Close() {}

func TestRecordsFollowFixtureFormulas(t *testing.T) {
	testlog.Start(t)
	recs := Records()
	require.Len(t, recs, RecordCount)

	r := recs[37]
	assert.Equal(t, "key37", r.Key)
	assert.Equal(t, "37", r.Bins[BinStr])
	assert.Equal(t, "7", r.Bins[BinAStr])
	assert.Equal(t, "2", r.Bins[BinBStr])
	assert.Equal(t, 2, r.Bins[BinInt])
	assert.Equal(t, 2, r.Bins[BinAInt])
	assert.Equal(t, 7, r.Bins[BinBInt])
	assert.InDelta(t, 116.18, r.Bins[BinFloat], 1e-9)
	assert.Equal(t, 7, r.Bins[BinIntStrMix])
	assert.Len(t, r.Bins, 8)
}

func TestIntStrMixSwitchesToStringAtEighty(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, 9, NewRecord(79).Bins[BinIntStrMix])
	assert.Equal(t, "0", NewRecord(80).Bins[BinIntStrMix])
	assert.Equal(t, "4", NewRecord(99).Bins[BinIntStrMix])
}

// The select suite's expected counts depend on these distributions.
func TestFixtureDistributions(t *testing.T) {
	testlog.Start(t)
	count := func(match func(map[string]any) bool) int {
		n := 0
		for _, r := range Records() {
			if match(r.Bins) {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 20, count(func(b map[string]any) bool { return b[BinAInt] == 0 }))
	assert.Equal(t, 10, count(func(b map[string]any) bool { return b[BinAInt] == 0 && b[BinBInt] == 5 }))
	assert.Equal(t, 10, count(func(b map[string]any) bool { return b[BinBStr] == "0" && b[BinAStr] == "5" }))
	assert.Equal(t, 0, count(func(b map[string]any) bool { return b[BinBInt] == 5 && b[BinBStr] == "5" }))
	assert.Equal(t, 2, count(func(b map[string]any) bool { return b[BinIntStrMix] == "4" && b[BinBInt] == 9 }))
	assert.Equal(t, 8, count(func(b map[string]any) bool { return b[BinBStr] == "0" && b[BinIntStrMix] == 5 }))
}

func TestPopulateWritesAllRecords(t *testing.T) {
	testlog.Start(t)
	store := &fakeStore{}
	n, err := Populate(context.Background(), store, "test", "aql-tests")
	require.NoError(t, err)
	assert.Equal(t, RecordCount, n)
	assert.Len(t, store.puts, RecordCount)
	assert.Equal(t, "key99", store.puts[99].Key)
}

func TestPopulateStopsOnFirstError(t *testing.T) {
	testlog.Start(t)
	store := &fakeStore{putErr: errors.New("device overload"), failAt: 10}
	n, err := Populate(context.Background(), store, "test", "aql-tests")
	require.Error(t, err)
	assert.Equal(t, 10, n)
	assert.Contains(t, err.Error(), "test.aql-tests")
}

func TestIndexSpecCreateCommand(t *testing.T) {
	testlog.Start(t)
	withSet := IndexSpec{Name: "a-str-index", Namespace: "test", Set: "aql-tests", Bin: "a-str", Type: IndexString}
	assert.Equal(t, "sindex-create:ns=test;indexname=a-str-index;indexdata=a-str,string;set=aql-tests", withSet.CreateCommand())

	noSet := IndexSpec{Name: "a-int-index-no-set", Namespace: "test", Bin: "a-int", Type: IndexNumeric}
	assert.Equal(t, "sindex-create:ns=test;indexname=a-int-index-no-set;indexdata=a-int,numeric", noSet.CreateCommand())
}

func TestCreateIndexValidates(t *testing.T) {
	testlog.Start(t)
	store := &fakeStore{}
	err := CreateIndex(context.Background(), store, IndexSpec{Name: "x", Namespace: "test", Bin: "b", Type: "geo2d"})
	require.Error(t, err)
	assert.Empty(t, store.created)

	specs := []IndexSpec{
		{Name: "a", Namespace: "test", Bin: "a", Type: IndexNumeric},
		{Name: "b", Namespace: "test", Bin: "b", Type: IndexString, Set: "s"},
	}
	require.NoError(t, CreateIndexes(context.Background(), store, specs))
	assert.Equal(t, specs, store.created)
}

func TestDeleteIndex(t *testing.T) {
	testlog.Start(t)
	store := &fakeStore{}
	require.NoError(t, DeleteIndex(context.Background(), store, "test", "a-int-index"))
	assert.Equal(t, []string{"test/a-int-index"}, store.dropped)
}

func TestParseIndexType(t *testing.T) {
	testlog.Start(t)
	typ, err := ParseIndexType(" NUMERIC ")
	require.NoError(t, err)
	assert.Equal(t, IndexNumeric, typ)

	_, err = ParseIndexType("geo2dsphere")
	assert.Error(t, err)
}

func TestSeedString(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "127.0.0.1:10000", Seed{Host: "127.0.0.1", Port: 10000}.String())
}
