package harness

import "github.com/danmuck/aqltest/internal/fixture"

func index(name string, typ fixture.IndexType, ns, bin, set string) fixture.IndexSpec {
	return fixture.IndexSpec{Name: name, Namespace: ns, Set: set, Bin: bin, Type: typ}
}

// ShowIndexes are the four set-scoped indexes the show suite lists.
func ShowIndexes(ns, set string) []fixture.IndexSpec {
	return []fixture.IndexSpec{
		index("a-str-index", fixture.IndexString, ns, fixture.BinAStr, set),
		index("b-str-index", fixture.IndexString, ns, fixture.BinBStr, set),
		index("a-int-index", fixture.IndexNumeric, ns, fixture.BinAInt, set),
		index("b-int-index", fixture.IndexNumeric, ns, fixture.BinBInt, set),
	}
}

// SelectIndexes adds the mixed-type bin indexes and two namespace-wide indexes.
func SelectIndexes(ns, set string) []fixture.IndexSpec {
	return append(ShowIndexes(ns, set),
		index("mix-int-index", fixture.IndexNumeric, ns, fixture.BinIntStrMix, set),
		index("mix-str-index", fixture.IndexString, ns, fixture.BinIntStrMix, set),
		index("a-int-index-no-set", fixture.IndexNumeric, ns, fixture.BinAInt, ""),
		index("b-int-index-no-set", fixture.IndexNumeric, ns, fixture.BinBInt, ""),
	)
}

// NegativeIndexes gives the error suite a single index on a bin no record has.
func NegativeIndexes(ns, set string) []fixture.IndexSpec {
	return []fixture.IndexSpec{
		index("b-int-index", fixture.IndexNumeric, ns, "b", set),
	}
}
