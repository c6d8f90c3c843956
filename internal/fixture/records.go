package fixture

import "strconv"

// RecordCount is the number of fixture rows written per set.
const RecordCount = 100

// Bin names written by Populate.
const (
	BinStr       = "str"
	BinAStr      = "a-str"
	BinBStr      = "b-str"
	BinInt       = "int"
	BinAInt      = "a-int"
	BinBInt      = "b-int"
	BinFloat     = "float"
	BinIntStrMix = "int-str-mix"
)

// mixSwitchIndex is the first row whose int-str-mix bin holds a string.
const mixSwitchIndex = 80

type Record struct {
	Key  string
	Bins map[string]any
}

// NewRecord builds fixture row idx.
func NewRecord(idx int) Record {
	var mix any = idx % 10
	if idx >= mixSwitchIndex {
		mix = strconv.Itoa(idx % 5)
	}
	return Record{
		Key: "key" + strconv.Itoa(idx),
		Bins: map[string]any{
			BinStr:       strconv.Itoa(idx),
			BinAStr:      strconv.Itoa(idx % 10),
			BinBStr:      strconv.Itoa(idx % 5),
			BinInt:       idx % 5,
			BinAInt:      idx % 5,
			BinBInt:      idx % 10,
			BinFloat:     float64(idx) * 3.14,
			BinIntStrMix: mix,
		},
	}
}

func Records() []Record {
	out := make([]Record, 0, RecordCount)
	for idx := 0; idx < RecordCount; idx++ {
		out = append(out, NewRecord(idx))
	}
	return out
}
