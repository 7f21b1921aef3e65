package pipeline

import (
	"sort"
	"strconv"
)

// positionalOffset is the undocumented constant the upstream's column
// ordering is asserted to follow: customTagValue_N columns begin at
// index 4. umbrella.buildColumns requests three fixed columns
// (resourceid, linkedaccid, payeraccount) ahead of the tag columns; the
// offset is taken as given and is not derived from that list.
const positionalOffset = 4

// BuildColumnIndexMap returns the customTagValue_N -> physical tag key
// map the upstream's positional tag channel needs, given the same
// sorted tag-key list used to build the asset query's columns
// parameter (see umbrella.buildColumns).
func BuildColumnIndexMap(tagKeysUsed []string) map[string]string {
	sorted := make([]string, len(tagKeysUsed))
	copy(sorted, tagKeysUsed)
	sort.Strings(sorted)

	m := make(map[string]string, len(sorted))
	for i, key := range sorted {
		col := columnName(i)
		m[col] = key
	}
	return m
}

func columnName(i int) string {
	n := i + positionalOffset
	return "customTagValue_" + strconv.Itoa(n)
}
