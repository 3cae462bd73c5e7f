package sig

import (
	"sort"

	"github.com/charmbracelet/log"
)

// Candidate pairs a function in the local binary with its counterpart in
// the external store.
type Candidate struct {
	Local    uint64
	External uint64
}

// MatchSet is one category's candidates. Sets are returned in the fixed
// order they must be applied: formal, strings, immediates, fuzzy. The
// Fuzzy flag tells the renamer which guard rules apply downstream.
type MatchSet struct {
	Category string
	Fuzzy    bool
	Pairs    []Candidate
}

// Match compares two stores category by category. A hash present in both
// stores yields one candidate pair; fuzzy candidates additionally require
// an equal basic-block count, the one extra guard for the loosest and
// therefore most collision-prone category.
func Match(local, external *Store, lg *log.Logger) []MatchSet {
	formal := matchHashes(local.Formal, external.Formal, nil, nil)
	strings := matchHashes(local.Strings, external.Strings, nil, nil)
	immediates := matchImmediates(local.Immediates, external.Immediates)
	fuzzy := matchHashes(local.Fuzzy, external.Fuzzy, local.Functions, external.Functions)

	lg.Info("matched signatures",
		"formal", len(formal),
		"strings", len(strings),
		"immediates", len(immediates),
		"fuzzy", len(fuzzy))

	return []MatchSet{
		{Category: "formal", Pairs: formal},
		{Category: "strings", Pairs: strings},
		{Category: "immediates", Pairs: immediates},
		{Category: "fuzzy", Fuzzy: true, Pairs: fuzzy},
	}
}

// matchHashes intersects two 32-bit-keyed category maps. When the function
// maps are supplied the block-count guard is enforced. Keys are visited in
// sorted order so candidate order, and with it first-seen tie-breaking in
// the renamer, is deterministic.
func matchHashes(local, external map[uint32]uint64, localFns, externalFns map[uint64]FunctionSignature) []Candidate {
	keys := make([]uint32, 0, len(external))
	for k := range external {
		if _, ok := local[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var pairs []Candidate
	for _, k := range keys {
		c := Candidate{Local: local[k], External: external[k]}
		if localFns != nil {
			lf, lok := localFns[c.Local]
			ef, eok := externalFns[c.External]
			if !lok || !eok || len(lf.Blocks) != len(ef.Blocks) {
				continue
			}
		}
		pairs = append(pairs, c)
	}
	return pairs
}

func matchImmediates(local, external map[uint64]uint64) []Candidate {
	keys := make([]uint64, 0, len(external))
	for k := range external {
		if _, ok := local[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var pairs []Candidate
	for _, k := range keys {
		pairs = append(pairs, Candidate{Local: local[k], External: external[k]})
	}
	return pairs
}
