package sig

import (
	"reflect"
	"testing"
)

func TestMatchCategoryOrder(t *testing.T) {
	sets := Match(NewStore(), NewStore(), testLogger())

	want := []string{"formal", "strings", "immediates", "fuzzy"}
	if len(sets) != len(want) {
		t.Fatalf("got %d sets, want %d", len(sets), len(want))
	}
	for i, set := range sets {
		if set.Category != want[i] {
			t.Errorf("set %d category = %q, want %q", i, set.Category, want[i])
		}
		if set.Fuzzy != (set.Category == "fuzzy") {
			t.Errorf("set %q has Fuzzy = %v", set.Category, set.Fuzzy)
		}
	}
}

func TestMatchIntersection(t *testing.T) {
	local := NewStore()
	external := NewStore()

	local.Formal[1] = 0x1000
	local.Formal[2] = 0x1100
	external.Formal[2] = 0x2100
	external.Formal[3] = 0x2200

	local.Strings[9] = 0x1000
	external.Strings[9] = 0x2000

	sets := Match(local, external, testLogger())

	if got := sets[0].Pairs; !reflect.DeepEqual(got, []Candidate{{Local: 0x1100, External: 0x2100}}) {
		t.Errorf("formal pairs = %v", got)
	}
	if got := sets[1].Pairs; !reflect.DeepEqual(got, []Candidate{{Local: 0x1000, External: 0x2000}}) {
		t.Errorf("string pairs = %v", got)
	}
	if len(sets[2].Pairs)+len(sets[3].Pairs) != 0 {
		t.Errorf("unexpected immediate/fuzzy pairs: %v / %v", sets[2].Pairs, sets[3].Pairs)
	}
}

func TestMatchFuzzyBlockCountGuard(t *testing.T) {
	local := NewStore()
	external := NewStore()

	oneBlock := FunctionSignature{Blocks: []BlockSignature{{}}}
	twoBlocks := FunctionSignature{Blocks: []BlockSignature{{}, {}}}

	// Same fuzzy hash, different block counts: rejected.
	local.Fuzzy[1] = 0x1000
	external.Fuzzy[1] = 0x2000
	local.Functions[0x1000] = oneBlock
	external.Functions[0x2000] = twoBlocks

	// Same fuzzy hash, same block count: kept.
	local.Fuzzy[2] = 0x1100
	external.Fuzzy[2] = 0x2100
	local.Functions[0x1100] = twoBlocks
	external.Functions[0x2100] = twoBlocks

	sets := Match(local, external, testLogger())
	fuzzy := sets[3].Pairs
	if !reflect.DeepEqual(fuzzy, []Candidate{{Local: 0x1100, External: 0x2100}}) {
		t.Fatalf("fuzzy pairs = %v, want only the equal-block-count pair", fuzzy)
	}
}

func TestMatchDeterministicOrder(t *testing.T) {
	local := NewStore()
	external := NewStore()
	for i := uint32(0); i < 32; i++ {
		local.Formal[i] = uint64(i) + 0x1000
		external.Formal[i] = uint64(i) + 0x2000
	}

	first := Match(local, external, testLogger())
	second := Match(local, external, testLogger())
	if !reflect.DeepEqual(first, second) {
		t.Fatal("match order varies between runs")
	}
	pairs := first[0].Pairs
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].Local > pairs[i].Local {
			t.Fatal("formal pairs not in sorted key order")
		}
	}
}
