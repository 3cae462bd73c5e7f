package sig

import (
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// PlaceholderPrefix marks compiler-default function names. Only addresses
// still carrying a placeholder name may be renamed.
const PlaceholderPrefix = "sub_"

// reservedPrefixes are auto-generated name families that must never be
// applied as a proposed name: placeholder functions, locations, unknown
// bytes and data-size markers.
var reservedPrefixes = map[string]struct{}{
	"sub":   {},
	"loc":   {},
	"unk":   {},
	"dword": {},
	"word":  {},
	"byte":  {},
}

// IsPlaceholder reports whether name is an auto-generated function name.
func IsPlaceholder(name string) bool {
	return strings.HasPrefix(name, PlaceholderPrefix)
}

// Rename records one applied rename.
type Rename struct {
	Addr uint64
	From string
	To   string
}

// Renamer applies matcher output to the live binary. Renames are durable
// mutations of the symbol table as they happen; nothing is rolled back.
type Renamer struct {
	backend Backend
	lg      *log.Logger
	applied []Rename
}

func NewRenamer(backend Backend, lg *log.Logger) *Renamer {
	return &Renamer{backend: backend, lg: lg}
}

// proposals accumulates candidate addresses per proposed name, preserving
// first-seen order of both names and addresses for tie-breaking.
type proposals struct {
	order  []string
	byName map[string][]uint64
}

func newProposals() *proposals {
	return &proposals{byName: make(map[string][]uint64)}
}

func (p *proposals) add(name string, addr uint64) {
	if _, ok := p.byName[name]; !ok {
		p.order = append(p.order, name)
	}
	p.byName[name] = append(p.byName[name], addr)
}

// Apply processes each candidate set in confidence order and returns the
// total number of functions renamed. Earlier passes claim names first; a
// later pass re-reads the live name and its proposals bounce off the
// placeholder guard, so a committed name is never overwritten.
func (r *Renamer) Apply(local, external *Store, sets []MatchSet) int {
	start := time.Now()
	count := 0

	for _, set := range sets {
		props := newProposals()

		for _, pair := range set.Pairs {
			localFn, lok := local.Functions[pair.Local]
			externalFn, eok := external.Functions[pair.External]
			if !lok || !eok {
				continue
			}

			// The matched pair itself proposes the external name for the
			// local address.
			props.add(externalFn.Name, pair.Local)

			r.propagateCalls(localFn, externalFn, props)
		}

		count += r.resolve(props)
	}

	r.lg.Info("renamed functions", "count", count,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return count
}

// propagateCalls pairs the blocks of a matched function pair one to one
// and, for every unambiguous pairing, proposes the external block's n-th
// called name for the address of the local block's n-th callee. This is
// how a function with no distinctive signature of its own inherits a name
// from a caller that matched.
func (r *Renamer) propagateCalls(localFn, externalFn FunctionSignature, props *proposals) {
	pairs := pairBlocks(localFn.Blocks, externalFn.Blocks)

	localIdxs := make([]int, 0, len(pairs))
	for l := range pairs {
		localIdxs = append(localIdxs, l)
	}
	sort.Ints(localIdxs)

	for _, l := range localIdxs {
		lb := localFn.Blocks[l]
		eb := externalFn.Blocks[pairs[l]]
		// Matching blocks have equal call counts, so positions align.
		for n := range lb.Calls {
			addr, ok := r.backend.AddrOfName(lb.Calls[n])
			if !ok {
				continue
			}
			props.add(eb.Calls[n], addr)
		}
	}
}

// pairBlocks returns the unambiguous one-to-one block pairings between two
// block lists as a local-index to external-index map. A local block claimed
// by two distinct external blocks is poisoned, and an external block that
// matches two distinct local blocks pairs with neither.
func pairBlocks(localBlocks, externalBlocks []BlockSignature) map[int]int {
	localPeers := make([][]int, len(localBlocks))
	externalPeers := make([][]int, len(externalBlocks))

	for e, eb := range externalBlocks {
		for l, lb := range localBlocks {
			if !lb.matches(eb) {
				continue
			}
			localPeers[l] = append(localPeers[l], e)
			externalPeers[e] = append(externalPeers[e], l)
		}
	}

	pairs := make(map[int]int)
	for l, peers := range localPeers {
		if len(peers) != 1 {
			continue
		}
		e := peers[0]
		if len(externalPeers[e]) != 1 {
			continue
		}
		pairs[l] = e
	}
	return pairs
}

// resolve performs majority-vote conflict resolution: for each proposed
// name the most frequent candidate address wins, ties broken by first
// occurrence, and only the winner is offered to the rename guard.
func (r *Renamer) resolve(props *proposals) int {
	count := 0
	for _, name := range props.order {
		candidates := props.byName[name]
		if len(candidates) == 0 {
			continue
		}

		// Tally first, then visit distinct addresses in first-seen order;
		// only a strictly larger count displaces the winner, so a tie goes
		// to the earliest candidate.
		tally := make(map[uint64]int, len(candidates))
		order := make([]uint64, 0, len(candidates))
		for _, addr := range candidates {
			if tally[addr] == 0 {
				order = append(order, addr)
			}
			tally[addr]++
		}
		winner := order[0]
		for _, addr := range order[1:] {
			if tally[addr] > tally[winner] {
				winner = addr
			}
		}

		count += r.rename(winner, name)
	}
	return count
}

// rename applies the guard conditions and performs a single rename.
// A guard failure is silent: the address keeps its current name and
// contributes nothing to the count.
func (r *Renamer) rename(addr uint64, name string) int {
	// Re-read the live name; a higher-confidence pass may already have
	// claimed this address.
	current := r.backend.NameAt(addr)
	if !IsPlaceholder(current) {
		return 0
	}

	prefix, _, _ := strings.Cut(name, "_")
	if _, reserved := reservedPrefixes[prefix]; reserved {
		return 0
	}

	if _, taken := r.backend.AddrOfName(name); taken {
		return 0
	}

	if !r.backend.SetName(addr, name) {
		return 0
	}
	r.backend.MarkLibrary(addr)
	r.applied = append(r.applied, Rename{Addr: addr, From: current, To: name})
	r.lg.Debug("renamed", "addr", addr, "from", current, "to", name)
	return 1
}

// Renames returns every rename applied so far, in application order.
func (r *Renamer) Renames() []Rename {
	return r.applied
}
