package sig

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// minStringLength is the shortest string worth a string-based signature.
// Short strings recur across unrelated functions.
const minStringLength = 8

// Generate walks every distinguishable string and every defined function in
// the binary and builds its signature store. The returned store is
// immutable; the collision bookkeeping used during generation is discarded
// before returning.
func Generate(backend Backend, lg *log.Logger) (*Store, error) {
	start := time.Now()

	strs, err := backend.Strings()
	if err != nil {
		return nil, fmt.Errorf("enumerate strings: %w", err)
	}
	strLocs := make(map[uint64]StringRecord, len(strs))
	for _, s := range strs {
		strLocs[s.Addr] = s
	}

	store := NewStore()
	formal := newBucket[uint32]()
	fuzzy := newBucket[uint32]()
	strings := newBucket[uint32]()
	immediates := newBucket[uint64]()

	// String pass: only reasonably long strings with exactly one xref can
	// identify a function. The same string text can appear at several
	// addresses, which the dedup rule removes.
	for _, s := range strs {
		if len(s.Value) < minStringLength || len(s.Xrefs) != 1 {
			continue
		}
		owner, ok := backend.FunctionAt(s.Xrefs[0])
		if !ok {
			continue
		}
		strings.add(stringHash(s.Value), owner)
	}

	// Function pass: fingerprint every function and file its hashes and
	// block immediates under the same dedup rule.
	funcs, err := backend.Functions()
	if err != nil {
		return nil, fmt.Errorf("enumerate functions: %w", err)
	}
	for _, fn := range funcs {
		fnSig, formalHash, fuzzyHash := fingerprintFunction(fn, strLocs, backend)
		store.Functions[fn.Entry] = fnSig

		formal.add(formalHash, fn.Entry)
		fuzzy.add(fuzzyHash, fn.Entry)
		for _, b := range fnSig.Blocks {
			for _, imm := range b.Immediates {
				immediates.add(imm, fn.Entry)
			}
		}
	}

	// Only the surviving entries become part of the store; the poison sets
	// have no meaning once generation completes.
	store.Formal = formal.active
	store.Fuzzy = fuzzy.active
	store.Strings = strings.active
	store.Immediates = immediates.active

	lg.Info("generated signatures",
		"formal", len(store.Formal),
		"fuzzy", len(store.Fuzzy),
		"strings", len(store.Strings),
		"immediates", len(store.Immediates),
		"functions", len(store.Functions),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return store, nil
}
