package sig

import (
	"strconv"
	"strings"
)

// maxPlainImmediate is the largest immediate considered uninteresting for
// fuzzy signatures. Values at or below it (loop bounds, struct offsets,
// small constants) recur far too often to identify a function.
const maxPlainImmediate = 0xFFFF

// BlockSignature is the fingerprint of one basic block.
type BlockSignature struct {
	Formal     uint32   // hash of mnemonics, operand text and string content
	Fuzzy      uint32   // hash of call presence, string content and large immediates
	Immediates []uint64 // interesting immediate values, in instruction order
	Calls      []string // called function names, in instruction order
}

// fingerprintBlock derives a block's signature from its instructions.
//
// Formal tokens capture exact structure: every mnemonic, referenced string
// content, and operand text. Fuzzy tokens keep only shape: the fact that a
// call happened, string identity, and immediates large enough to be
// distinctive. Strings are looked up in the precomputed location map so a
// data reference into a known string contributes its content instead of a
// generic marker.
func fingerprintBlock(b Block, strs map[uint64]StringRecord, backend Backend) BlockSignature {
	var formal, fuzzy []string
	var immediates []uint64
	var calls []string

	for _, ins := range b.Instructions {
		formal = append(formal, ins.Mnemonic)

		switch {
		case ins.IsCall:
			// Note the callee name for call-based propagation. Fuzzy
			// signatures cannot use the name or address, only the fact
			// that a resolvable call was made; the formal side already
			// carries the call mnemonic.
			for _, target := range ins.CallTargets {
				name := backend.NameAt(target)
				if name == "" {
					continue
				}
				calls = append(calls, name)
				fuzzy = append(fuzzy, "funcref")
			}

		case len(ins.DataRefs) > 0:
			// String content is stable across builds and feeds both
			// signature flavors. Any other data reference is reduced to a
			// marker since constants are hard to tell from addresses.
			for _, ref := range ins.DataRefs {
				if s, ok := strs[ref]; ok {
					formal = append(formal, s.Value)
					fuzzy = append(fuzzy, s.Value)
				} else {
					formal = append(formal, "dataref")
					fuzzy = append(fuzzy, "dataref")
				}
			}

		case len(ins.CodeRefs) == 0:
			// No references at all: every operand joins the formal
			// signature, and immediates that are large, non-negative in
			// their textual form, and not addresses join the fuzzy one.
			for _, op := range ins.Operands {
				formal = append(formal, op.Text)

				if !op.IsImm || strings.HasPrefix(op.Text, "-") {
					continue
				}
				if op.Value <= maxPlainImmediate {
					continue
				}
				if backend.IsDefined(op.Value) {
					continue
				}
				fuzzy = append(fuzzy, strconv.FormatUint(op.Value, 10))
				immediates = append(immediates, op.Value)
			}
		}
	}

	return BlockSignature{
		Formal:     tokenHash(formal),
		Fuzzy:      tokenHash(fuzzy),
		Immediates: immediates,
		Calls:      calls,
	}
}

// matches reports whether two blocks pair up for sub-matching: equal formal
// hashes with the same number of immediates and call references. Fuzzy
// equality is deliberately not consulted at block granularity; it produces
// cross-matches between structurally similar but distinct functions.
func (b BlockSignature) matches(other BlockSignature) bool {
	return b.Formal == other.Formal &&
		len(b.Immediates) == len(other.Immediates) &&
		len(b.Calls) == len(other.Calls)
}
