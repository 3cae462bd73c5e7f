package sig

// FunctionSignature is the persisted fingerprint of one function: its name
// at generation time and its block signatures in CFG order. Block order
// must be preserved; sub-matching aligns called-function lists by position.
type FunctionSignature struct {
	Name   string
	Blocks []BlockSignature
}

// fingerprintFunction aggregates a function's block signatures and derives
// the function-level formal and fuzzy hashes from the concatenation of the
// per-block hashes.
func fingerprintFunction(fn Function, strs map[uint64]StringRecord, backend Backend) (FunctionSignature, uint32, uint32) {
	blocks := make([]BlockSignature, 0, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blocks = append(blocks, fingerprintBlock(b, strs, backend))
	}

	formalTokens := make([]string, 0, len(blocks))
	fuzzyTokens := make([]string, 0, len(blocks))
	for _, b := range blocks {
		formalTokens = append(formalTokens, hashString(b.Formal))
		fuzzyTokens = append(fuzzyTokens, hashString(b.Fuzzy))
	}

	sig := FunctionSignature{Name: fn.Name, Blocks: blocks}
	return sig, tokenHash(formalTokens), tokenHash(fuzzyTokens)
}
