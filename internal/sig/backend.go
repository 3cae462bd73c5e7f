// Package sig implements structural function signatures for comparing two
// versions of a compiled binary. Signatures are generated at several
// granularities (formal, fuzzy, string-based, immediate-based) and applied
// in order of confidence to propagate function names from an annotated
// binary into a related one where addresses differ.
package sig

// Operand is one decoded operand of an instruction.
type Operand struct {
	Text  string // textual form, lowercase
	IsImm bool
	Value uint64 // immediate value when IsImm
}

// Instruction is the per-instruction view the fingerprinters consume.
// Mnemonic and operand text come straight from the analysis backend's
// disassembler; references are resolved virtual addresses.
type Instruction struct {
	Addr        uint64
	Mnemonic    string
	Operands    []Operand
	IsCall      bool
	CallTargets []uint64 // resolved call destinations, empty for indirect calls
	CodeRefs    []uint64 // branch destinations (non-call)
	DataRefs    []uint64 // referenced data addresses
}

// Block is a basic block: a maximal straight-line instruction run.
type Block struct {
	Start        uint64
	Instructions []Instruction
}

// Function is one defined function with its blocks in stable CFG order.
type Function struct {
	Entry  uint64
	Name   string
	Blocks []Block
}

// StringRecord is one distinguishable string in the binary together with
// the addresses of the instructions referencing it.
type StringRecord struct {
	Addr  uint64
	Value string
	Xrefs []uint64
}

// Backend is the capability interface over a loaded binary. Generation
// reads functions and strings through it; renaming mutates the binary's
// symbol table through it. Implementations are expected to serialize their
// own access; the signature engine itself is single-threaded.
type Backend interface {
	// Functions enumerates all defined functions.
	Functions() ([]Function, error)

	// Strings enumerates all distinguishable strings with their xrefs.
	Strings() ([]StringRecord, error)

	// FunctionAt resolves an address to the entry of its owning function.
	FunctionAt(addr uint64) (uint64, bool)

	// NameAt returns the current display name of an address, or "" if the
	// address has no name.
	NameAt(addr uint64) string

	// AddrOfName resolves a display name back to its address.
	AddrOfName(name string) (uint64, bool)

	// IsDefined reports whether addr is a recognized location in the
	// binary. Used to exclude "immediates" that are really addresses.
	IsDefined(addr uint64) bool

	// SetName assigns a new name to addr. It returns false if the name is
	// already in use or the address cannot be renamed.
	SetName(addr uint64, name string) bool

	// MarkLibrary flags addr as a known library-style symbol after a
	// successful rename.
	MarkLibrary(addr uint64)
}
