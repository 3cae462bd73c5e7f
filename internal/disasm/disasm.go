// Package disasm defines a common instruction representation used across
// architecture-specific disassemblers, plus basic-block recovery over a
// decoded instruction stream.
package disasm

// Operand is one decoded operand in textual and, for immediates, numeric form.
type Operand struct {
	Text  string // lowercase operand text
	IsImm bool
	Value uint64 // immediate value when IsImm
}

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64  // virtual address of instruction
	Text string  // formatted disassembly string
	Op   string  // mnemonic in lowercase
	Raw  [4]byte // raw encoding

	Args        []Operand
	IsCall      bool
	CallTargets []uint64 // resolved call destinations (direct calls only)
	CodeRefs    []uint64 // branch destinations other than calls
	DataRefs    []uint64 // PC-relative data references
}

// Stream is a linear sequence of instructions.
type Stream []Inst
