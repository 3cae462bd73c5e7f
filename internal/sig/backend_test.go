package sig

import (
	"io"

	"github.com/charmbracelet/log"
)

// fakeBackend is an in-memory Backend for exercising the engine without a
// real binary.
type fakeBackend struct {
	funcs   []Function
	strs    []StringRecord
	names   map[uint64]string
	byName  map[string]uint64
	library map[uint64]bool
	defined map[uint64]bool
	ends    map[uint64]uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		names:   make(map[uint64]string),
		byName:  make(map[string]uint64),
		library: make(map[uint64]bool),
		defined: make(map[uint64]bool),
		ends:    make(map[uint64]uint64),
	}
}

func (f *fakeBackend) addFunc(entry, end uint64, name string, blocks ...Block) {
	f.funcs = append(f.funcs, Function{Entry: entry, Name: name, Blocks: blocks})
	f.ends[entry] = end
	f.names[entry] = name
	f.byName[name] = entry
}

func (f *fakeBackend) addString(addr uint64, value string, xrefs ...uint64) {
	f.strs = append(f.strs, StringRecord{Addr: addr, Value: value, Xrefs: xrefs})
}

func (f *fakeBackend) Functions() ([]Function, error) {
	out := make([]Function, len(f.funcs))
	copy(out, f.funcs)
	for i := range out {
		if name, ok := f.names[out[i].Entry]; ok {
			out[i].Name = name
		}
	}
	return out, nil
}

func (f *fakeBackend) Strings() ([]StringRecord, error) { return f.strs, nil }

func (f *fakeBackend) FunctionAt(addr uint64) (uint64, bool) {
	for entry, end := range f.ends {
		if addr >= entry && addr < end {
			return entry, true
		}
	}
	return 0, false
}

func (f *fakeBackend) NameAt(addr uint64) string { return f.names[addr] }

func (f *fakeBackend) AddrOfName(name string) (uint64, bool) {
	addr, ok := f.byName[name]
	return addr, ok
}

func (f *fakeBackend) IsDefined(addr uint64) bool { return f.defined[addr] }

func (f *fakeBackend) SetName(addr uint64, name string) bool {
	if _, taken := f.byName[name]; taken {
		return false
	}
	if old, ok := f.names[addr]; ok {
		delete(f.byName, old)
	}
	f.names[addr] = name
	f.byName[name] = addr
	return true
}

func (f *fakeBackend) MarkLibrary(addr uint64) { f.library[addr] = true }

// Instruction construction helpers.

func ins(mnemonic string, ops ...Operand) Instruction {
	return Instruction{Mnemonic: mnemonic, Operands: ops}
}

func txt(text string) Operand {
	return Operand{Text: text}
}

func imm(text string, value uint64) Operand {
	return Operand{Text: text, IsImm: true, Value: value}
}

func callIns(targets ...uint64) Instruction {
	return Instruction{Mnemonic: "bl", IsCall: true, CallTargets: targets}
}

func dataIns(mnemonic string, refs ...uint64) Instruction {
	return Instruction{Mnemonic: mnemonic, DataRefs: refs}
}

func blockOf(insts ...Instruction) Block {
	return Block{Instructions: insts}
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}
