// Package analysis implements the live-binary side of the signature
// engine over ARM64 ELF images: function discovery, basic-block recovery,
// string cross-references, and a mutable name table that rename
// operations target.
package analysis

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"sigmatch/internal/disasm"
	"sigmatch/internal/elfx"
	"sigmatch/internal/logging"
	"sigmatch/internal/sig"
)

// Binary is a loaded ELF image together with the derived program view the
// signature engine consumes. It implements sig.Backend. All access is
// single-threaded; the engine never shares a Binary across goroutines.
type Binary struct {
	im *elfx.Image
	lg *log.Logger

	funcs  []sig.Function
	starts []uint64 // function entries, ascending
	ends   []uint64 // exclusive end per entry

	names   map[uint64]string
	byName  map[string]uint64
	library map[uint64]bool

	strs []sig.StringRecord
}

// Open loads and analyzes the binary at path.
func Open(path string, lg *log.Logger) (*Binary, error) {
	im, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}
	b, err := fromImage(im, lg)
	if err != nil {
		im.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the underlying image mapping.
func (b *Binary) Close() error {
	return b.im.Close()
}

func fromImage(im *elfx.Image, lg *log.Logger) (*Binary, error) {
	b := &Binary{
		im:      im,
		lg:      lg,
		names:   make(map[uint64]string),
		byName:  make(map[string]uint64),
		library: make(map[uint64]bool),
	}

	// Every symbol contributes a name, functions and data alike; rename
	// uniqueness is checked against the whole table.
	for _, sym := range im.Syms {
		b.setInitialName(sym.Addr, sym.Name)
	}
	for stub := uint64(0); im.PLT.Size != 0 && stub < im.PLT.Size; stub += 16 {
		va := im.PLT.VA + stub
		if name, ok := im.PLTName(va); ok {
			b.setInitialName(va, name)
		}
	}

	if err := b.discoverFunctions(); err != nil {
		return nil, err
	}
	b.collectStrings()
	return b, nil
}

func (b *Binary) setInitialName(addr uint64, name string) {
	if name == "" {
		return
	}
	if _, taken := b.byName[name]; taken {
		return
	}
	if _, named := b.names[addr]; named {
		return
	}
	b.names[addr] = name
	b.byName[name] = addr
}

// discoverFunctions seeds function entries from STT_FUNC symbols, extends
// the set with direct call targets that fall outside every known function
// (these receive placeholder names), then disassembles each function and
// partitions it into basic blocks.
func (b *Binary) discoverFunctions() error {
	entrySet := make(map[uint64]bool)
	sizes := make(map[uint64]uint64)

	for _, sym := range b.im.Syms {
		if !sym.IsFunc || !b.im.InExec(sym.Addr) || b.im.IsPLTEntry(sym.Addr) {
			continue
		}
		entrySet[sym.Addr] = true
		if sym.Size > 0 {
			sizes[sym.Addr] = sym.Size
		}
	}

	// Sweep the text section once for BL targets that no symbol covers.
	text, ok := b.im.SliceVA(b.im.Text.VA, b.im.Text.Size)
	if !ok {
		return fmt.Errorf("text section unmapped in %s", b.im.Path)
	}
	sweep := disasm.DecodeARM64(text, b.im.Text.VA)
	known := sortedKeys(entrySet)
	for _, ins := range sweep {
		for _, target := range ins.CallTargets {
			if !b.im.InExec(target) || b.im.IsPLTEntry(target) {
				continue
			}
			if coveringEntry(known, sizes, target) != 0 {
				continue
			}
			entrySet[target] = true
		}
	}

	entries := sortedKeys(entrySet)
	textEnd := b.im.Text.VA + b.im.Text.Size

	for i, entry := range entries {
		end := textEnd
		if i+1 < len(entries) {
			end = entries[i+1]
		}
		if sz, ok := sizes[entry]; ok && entry+sz <= end {
			end = entry + sz
		}
		if end <= entry {
			continue
		}

		code, ok := b.im.SliceVA(entry, end-entry)
		if !ok {
			continue // unmapped range, skip the function
		}

		name, named := b.names[entry]
		if !named {
			name = fmt.Sprintf("sub_%x", entry)
			b.setInitialName(entry, name)
		}

		insts := disasm.DecodeARM64(code, entry)
		fn := sig.Function{Entry: entry, Name: name}
		for _, block := range disasm.Blocks(insts) {
			fn.Blocks = append(fn.Blocks, convertBlock(block))
		}

		b.funcs = append(b.funcs, fn)
		b.starts = append(b.starts, entry)
		b.ends = append(b.ends, end)
	}
	return nil
}

func convertBlock(block disasm.BasicBlock) sig.Block {
	out := sig.Block{Start: block.Start}
	for _, ins := range block.Insts {
		conv := sig.Instruction{
			Addr:        ins.VA,
			Mnemonic:    ins.Op,
			IsCall:      ins.IsCall,
			CallTargets: ins.CallTargets,
			CodeRefs:    ins.CodeRefs,
			DataRefs:    ins.DataRefs,
		}
		for _, arg := range ins.Args {
			conv.Operands = append(conv.Operands, sig.Operand{
				Text:  arg.Text,
				IsImm: arg.IsImm,
				Value: arg.Value,
			})
		}
		out.Instructions = append(out.Instructions, conv)
	}
	return out
}

// collectStrings sweeps .rodata for strings and attributes an xref for
// every instruction data reference that lands on a string start.
func (b *Binary) collectStrings() {
	data, ok := b.im.SliceVA(b.im.Rodata.VA, b.im.Rodata.Size)
	if !ok {
		return
	}
	strs := stringRuns(data, b.im.Rodata.VA, MinStringLength)

	byAddr := make(map[uint64]int, len(strs))
	for i, s := range strs {
		byAddr[s.Addr] = i
	}

	for _, fn := range b.funcs {
		for _, block := range fn.Blocks {
			for _, ins := range block.Instructions {
				for _, ref := range ins.DataRefs {
					if i, ok := byAddr[ref]; ok {
						strs[i].Xrefs = append(strs[i].Xrefs, ins.Addr)
					}
				}
			}
		}
	}
	b.strs = strs

	// Escaping every string is only worth it when the output will be seen.
	if logging.IsDebug() {
		for _, s := range strs {
			b.lg.Debug("recovered string",
				"addr", fmt.Sprintf("%x", s.Addr),
				"value", EscapeUnprintable([]byte(s.Value)),
				"xrefs", len(s.Xrefs))
		}
	}
}

func sortedKeys(set map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// coveringEntry returns the entry of the known function containing addr,
// or 0 when addr is inside none. Only symbol-sized functions can cover an
// interior address; an exact entry always counts.
func coveringEntry(entries []uint64, sizes map[uint64]uint64, addr uint64) uint64 {
	i := sort.Search(len(entries), func(i int) bool { return entries[i] > addr })
	if i == 0 {
		return 0
	}
	entry := entries[i-1]
	if entry == addr {
		return entry
	}
	if sz, ok := sizes[entry]; ok && addr < entry+sz {
		return entry
	}
	return 0
}

// sig.Backend implementation.

func (b *Binary) Functions() ([]sig.Function, error) {
	// Names may have changed since discovery; refresh before handing out.
	out := make([]sig.Function, len(b.funcs))
	copy(out, b.funcs)
	for i := range out {
		if name, ok := b.names[out[i].Entry]; ok {
			out[i].Name = name
		}
	}
	return out, nil
}

func (b *Binary) Strings() ([]sig.StringRecord, error) {
	return b.strs, nil
}

func (b *Binary) FunctionAt(addr uint64) (uint64, bool) {
	i := sort.Search(len(b.starts), func(i int) bool { return b.starts[i] > addr })
	if i == 0 {
		return 0, false
	}
	if addr < b.ends[i-1] {
		return b.starts[i-1], true
	}
	return 0, false
}

func (b *Binary) NameAt(addr uint64) string {
	return b.names[addr]
}

func (b *Binary) AddrOfName(name string) (uint64, bool) {
	addr, ok := b.byName[name]
	return addr, ok
}

func (b *Binary) IsDefined(addr uint64) bool {
	_, ok := b.im.VA2Off(addr)
	return ok
}

func (b *Binary) SetName(addr uint64, name string) bool {
	if _, taken := b.byName[name]; taken {
		return false
	}
	if old, ok := b.names[addr]; ok {
		delete(b.byName, old)
	}
	b.names[addr] = name
	b.byName[name] = addr
	return true
}

func (b *Binary) MarkLibrary(addr uint64) {
	b.library[addr] = true
}

// Path returns the path of the underlying image.
func (b *Binary) Path() string {
	return b.im.Path
}

// FunctionCount returns the number of discovered functions.
func (b *Binary) FunctionCount() int {
	return len(b.funcs)
}
