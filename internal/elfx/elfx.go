// Package elfx provides helpers for opening ELF binaries, locating sections,
// mapping virtual addresses to file offsets, and resolving symbols and PLT
// stubs.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"syscall"
)

type Image struct {
	Path   string
	File   *elf.File
	All    []byte
	Loads  []Seg
	Text   Section
	Rodata Section
	PLT    Section
	Syms   []Sym // merged dynamic + static symbols, address order
	f      *os.File

	pltNames map[uint64]string // PLT stub address -> imported symbol name
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Sym is one defined symbol. Size may be zero for assembler-produced
// symbols; callers are expected to bound such functions by the next symbol.
type Sym struct {
	Name   string
	Addr   uint64
	Size   uint64
	IsFunc bool
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, f: of, pltNames: make(map[uint64]string)}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  uint64(p.Vaddr),
			Off:    uint64(p.Off),
			Filesz: uint64(p.Filesz),
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		switch s.Name {
		case ".text":
			im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
		case ".rodata", ".rodata.rel.ro":
			if im.Rodata.Size == 0 {
				im.Rodata = Section{s.Name, s.Addr, s.Offset, s.Size}
			}
		case ".plt":
			im.PLT = Section{s.Name, s.Addr, s.Offset, s.Size}
		}
	}

	im.loadSymbols()
	im.resolvePLT()

	// Fallbacks if stripped.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	if im.Rodata.Size == 0 {
		for _, l := range im.Loads {
			if (l.Flags&elf.PF_R != 0) && (l.Flags&elf.PF_W == 0) && l.Filesz > 0 {
				im.Rodata = Section{"LOAD(ro)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset using PT_LOAD
// segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the
// virtual address range [va, va+size). It returns (nil, false) if the VA is
// unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// ReadBytesVA reads exactly size bytes from a virtual address.
func (im *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	return im.SliceVA(va, uint64(size))
}

// InRodata reports whether the VA lies within the chosen read-only data
// region.
func (im *Image) InRodata(va uint64) bool {
	return im.Rodata.Size != 0 && va >= im.Rodata.VA && va < im.Rodata.VA+im.Rodata.Size
}

// InExec reports whether the VA lies within an executable segment.
func (im *Image) InExec(va uint64) bool {
	for _, l := range im.Loads {
		if l.Flags&elf.PF_X != 0 && va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return true
		}
	}
	return false
}

// IsPLTEntry reports whether va lies within the PLT section.
func (im *Image) IsPLTEntry(va uint64) bool {
	return im.PLT.Size != 0 && va >= im.PLT.VA && va < im.PLT.VA+im.PLT.Size
}

// PLTName returns the imported symbol name behind a PLT stub address.
func (im *Image) PLTName(va uint64) (string, bool) {
	name, ok := im.pltNames[va]
	return name, ok
}

// loadSymbols merges dynamic and static symbol tables into a single
// address-ordered list, deduplicated by address. Either table may be
// missing in stripped binaries.
func (im *Image) loadSymbols() {
	if im.File == nil {
		return
	}

	seen := make(map[uint64]bool)
	appendSyms := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Value == 0 || sym.Name == "" || seen[sym.Value] {
				continue
			}
			seen[sym.Value] = true
			im.Syms = append(im.Syms, Sym{
				Name:   sym.Name,
				Addr:   sym.Value,
				Size:   sym.Size,
				IsFunc: elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
			})
		}
	}

	if syms, err := im.File.Symbols(); err == nil {
		appendSyms(syms)
	}
	if dynsyms, err := im.File.DynamicSymbols(); err == nil {
		appendSyms(dynsyms)
	}

	sort.Slice(im.Syms, func(i, j int) bool { return im.Syms[i].Addr < im.Syms[j].Addr })
}

// resolvePLT maps every PLT stub address to the imported symbol it jumps
// through, using .rela.plt (ARM64 uses RELA relocations). Each stub's GOT
// address is recovered by decoding the stub itself, then matched to the
// relocation's r_offset.
func (im *Image) resolvePLT() {
	if im.File == nil || im.PLT.Size == 0 {
		return
	}

	rela := im.File.Section(".rela.plt")
	if rela == nil {
		return
	}
	data, err := rela.Data()
	if err != nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	// GOT slot -> symbol name, from 24-byte RELA entries.
	gotNames := make(map[uint64]string)
	for off := 0; off+24 <= len(data); off += 24 {
		rOffset := binary.LittleEndian.Uint64(data[off:])
		rInfo := binary.LittleEndian.Uint64(data[off+8:])
		symIndex := uint32(rInfo >> 32) // symbols are 1-indexed in relocations
		if symIndex == 0 || int(symIndex) > len(dynsyms) {
			continue
		}
		gotNames[rOffset] = dynsyms[symIndex-1].Name
	}

	// ARM64 PLT layout: PLT[0] is the resolver, then 16-byte stubs.
	const stubSize = 16
	for i := uint64(1); i*stubSize < im.PLT.Size; i++ {
		stubAddr := im.PLT.VA + i*stubSize
		gotAddr, ok := im.parsePLTStub(stubAddr)
		if !ok {
			continue
		}
		if name, ok := gotNames[gotAddr]; ok && name != "" {
			im.pltNames[stubAddr] = name
		}
	}
}

// parsePLTStub decodes an ARM64 PLT stub to extract the GOT address it
// loads through:
//
//	adrp x16, <page>
//	ldr  x17, [x16, #offset]
//	add  x16, x16, #offset
//	br   x17
func (im *Image) parsePLTStub(pltAddr uint64) (uint64, bool) {
	stub, ok := im.SliceVA(pltAddr, 16)
	if !ok || len(stub) < 16 {
		return 0, false
	}

	adrp := binary.LittleEndian.Uint32(stub[0:4])
	if (adrp & 0x9f00001f) != 0x90000010 { // adrp x16
		return 0, false
	}
	immLo := (adrp >> 29) & 3
	immHi := (adrp >> 5) & 0x7ffff
	pageOffset := int64((immHi << 2) | immLo)
	if pageOffset&(1<<20) != 0 { // sign extend
		pageOffset |= ^((1 << 21) - 1)
	}
	pageOffset <<= 12
	pageBase := int64(pltAddr&^0xfff) + pageOffset

	ldr := binary.LittleEndian.Uint32(stub[4:8])
	if (ldr & 0xffc003ff) != 0xf9400211 { // ldr x17, [x16, #imm]
		return 0, false
	}
	offset := ((ldr >> 10) & 0xfff) << 3 // scaled 64-bit load

	return uint64(pageBase) + uint64(offset), true
}
