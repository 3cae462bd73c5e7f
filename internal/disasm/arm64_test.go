package disasm

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func words(ws ...uint32) []byte {
	out := make([]byte, 0, len(ws)*4)
	for _, w := range ws {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestDecodeARM64(t *testing.T) {
	const va = 0x400000
	code := words(
		0xd503201f, // nop
		0x94000002, // bl .+8
		0x10000040, // adr x0, .+8
		0xd65f03c0, // ret
		0x00000000, // undecodable
	)

	insts := DecodeARM64(code, va)
	if len(insts) != 5 {
		t.Fatalf("decoded %d instructions, want 5", len(insts))
	}

	if insts[0].Op != "nop" {
		t.Errorf("inst 0 op = %q, want nop", insts[0].Op)
	}

	if !insts[1].IsCall {
		t.Error("bl not recognized as call")
	}
	if want := []uint64{va + 4 + 8}; !reflect.DeepEqual(insts[1].CallTargets, want) {
		t.Errorf("bl targets = %#x, want %#x", insts[1].CallTargets, want)
	}

	if want := []uint64{va + 8 + 8}; !reflect.DeepEqual(insts[2].DataRefs, want) {
		t.Errorf("adr data refs = %#x, want %#x", insts[2].DataRefs, want)
	}

	if insts[3].Op != "ret" {
		t.Errorf("inst 3 op = %q, want ret", insts[3].Op)
	}

	if insts[4].Op != "undefined" {
		t.Errorf("inst 4 op = %q, want undefined", insts[4].Op)
	}
	for i, ins := range insts {
		if want := uint64(va + i*4); ins.VA != want {
			t.Errorf("inst %d VA = %#x, want %#x", i, ins.VA, want)
		}
	}
}

func TestDecodeARM64TruncatedTail(t *testing.T) {
	code := append(words(0xd503201f), 0xaa, 0xbb)
	insts := DecodeARM64(code, 0x1000)
	if len(insts) != 1 {
		t.Fatalf("decoded %d instructions, want 1", len(insts))
	}
}

func TestPairADRPAdd(t *testing.T) {
	adrp := func(va uint64, reg string, page uint64) Inst {
		return Inst{VA: va, Op: "adrp", Args: []Operand{{Text: reg}, {Text: "."}}, DataRefs: []uint64{page}}
	}
	add := func(va uint64, dst, src string, off uint64) Inst {
		return Inst{VA: va, Op: "add", Args: []Operand{
			{Text: dst}, {Text: src}, {Text: "#off", IsImm: true, Value: off},
		}}
	}

	t.Run("pairs", func(t *testing.T) {
		insts := Stream{
			adrp(0x1000, "x0", 0x11000),
			add(0x1004, "x0", "x0", 0x234),
		}
		pairADRPAdd(insts)
		if want := []uint64{0x11234}; !reflect.DeepEqual(insts[1].DataRefs, want) {
			t.Fatalf("add data refs = %#x, want %#x", insts[1].DataRefs, want)
		}
	})

	t.Run("clobber invalidates", func(t *testing.T) {
		insts := Stream{
			adrp(0x1000, "x0", 0x11000),
			{VA: 0x1004, Op: "mov", Args: []Operand{{Text: "x0"}, {Text: "x1"}}},
			add(0x1008, "x1", "x0", 0x234),
		}
		pairADRPAdd(insts)
		if len(insts[2].DataRefs) != 0 {
			t.Fatalf("add paired with clobbered page: %#x", insts[2].DataRefs)
		}
	})

	t.Run("other register untouched", func(t *testing.T) {
		insts := Stream{
			adrp(0x1000, "x8", 0x20000),
			{VA: 0x1004, Op: "mov", Args: []Operand{{Text: "x0"}, {Text: "x1"}}},
			add(0x1008, "x1", "x8", 0x10),
		}
		pairADRPAdd(insts)
		if want := []uint64{0x20010}; !reflect.DeepEqual(insts[2].DataRefs, want) {
			t.Fatalf("add data refs = %#x, want %#x", insts[2].DataRefs, want)
		}
	})
}
