package disasm

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// adrpWindow bounds how far below an ADD the matching ADRP may sit when
// pairing the two into a single materialized data address.
const adrpWindow = 16

// DecodeARM64 decodes a code range into a Stream. va is the virtual address
// of code[0]. Undecodable words are kept as opaque instructions so block
// boundaries and signatures still account for them.
func DecodeARM64(code []byte, va uint64) Stream {
	insts := make(Stream, 0, len(code)/4)

	for i := 0; i+4 <= len(code); i += 4 {
		pc := va + uint64(i)
		var raw [4]byte
		copy(raw[:], code[i:i+4])

		inst, err := arm64asm.Decode(code[i : i+4])
		if err != nil {
			word := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
			insts = append(insts, Inst{
				VA:   pc,
				Text: fmt.Sprintf(".word 0x%08x", word),
				Op:   "undefined",
				Raw:  raw,
			})
			continue
		}

		insts = append(insts, decodeOne(inst, pc, raw))
	}

	pairADRPAdd(insts)
	return insts
}

func decodeOne(inst arm64asm.Inst, pc uint64, raw [4]byte) Inst {
	out := Inst{
		VA:   pc,
		Text: strings.ToLower(inst.String()),
		Op:   strings.ToLower(inst.Op.String()),
		Raw:  raw,
	}

	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		op := Operand{Text: strings.ToLower(arg.String())}
		if v, ok := parseImmediate(arg); ok {
			op.IsImm = true
			op.Value = v
		}
		out.Args = append(out.Args, op)
	}

	switch inst.Op {
	case arm64asm.BL:
		out.IsCall = true
		if pcRel, ok := inst.Args[0].(arm64asm.PCRel); ok {
			out.CallTargets = append(out.CallTargets, uint64(int64(pc)+int64(pcRel)))
		}
	case arm64asm.BLR:
		// Indirect call: no resolvable target.
		out.IsCall = true
	case arm64asm.B, arm64asm.CBZ, arm64asm.CBNZ, arm64asm.TBZ, arm64asm.TBNZ:
		if target, ok := pcRelTarget(inst, pc); ok {
			out.CodeRefs = append(out.CodeRefs, target)
		}
	case arm64asm.ADR:
		if pcRel, ok := inst.Args[1].(arm64asm.PCRel); ok {
			out.DataRefs = append(out.DataRefs, uint64(int64(pc)+int64(pcRel)))
		}
	case arm64asm.ADRP:
		// Page base only; pairADRPAdd refines it when an ADD completes the
		// address.
		if pcRel, ok := inst.Args[1].(arm64asm.PCRel); ok {
			page := uint64(int64(pc)+int64(pcRel)) &^ 0xfff
			out.DataRefs = append(out.DataRefs, page)
		}
	case arm64asm.LDR, arm64asm.LDRSW:
		// Literal loads reference the pool directly.
		if target, ok := pcRelTarget(inst, pc); ok {
			out.DataRefs = append(out.DataRefs, target)
		}
	}

	return out
}

// pcRelTarget finds the PC-relative argument of an instruction, scanning
// from the end since branch targets are the last operand.
func pcRelTarget(inst arm64asm.Inst, pc uint64) (uint64, bool) {
	for i := len(inst.Args) - 1; i >= 0; i-- {
		if pcRel, ok := inst.Args[i].(arm64asm.PCRel); ok {
			return uint64(int64(pc) + int64(pcRel)), true
		}
	}
	return 0, false
}

// parseImmediate extracts an immediate value from an instruction argument.
func parseImmediate(arg arm64asm.Arg) (uint64, bool) {
	switch a := arg.(type) {
	case arm64asm.Imm:
		return uint64(a.Imm), true
	case arm64asm.Imm64:
		return a.Imm, true
	case arm64asm.ImmShift:
		str := a.String()
		if strings.HasPrefix(str, "#0x") {
			if val, err := strconv.ParseUint(str[3:], 16, 64); err == nil {
				return val, true
			}
		} else if strings.HasPrefix(str, "#") {
			if val, err := strconv.ParseInt(str[1:], 10, 64); err == nil {
				return uint64(val), true
			}
		}
	}
	return 0, false
}

// pairADRPAdd walks the stream and, for every "add xd, xn, #imm" whose
// source register was set by a recent ADRP, records the materialized
// address page+imm as a data reference of the ADD. String references on
// ARM64 are almost always formed this way.
func pairADRPAdd(insts Stream) {
	type pageVal struct {
		page uint64
		idx  int
	}
	pages := make(map[string]pageVal)

	for i := range insts {
		ins := &insts[i]

		if ins.Op == "adrp" && len(ins.Args) >= 2 && len(ins.DataRefs) == 1 {
			pages[ins.Args[0].Text] = pageVal{page: ins.DataRefs[0], idx: i}
			continue
		}

		if ins.Op == "add" && len(ins.Args) >= 3 && ins.Args[2].IsImm {
			src := ins.Args[1].Text
			if pv, ok := pages[src]; ok && i-pv.idx <= adrpWindow {
				ins.DataRefs = append(ins.DataRefs, pv.page+ins.Args[2].Value)
			}
		}

		// Any other write to a tracked register invalidates its page.
		if len(ins.Args) > 0 && ins.Op != "adrp" {
			delete(pages, ins.Args[0].Text)
		}
	}
}
