package disasm

import "sort"

// BasicBlock is a run of instructions with a single entry point, addressed
// by index range into the owning stream.
type BasicBlock struct {
	Start uint64 // VA of the first instruction
	Insts []Inst
}

// Blocks partitions a function's instruction stream into basic blocks in
// address order. Leaders are the entry instruction, every in-function
// branch target, and every instruction following a branch or terminator.
// Calls do not end a block; control returns to the next instruction.
func Blocks(insts Stream) []BasicBlock {
	if len(insts) == 0 {
		return nil
	}

	addrToIdx := make(map[uint64]int, len(insts))
	for i, ins := range insts {
		addrToIdx[ins.VA] = i
	}

	leaders := map[int]bool{0: true}
	for i, ins := range insts {
		if len(ins.CodeRefs) == 0 && !isTerminator(ins) {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, target := range ins.CodeRefs {
			if idx, ok := addrToIdx[target]; ok {
				leaders[idx] = true
			}
		}
	}

	starts := make([]int, 0, len(leaders))
	for idx := range leaders {
		starts = append(starts, idx)
	}
	sort.Ints(starts)

	blocks := make([]BasicBlock, 0, len(starts))
	for i, start := range starts {
		end := len(insts)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		blocks = append(blocks, BasicBlock{
			Start: insts[start].VA,
			Insts: insts[start:end],
		})
	}
	return blocks
}

// isTerminator reports whether control cannot fall through past ins.
func isTerminator(ins Inst) bool {
	switch ins.Op {
	case "ret", "br", "eret":
		return true
	}
	return false
}
