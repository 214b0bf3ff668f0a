package isa

import "fmt"

// DecodeError reports a word that does not correspond to any instruction.
type DecodeError struct {
	Word    uint32
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %#08x: %s", e.Word, e.Message)
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// Decode turns a binary instruction word back into its typed form.
// Decoding then re-encoding always reproduces the original word.
func Decode(word uint32) (Instruction, error) {
	opcode := Opcode(word & 0x7F)
	rd := int((word >> posRd) & 0x1F)
	funct3 := (word >> posFunct3) & 0x7
	rs1 := int((word >> posRs1) & 0x1F)
	rs2 := int((word >> posRs2) & 0x1F)
	funct7 := (word >> posFunct7) & 0x7F
	upper := (word >> posUpper) & 0xFFFFF

	switch opcode {
	case OpRegImm:
		return decodeRegImm(word, rd, funct3, rs1, funct7)

	case OpRegReg:
		op, err := decodeRegRegOp(word, funct3, funct7)
		if err != nil {
			return nil, err
		}
		return RegReg{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2}, nil

	case OpLoadUpper:
		return Lui{Rd: rd, Imm: upper << 12}, nil

	case OpLoad:
		if funct3 != functMemW {
			return nil, &DecodeError{Word: word, Message: "unsupported load width"}
		}
		imm := signExtend((word>>posRs2)&0xFFF, 12)
		return Load{Rd: rd, Base: rs1, Offset: imm}, nil

	case OpStore:
		if funct3 != functMemW {
			return nil, &DecodeError{Word: word, Message: "unsupported store width"}
		}
		imm := signExtend((word>>posRd)&0x1F|((word>>posFunct7)&0x7F)<<5, 12)
		return Store{Src: rs2, Base: rs1, Offset: imm}, nil

	case OpBranch:
		cond, err := decodeBranchCond(word, funct3)
		if err != nil {
			return nil, err
		}
		imm := (word >> (OpcodeWidth + 1)) & 0xF
		imm |= ((word >> posFunct7) & 0x3F) << 4
		imm |= ((word >> OpcodeWidth) & 0x1) << 10
		imm |= ((word >> (posFunct7 + 6)) & 0x1) << 11
		return &Branch{Cond: cond, Rs1: rs1, Rs2: rs2, Offset: signExtend(imm, 12)}, nil

	case OpJump:
		imm := (word >> (OpcodeWidth + RegisterWidth + 9)) & 0x3FF
		imm |= ((word >> (OpcodeWidth + RegisterWidth + 8)) & 0x1) << 10
		imm |= ((word >> (OpcodeWidth + RegisterWidth)) & 0xFF) << 11
		imm |= ((word >> (OpcodeWidth + RegisterWidth + 19)) & 0x1) << 19
		return &Jump{Offset: signExtend(imm, 20)}, nil

	case OpWaitImm:
		return WaitImm{Cycles: upper}, nil

	case OpWaitReg:
		return WaitReg{Reg: rd}, nil

	case OpTrigWaitReg:
		return TriggerWaitReg{Reg: rd}, nil

	case OpTrigger:
		raw := upper << 12
		var modules [TriggerModules]int
		modules[0] = int((raw >> 16) & 0xF)
		modules[1] = int((raw >> 20) & 0x3)
		modules[2] = int((raw >> 22) & 0xF)
		modules[3] = int((raw >> 26) & 0x3)
		modules[4] = int((raw >> 28) & 0x3)
		modules[5] = int((raw >> 30) & 0x3)
		return Trigger{
			raw:     raw,
			Modules: modules,
			Sync:    raw&(1<<14) != 0,
			Reset:   raw&(1<<12) != 0,
		}, nil

	case OpCellSync:
		raw := upper << 12
		var cells []int
		for c := 0; c < 16; c++ {
			if raw&(1<<(16+uint(c))) != 0 {
				cells = append(cells, c)
			}
		}
		return CellSync{raw: raw, Cells: cells}, nil

	case OpRegSend:
		syncCell := int((word>>posRd)&0x1F | ((word>>posFunct7)&0x7F)<<5)
		return RegSend{SendReg: rs1, SyncCell: syncCell, SyncReg: rs2}, nil

	case OpRegReceive:
		raw := upper << 12
		return RegReceive{raw: raw, SenderCell: int((raw >> 12) & 0xF), Rd: rd}, nil

	case OpSynch:
		switch funct3 {
		case functSynchStart:
			return End{}, nil
		case functSynchQubitState:
			cell := int((word >> posRs2) & 0xFFF)
			return AwaitQubitState{Cell: cell, Rd: rd}, nil
		}
		return nil, &DecodeError{Word: word, Message: "unknown synch funct3"}
	}

	return nil, &DecodeError{Word: word, Message: "unknown opcode"}
}

// decodeRegImm resolves a register-immediate word. The shift-right
// variants keep their funct7 bits on top of the immediate field, so the
// immediate narrows to the 5-bit shift amount there.
func decodeRegImm(word uint32, rd int, funct3 uint32, rs1 int, funct7 uint32) (Instruction, error) {
	var op AluOp
	switch funct3 {
	case functImmAdd:
		op = AluAdd
	case functImmSll:
		op = AluLsh
	case functImmXor:
		op = AluXor
	case functImmOr:
		op = AluOr
	case functImmAnd:
		op = AluAnd
	case functImmSr:
		if funct7 != funct7Sra && funct7 != funct7Srl {
			return nil, &DecodeError{Word: word, Message: "unknown shift funct7"}
		}
		return RegImm{Op: AluRsh, Rd: rd, Rs: rs1, Imm: int32((word >> posRs2) & 0x1F)}, nil
	default:
		return nil, &DecodeError{Word: word, Message: "unknown register-immediate funct3"}
	}
	imm := signExtend((word>>posRs2)&0xFFF, 12)
	return RegImm{Op: op, Rd: rd, Rs: rs1, Imm: imm}, nil
}

// decodeBranchCond resolves a branch funct3. GT and LE have no hardware
// encoding, so only the six encodable conditions appear here.
func decodeBranchCond(word uint32, funct3 uint32) (Condition, error) {
	switch funct3 {
	case functBeq:
		return CondEQ, nil
	case functBne:
		return CondNE, nil
	case functBlt:
		return CondLT, nil
	case functBge:
		return CondGE, nil
	case functBltu:
		return CondLTU, nil
	case functBgeu:
		return CondGEU, nil
	}
	return 0, &DecodeError{Word: word, Message: "unknown branch funct3"}
}

// decodeRegRegOp resolves the funct3/funct7 pair, including the shared
// funct3 of ADD, SUB and MUL.
func decodeRegRegOp(word uint32, funct3, funct7 uint32) (AluOp, error) {
	switch funct3 {
	case functRegAddSubMul:
		switch funct7 {
		case funct7Mul:
			return AluMul, nil
		case funct7Sub:
			return AluSub, nil
		default:
			return AluAdd, nil
		}
	case functRegSllMulh:
		return AluLsh, nil
	case functRegXor:
		return AluXor, nil
	case functRegSrlSra:
		return AluRsh, nil
	case functRegOr:
		return AluOr, nil
	case functRegAnd:
		return AluAnd, nil
	}
	return 0, &DecodeError{Word: word, Message: "unknown register-register funct3"}
}
