package classfile

import (
	"encoding/binary"
	"fmt"
)

// Opcodes with operands
const (
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIload           = 0x15
	OpAload           = 0x19
	OpIstore          = 0x36
	OpAstore          = 0x3A
	OpIinc            = 0x84
	OpIfeq            = 0x99
	OpJsr             = 0xA8
	OpRet             = 0xA9
	OpTableswitch     = 0xAA
	OpLookupswitch    = 0xAB
	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpWide            = 0xC4
	OpMultianewarray  = 0xC5
	OpIfnull          = 0xC6
	OpIfnonnull       = 0xC7
	OpGotoW           = 0xC8
	OpJsrW            = 0xC9
)

// Instruction is one decoded instruction. PoolIndex is set for instructions
// whose operand is a constant pool index.
type Instruction struct {
	PC        int
	Opcode    byte
	Length    int
	PoolIndex uint16
}

// operandLength is the fixed operand size of each opcode. Switches and wide
// are sized while decoding; -1 marks an opcode with no definition.
var operandLength = func() [256]int {
	var t [256]int
	for op := 0xCA; op < 256; op++ {
		t[op] = -1
	}
	for op := OpIload; op <= OpAload; op++ {
		t[op] = 1
	}
	for op := OpIstore; op <= OpAstore; op++ {
		t[op] = 1
	}
	for op := OpIfeq; op <= OpJsr; op++ {
		t[op] = 2
	}
	t[OpBipush], t[OpLdc], t[OpRet], t[OpNewarray] = 1, 1, 1, 1
	t[OpSipush], t[OpLdcW], t[OpLdc2W], t[OpIinc] = 2, 2, 2, 2
	for op := OpGetstatic; op <= OpInvokestatic; op++ {
		t[op] = 2
	}
	t[OpInvokeinterface], t[OpInvokedynamic] = 4, 4
	t[OpNew], t[OpAnewarray], t[OpCheckcast], t[OpInstanceof] = 2, 2, 2, 2
	t[OpMultianewarray] = 3
	t[OpIfnull], t[OpIfnonnull] = 2, 2
	t[OpGotoW], t[OpJsrW] = 4, 4
	return t
}()

// poolOperandTags lists the constant kinds each pool-referencing opcode
// accepts.
var poolOperandTags = map[byte][]uint8{
	OpLdc:             {TagInteger, TagFloat, TagString, TagClass, TagMethodHandle, TagMethodType, TagDynamic},
	OpLdcW:            {TagInteger, TagFloat, TagString, TagClass, TagMethodHandle, TagMethodType, TagDynamic},
	OpLdc2W:           {TagLong, TagDouble, TagDynamic},
	OpGetstatic:       {TagFieldref},
	OpPutstatic:       {TagFieldref},
	OpGetfield:        {TagFieldref},
	OpPutfield:        {TagFieldref},
	OpInvokevirtual:   {TagMethodref},
	OpInvokespecial:   {TagMethodref, TagInterfaceMethodref},
	OpInvokestatic:    {TagMethodref, TagInterfaceMethodref},
	OpInvokeinterface: {TagInterfaceMethodref},
	OpInvokedynamic:   {TagInvokeDynamic},
	OpNew:             {TagClass},
	OpAnewarray:       {TagClass},
	OpCheckcast:       {TagClass},
	OpInstanceof:      {TagClass},
	OpMultianewarray:  {TagClass},
}

// Instructions decodes code into its instruction sequence.
func Instructions(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		ins, err := decodeInstruction(code, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
		pc += ins.Length
	}
	return out, nil
}

func decodeInstruction(code []byte, pc int) (Instruction, error) {
	op := code[pc]
	ins := Instruction{PC: pc, Opcode: op}

	var n int
	switch op {
	case OpTableswitch, OpLookupswitch:
		// Padding to align to 4-byte boundary
		start := pc + 1
		for start%4 != 0 {
			start++
		}
		header, err := readI32s(code, start, 3)
		if err != nil {
			return ins, fmt.Errorf("%s at pc %d: %w", switchName(op), pc, err)
		}
		var entries int
		if op == OpTableswitch {
			low, high := header[1], header[2]
			if high < low {
				return ins, fmt.Errorf("tableswitch at pc %d: high %d < low %d", pc, high, low)
			}
			entries = int(high) - int(low) + 1
			n = start - pc - 1 + 12 + 4*entries
		} else {
			if header[1] < 0 {
				return ins, fmt.Errorf("lookupswitch at pc %d: negative npairs", pc)
			}
			entries = int(header[1])
			n = start - pc - 1 + 8 + 8*entries
		}
	case OpWide:
		if pc+1 >= len(code) {
			return ins, fmt.Errorf("wide at pc %d: truncated", pc)
		}
		n = 3
		if code[pc+1] == OpIinc {
			n = 5
		}
	default:
		n = operandLength[op]
		if n < 0 {
			return ins, fmt.Errorf("invalid opcode 0x%02X at pc %d", op, pc)
		}
	}

	ins.Length = 1 + n
	if pc+ins.Length > len(code) {
		return ins, fmt.Errorf("opcode 0x%02X at pc %d: operands run past end of code", op, pc)
	}
	if _, ok := poolOperandTags[op]; ok {
		if op == OpLdc {
			ins.PoolIndex = uint16(code[pc+1])
		} else {
			ins.PoolIndex = binary.BigEndian.Uint16(code[pc+1:])
		}
	}
	return ins, nil
}

func switchName(op byte) string {
	if op == OpTableswitch {
		return "tableswitch"
	}
	return "lookupswitch"
}

func readI32s(code []byte, at, count int) ([]int32, error) {
	if at+4*count > len(code) {
		return nil, fmt.Errorf("truncated operands")
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(code[at+4*i:]))
	}
	return out, nil
}

// VerifyConstantOperands checks that every constant pool operand in code
// names an entry of a kind its instruction accepts.
func VerifyConstantOperands(pool []ConstantPoolEntry, code []byte) error {
	instructions, err := Instructions(code)
	if err != nil {
		return err
	}
	for _, ins := range instructions {
		tags, ok := poolOperandTags[ins.Opcode]
		if !ok {
			continue
		}
		entry, err := lookup(pool, ins.PoolIndex)
		if err != nil {
			return fmt.Errorf("opcode 0x%02X at pc %d: %w", ins.Opcode, ins.PC, err)
		}
		if !containsTag(tags, entry.Tag()) {
			return fmt.Errorf("opcode 0x%02X at pc %d: constant %d has tag %d", ins.Opcode, ins.PC, ins.PoolIndex, entry.Tag())
		}
	}
	return nil
}

func containsTag(tags []uint8, tag uint8) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
