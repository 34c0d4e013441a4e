// Package rvasm is a minimal two-pass assembler for a useful subset of
// RV32I, used to build small guest programs for tests and the `asm`
// CLI subcommand rather than hand-encoding instruction words.
//
// Syntax is line-oriented: one instruction or directive per line,
// `#`-delimited comments, and `label:` definitions. It does not attempt
// to be a complete RV32I assembler — no pseudo-instructions beyond
// `nop` and `li` for small immediates, no linker relocations, no
// assembler directives besides `.word`.
package rvasm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Program is an assembled sequence of 32-bit little-endian words, ready
// to be written into a guest address space starting at its load
// address.
type Program struct {
	Words  []uint32
	Labels map[string]uint32
}

// Bytes returns the program encoded as little-endian bytes.
func (p Program) Bytes() []byte {
	out := make([]byte, 0, len(p.Words)*4)

	for _, w := range p.Words {
		out = append(out, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}

	return out
}

type srcLine struct {
	label string
	op    string
	args  []string
	num   int
}

// Assemble reads source from r and produces a Program. Addresses are
// relative to base: a label resolves to base + 4*index.
func Assemble(r *bufio.Reader, base uint32) (Program, error) {
	lines, err := tokenize(r)
	if err != nil {
		return Program{}, err
	}

	labels := make(map[string]uint32)
	idx := uint32(0)

	for _, l := range lines {
		if l.label != "" {
			labels[l.label] = base + idx*4
		}

		if l.op != "" {
			idx++
		}
	}

	words := make([]uint32, 0, idx)
	pc := base

	for _, l := range lines {
		if l.op == "" {
			continue
		}

		word, err := encode(l, pc, labels)
		if err != nil {
			return Program{}, fmt.Errorf("rvasm: line %d: %w", l.num, err)
		}

		words = append(words, word)
		pc += 4
	}

	return Program{Words: words, Labels: labels}, nil
}

func tokenize(r *bufio.Reader) ([]srcLine, error) {
	var lines []srcLine

	scanner := bufio.NewScanner(r)

	for n := 1; scanner.Scan(); n++ {
		text := scanner.Text()

		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		var label string

		if i := strings.IndexByte(text, ':'); i >= 0 {
			label = strings.TrimSpace(text[:i])
			text = strings.TrimSpace(text[i+1:])
		}

		if text == "" {
			lines = append(lines, srcLine{label: label, num: n})
			continue
		}

		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})

		lines = append(lines, srcLine{label: label, op: strings.ToLower(fields[0]), args: fields[1:], num: n})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rvasm: %w", err)
	}

	return lines, nil
}

func parseReg(s string) (uint32, error) {
	s = strings.ToLower(s)

	if name, ok := abiNames[s]; ok {
		return name, nil
	}

	if strings.HasPrefix(s, "x") {
		n, err := strconv.Atoi(s[1:])
		if err == nil && n >= 0 && n < 32 {
			return uint32(n), nil
		}
	}

	return 0, fmt.Errorf("rvasm: bad register %q", s)
}

var abiNames = map[string]uint32{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4,
	"t0": 5, "t1": 6, "t2": 7, "s0": 8, "fp": 8, "s1": 9,
	"a0": 10, "a1": 11, "a2": 12, "a3": 13, "a4": 14, "a5": 15, "a6": 16, "a7": 17,
	"s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"s8": 24, "s9": 25, "s10": 26, "s11": 27,
	"t3": 28, "t4": 29, "t5": 30, "t6": 31,
}

func parseImm(s string, pc uint32, labels map[string]uint32) (int32, error) {
	if v, ok := labels[s]; ok {
		return int32(v) - int32(pc), nil
	}

	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("rvasm: bad immediate %q", s)
	}

	return int32(n), nil
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// encodeU packs imm as the raw 20-bit upper-immediate value (as written
// by a user, e.g. "lui a0, 0x10" means a0 = 0x10000), shifting it into
// its bits-31:12 position.
func encodeU(opcode, rd uint32, imm int32) uint32 {
	return (uint32(imm)&0xfffff)<<12 | rd<<7 | opcode
}

func encodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func encodeB(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u>>1&0xf)<<8 | (u>>11&1)<<7 | opcode
}

func encodeJ(opcode, rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12 | rd<<7 | opcode
}

// RV32I major opcodes, mirroring the interpreter's own constants (kept
// independent to avoid a compile-time dependency cycle between the
// interpreter and its test assembler).
const (
	opLoad    = 0b0000011
	opMiscMem = 0b0001111
	opImm     = 0b0010011
	opAUIPC   = 0b0010111
	opStore   = 0b0100011
	opOP      = 0b0110011
	opLUI     = 0b0110111
	opBranch  = 0b1100011
	opJALR    = 0b1100111
	opJAL     = 0b1101111
	opSystem  = 0b1110011
)

var rtype = map[string][3]uint32{ // funct3, funct7, -
	"add": {0b000, 0x00}, "sub": {0b000, 0x20},
	"sll": {0b001, 0x00}, "slt": {0b010, 0x00}, "sltu": {0b011, 0x00},
	"xor": {0b100, 0x00}, "srl": {0b101, 0x00}, "sra": {0b101, 0x20},
	"or": {0b110, 0x00}, "and": {0b111, 0x00},
}

var itype = map[string]uint32{
	"addi": 0b000, "slti": 0b010, "sltiu": 0b011,
	"xori": 0b100, "ori": 0b110, "andi": 0b111,
	"slli": 0b001, "srli": 0b101, "srai": 0b101,
}

var loadFunct3 = map[string]uint32{
	"lb": 0b000, "lh": 0b001, "lw": 0b010, "lbu": 0b100, "lhu": 0b101,
}

var storeFunct3 = map[string]uint32{
	"sb": 0b000, "sh": 0b001, "sw": 0b010,
}

var branchFunct3 = map[string]uint32{
	"beq": 0b000, "bne": 0b001, "blt": 0b100, "bge": 0b101, "bltu": 0b110, "bgeu": 0b111,
}

func encode(l srcLine, pc uint32, labels map[string]uint32) (uint32, error) {
	switch l.op {
	case ".word":
		n, err := strconv.ParseUint(l.args[0], 0, 32)
		return uint32(n), err

	case "nop":
		return encodeI(opImm, 0, 0, 0, 0), nil

	case "ecall":
		return opSystem, nil

	case "li": // pseudo: addi rd, zero, imm (12-bit range only)
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		imm, err := parseImm(l.args[1], pc, labels)
		if err != nil {
			return 0, err
		}

		return encodeI(opImm, rd, 0, 0, imm), nil

	case "lui":
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		imm, err := parseImm(l.args[1], pc, labels)
		if err != nil {
			return 0, err
		}

		return encodeU(opLUI, rd, imm), nil

	case "auipc":
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		imm, err := parseImm(l.args[1], pc, labels)
		if err != nil {
			return 0, err
		}

		return encodeU(opAUIPC, rd, imm), nil

	case "jal":
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		imm, err := parseImm(l.args[1], pc, labels)
		if err != nil {
			return 0, err
		}

		return encodeJ(opJAL, rd, imm), nil

	case "jalr":
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		rs1, err := parseReg(l.args[1])
		if err != nil {
			return 0, err
		}

		imm, err := parseImmLiteral(l.args[2])
		if err != nil {
			return 0, err
		}

		return encodeI(opJALR, rd, 0, rs1, imm), nil
	}

	if fns, ok := rtype[l.op]; ok {
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		rs1, err := parseReg(l.args[1])
		if err != nil {
			return 0, err
		}

		rs2, err := parseReg(l.args[2])
		if err != nil {
			return 0, err
		}

		return encodeR(opOP, rd, fns[0], rs1, rs2, fns[1]), nil
	}

	if funct3, ok := itype[l.op]; ok {
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		rs1, err := parseReg(l.args[1])
		if err != nil {
			return 0, err
		}

		imm, err := parseImmLiteral(l.args[2])
		if err != nil {
			return 0, err
		}

		if l.op == "srai" {
			imm |= 0x20 << 5
		}

		return encodeI(opImm, rd, funct3, rs1, imm), nil
	}

	if funct3, ok := loadFunct3[l.op]; ok {
		rd, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		rs1, imm, err := parseOffset(l.args[1])
		if err != nil {
			return 0, err
		}

		return encodeI(opLoad, rd, funct3, rs1, imm), nil
	}

	if funct3, ok := storeFunct3[l.op]; ok {
		rs2, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		rs1, imm, err := parseOffset(l.args[1])
		if err != nil {
			return 0, err
		}

		return encodeS(opStore, funct3, rs1, rs2, imm), nil
	}

	if funct3, ok := branchFunct3[l.op]; ok {
		rs1, err := parseReg(l.args[0])
		if err != nil {
			return 0, err
		}

		rs2, err := parseReg(l.args[1])
		if err != nil {
			return 0, err
		}

		imm, err := parseImm(l.args[2], pc, labels)
		if err != nil {
			return 0, err
		}

		return encodeB(opBranch, funct3, rs1, rs2, imm), nil
	}

	return 0, fmt.Errorf("rvasm: unknown mnemonic %q", l.op)
}

// parseImmLiteral parses a plain numeric immediate (not label-relative),
// used by instructions whose immediate is never a branch/jump target.
func parseImmLiteral(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("rvasm: bad immediate %q", s)
	}

	return int32(n), nil
}

// parseOffset parses a load/store operand of the form "imm(reg)".
func parseOffset(s string) (rs1 uint32, imm int32, err error) {
	open := strings.IndexByte(s, '(')

	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("rvasm: bad memory operand %q", s)
	}

	immStr := s[:open]
	if immStr == "" {
		immStr = "0"
	}

	n, err := parseImmLiteral(immStr)
	if err != nil {
		return 0, 0, err
	}

	reg, err := parseReg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}

	return reg, n, nil
}
