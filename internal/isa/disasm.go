package isa

import (
	"fmt"
	"strings"
)

// Disassemble renders a program as an assembly listing, one instruction
// per line with its address. Words that do not decode are shown as raw
// hex so a partially corrupted dump still prints.
func Disassemble(words []uint32) string {
	var b strings.Builder
	for addr, word := range words {
		inst, err := Decode(word)
		if err != nil {
			fmt.Fprintf(&b, "%4d: .word %#08x\n", addr, word)
			continue
		}
		fmt.Fprintf(&b, "%4d: %s\n", addr, inst)
	}
	return b.String()
}

// Listing renders instructions that have not been encoded yet, in the
// same format as Disassemble.
func Listing(instructions []Instruction) string {
	var b strings.Builder
	for addr, inst := range instructions {
		fmt.Fprintf(&b, "%4d: %s\n", addr, inst)
	}
	return b.String()
}
