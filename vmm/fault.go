package vmm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"alos/mem"
)

// FaultErrorCode decodes the architectural page-fault error code: bit 0
// present, bit 1 write, bit 2 user, bit 3 reserved-bit violation, bit 4
// instruction fetch.
type FaultErrorCode uint32

func (c FaultErrorCode) present() bool  { return c&1 != 0 }
func (c FaultErrorCode) write() bool    { return c&(1<<1) != 0 }
func (c FaultErrorCode) user() bool     { return c&(1<<2) != 0 }
func (c FaultErrorCode) instrFetch() bool { return c&(1<<4) != 0 }

// FaultInfo describes one page fault, handed to the halt callback
// configured at Manager construction.
type FaultInfo struct {
	Code      FaultErrorCode
	Address   mem.Va
	Message   string
	Disasm    string
}

// Fault is the VMM's page-fault entry point (spec.md §4.2). code and
// addr come straight from the architectural fault registers. instrBytes,
// when non-nil, is a short window of bytes at the faulting instruction
// pointer, used only to produce a readable disassembly in the fatal log
// line — the VMM never executes or validates these bytes itself.
//
// Per spec.md §4.2's fault policy, every fault this kernel core sees is
// fatal: a fault above the user boundary in the kernel half, or a fault
// in an unmapped user page (no demand paging, an explicit non-goal).
// Fault logs the condition and invokes the configured halt callback
// (if one was configured), then returns; stopping the faulting context
// is left to that callback.
func (m *Manager) Fault(as *AddressSpace, code FaultErrorCode, addr mem.Va, instrBytes []byte) {
	msg := "page fault in unmapped page"
	if code.present() {
		msg = "protection violation"
	}

	disasm := ""
	if len(instrBytes) > 0 {
		if inst, err := x86asm.Decode(instrBytes, 64); err == nil {
			disasm = x86asm.GoSyntax(inst, 0, nil)
		} else {
			disasm = fmt.Sprintf("<undecodable: %v>", err)
		}
	}

	info := FaultInfo{Code: code, Address: addr, Message: msg, Disasm: disasm}
	log.Fatal("vmm.Fault", msg, map[string]interface{}{
		"address": fmt.Sprintf("%#x", addr),
		"write":   code.write(),
		"user":    code.user(),
		"instr":   code.instrFetch(),
		"disasm":  disasm,
	})

	if m.haltFn != nil {
		m.haltFn(info)
	}
}
