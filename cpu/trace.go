package cpu

// Tracer observes instruction execution.  All methods are hot-path
// calls, so implementations should be cheap; the default is a no-op.
type Tracer interface {

	// Fetch is called for every byte read from the opcode stream,
	// with the byte and the address it was fetched from.
	Fetch(b uint8, pc uint16)

	// Op is called once per decoded instruction with a printf-style
	// description of the operation.
	Op(format string, args ...any)

	// Reg8 notes that the numbered 8-bit register was written.
	Reg8(sel uint8)

	// Reg16 notes that the numbered register pair was written.
	Reg16(sel uint8)
}

// nopTracer is used when no tracer has been attached.
type nopTracer struct{}

func (nopTracer) Fetch(uint8, uint16) {}
func (nopTracer) Op(string, ...any)   {}
func (nopTracer) Reg8(uint8)          {}
func (nopTracer) Reg16(uint8)         {}
