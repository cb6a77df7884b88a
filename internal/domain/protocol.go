package domain

import (
	"context"
	"time"
)

// Conn is a single scoped connection to a field device. Every operation
// targets the unit ID the connection was dialed with. Implementations are
// not required to be safe for concurrent use; the engine never shares one.
type Conn interface {
	// ReadHoldingRegisters reads quantity 16-bit words starting at the
	// zero-based PDU address.
	ReadHoldingRegisters(address, quantity uint16) ([]uint16, error)

	// ReadInputRegisters reads quantity 16-bit words from the input table.
	ReadInputRegisters(address, quantity uint16) ([]uint16, error)

	// ReadCoils reads quantity bits from the coil table.
	ReadCoils(address, quantity uint16) ([]bool, error)

	// ReadDiscreteInputs reads quantity bits from the discrete-input table.
	ReadDiscreteInputs(address, quantity uint16) ([]bool, error)

	// WriteCoil writes a single coil.
	WriteCoil(address uint16, value bool) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Dialer opens scoped connections to field devices. No connections are
// pooled: every operation dials, works and closes, trading throughput for
// resilience against devices with few concurrent-socket slots.
type Dialer interface {
	Dial(ctx context.Context, addr string, unitID byte, timeout time.Duration) (Conn, error)
}

// ReadWords issues the word-sized read matching the register's kind.
// Calling it for a binary kind is a programming error surfaced as
// ErrInvalidRegisterKind.
func ReadWords(conn Conn, reg *Register) ([]uint16, error) {
	switch reg.Kind {
	case RegisterKindHolding:
		return conn.ReadHoldingRegisters(reg.PDUAddress(), reg.WordCount())
	case RegisterKindInput:
		return conn.ReadInputRegisters(reg.PDUAddress(), reg.WordCount())
	default:
		return nil, ErrInvalidRegisterKind
	}
}

// ReadBits issues the single-bit read matching the register's kind.
func ReadBits(conn Conn, reg *Register) ([]bool, error) {
	switch reg.Kind {
	case RegisterKindCoil:
		return conn.ReadCoils(reg.PDUAddress(), 1)
	case RegisterKindDiscreteInput:
		return conn.ReadDiscreteInputs(reg.PDUAddress(), 1)
	default:
		return nil, ErrInvalidRegisterKind
	}
}
