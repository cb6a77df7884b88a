// Package modbus adapts the goburrow Modbus TCP client to the engine's
// fieldbus port. Every connection is scoped: dialed for one operation
// sequence and closed on every exit path.
package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/domain"
)

// Dialer opens scoped Modbus TCP connections. It implements domain.Dialer.
type Dialer struct {
	logger zerolog.Logger
}

// NewDialer creates a Modbus TCP dialer.
func NewDialer(logger zerolog.Logger) *Dialer {
	return &Dialer{
		logger: logger.With().Str("component", "modbus-dialer").Logger(),
	}
}

// Dial connects to addr with a bounded timeout and returns a connection
// bound to the given unit ID.
func (d *Dialer) Dial(ctx context.Context, addr string, unitID byte, timeout time.Duration) (domain.Conn, error) {
	if unitID == 0 || unitID > 247 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidUnitID, unitID)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	handler := modbus.NewTCPClientHandler(addr)
	handler.Timeout = timeout
	handler.SlaveId = unitID

	// The handler has no context-aware connect; bound it ourselves so a
	// hung TCP dial cannot stall the caller past its deadline.
	connectDone := make(chan error, 1)
	go func() {
		connectDone <- handler.Connect()
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
		}
	case <-ctx.Done():
		// The orphaned connect closes itself via the handler's own timeout.
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionTimeout, ctx.Err())
	}

	d.logger.Debug().Str("addr", addr).Uint8("unit_id", unitID).Msg("Connected to Modbus device")

	return &conn{
		handler: handler,
		client:  modbus.NewClient(handler),
	}, nil
}

// conn is a single scoped Modbus TCP connection.
type conn struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func (c *conn) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	data, err := c.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, translateError(err)
	}
	return bytesToWords(data, quantity)
}

func (c *conn) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	data, err := c.client.ReadInputRegisters(address, quantity)
	if err != nil {
		return nil, translateError(err)
	}
	return bytesToWords(data, quantity)
}

func (c *conn) ReadCoils(address, quantity uint16) ([]bool, error) {
	data, err := c.client.ReadCoils(address, quantity)
	if err != nil {
		return nil, translateError(err)
	}
	return bytesToBits(data, quantity)
}

func (c *conn) ReadDiscreteInputs(address, quantity uint16) ([]bool, error) {
	data, err := c.client.ReadDiscreteInputs(address, quantity)
	if err != nil {
		return nil, translateError(err)
	}
	return bytesToBits(data, quantity)
}

func (c *conn) WriteCoil(address uint16, value bool) error {
	var coilValue uint16
	if value {
		coilValue = 0xFF00 // ON
	}
	if _, err := c.client.WriteSingleCoil(address, coilValue); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
	}
	return nil
}

func (c *conn) Close() error {
	return c.handler.Close()
}

// bytesToWords unpacks the big-endian wire payload into register words.
func bytesToWords(data []byte, quantity uint16) ([]uint16, error) {
	if len(data) < int(quantity)*2 {
		return nil, fmt.Errorf("%w: %d bytes for %d registers", domain.ErrShortPayload, len(data), quantity)
	}
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return words, nil
}

// bytesToBits unpacks LSB-first packed coil status bytes.
func bytesToBits(data []byte, quantity uint16) ([]bool, error) {
	if len(data)*8 < int(quantity) {
		return nil, fmt.Errorf("%w: %d bytes for %d bits", domain.ErrShortPayload, len(data), quantity)
	}
	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return bits, nil
}

// translateError maps goburrow exception errors to domain errors, keeping
// the original message for context.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if mbErr, ok := err.(*modbus.ModbusError); ok {
		return fmt.Errorf("%w: %v", domain.ModbusExceptionToError(mbErr.ExceptionCode), err)
	}
	return fmt.Errorf("%w: %v", domain.ErrReadFailed, err)
}
