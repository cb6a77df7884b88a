// Package domain contains core business entities.
package domain

import "errors"

// Connection errors.
var (
	ErrConnectionFailed   = errors.New("connection failed")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrInvalidUnitID      = errors.New("invalid unit ID")
)

// Read/decode errors.
var (
	ErrReadFailed          = errors.New("read operation failed")
	ErrShortPayload        = errors.New("decode: short register payload")
	ErrInvalidDataType     = errors.New("invalid data type")
	ErrInvalidRegisterKind = errors.New("invalid register kind")
)

// Write errors.
var (
	ErrWriteFailed    = errors.New("write operation failed")
	ErrNotWritable    = errors.New("register is not a writable coil")
	ErrWriteQueueFull = errors.New("write command queue full")
)

// Modbus exception errors.
var (
	ErrModbusIllegalFunction = errors.New("modbus: illegal function")
	ErrModbusIllegalAddress  = errors.New("modbus: illegal data address")
	ErrModbusIllegalValue    = errors.New("modbus: illegal data value")
	ErrModbusDeviceFailure   = errors.New("modbus: slave device failure")
	ErrModbusAcknowledge     = errors.New("modbus: acknowledge - long operation in progress")
	ErrModbusBusy            = errors.New("modbus: slave device busy")
)

// MQTT errors.
var (
	ErrMQTTConnectionFailed = errors.New("MQTT connection failed")
	ErrMQTTPublishFailed    = errors.New("MQTT publish failed")
	ErrMQTTNotConnected     = errors.New("MQTT client not connected")
)

// Session and alarm state machine errors.
var (
	ErrSessionActiveExists   = errors.New("another test session is already running or paused")
	ErrInvalidTransition     = errors.New("transition not valid from current session status")
	ErrSessionNotFound       = errors.New("test session not found")
	ErrEpisodeNotFound       = errors.New("alarm episode not found")
	ErrInvalidAcknowledgment = errors.New("episode cannot be acknowledged in its current status")
)

// Service errors.
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrRegisterNotFound = errors.New("register not found")
	ErrPollInProgress   = errors.New("previous poll cycle still running")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// ModbusExceptionToError converts a Modbus exception code to a domain error.
func ModbusExceptionToError(code byte) error {
	switch code {
	case 0x01:
		return ErrModbusIllegalFunction
	case 0x02:
		return ErrModbusIllegalAddress
	case 0x03:
		return ErrModbusIllegalValue
	case 0x04:
		return ErrModbusDeviceFailure
	case 0x05:
		return ErrModbusAcknowledge
	case 0x06:
		return ErrModbusBusy
	default:
		return ErrReadFailed
	}
}
