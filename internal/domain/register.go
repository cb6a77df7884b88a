// Package domain contains core business entities.
package domain

import (
	"fmt"
	"time"
)

// DataType represents the decoded data type of a register value.
type DataType string

const (
	DataTypeUInt16  DataType = "UINT16"
	DataTypeInt16   DataType = "INT16"
	DataTypeUInt32  DataType = "UINT32"
	DataTypeInt32   DataType = "INT32"
	DataTypeFloat32 DataType = "FLOAT32"
	DataTypeString  DataType = "STRING"
)

// RegisterKind represents the fieldbus register table a register lives in.
type RegisterKind string

const (
	RegisterKindHolding       RegisterKind = "holding"        // Read/Write, 16 bits
	RegisterKindCoil          RegisterKind = "coil"           // Read/Write, 1 bit
	RegisterKindInput         RegisterKind = "input"          // Read-only, 16 bits
	RegisterKindDiscreteInput RegisterKind = "discrete_input" // Read-only, 1 bit
)

// ByteOrder represents the byte ordering for multi-byte values.
// The same flag governs intra-word byte order and inter-word order.
type ByteOrder string

const (
	ByteOrderBig    ByteOrder = "BIG"    // ABCD
	ByteOrderLittle ByteOrder = "LITTLE" // DCBA
)

// DisplayMode selects how a decoded value is presented to subscribers.
type DisplayMode string

const (
	DisplayModeNumeric DisplayMode = "numeric"
	DisplayModeEnum    DisplayMode = "enum"
)

// DeviceStatus is the derived connectivity state of a device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device is a pollable field device reachable over Modbus TCP.
type Device struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Name is a human-readable unique identifier
	Name string `gorm:"size:100;uniqueIndex" json:"name"`

	// Host is the connection address (IP or hostname)
	Host string `gorm:"size:100" json:"host"`

	// Port is the Modbus TCP port
	Port int `gorm:"default:502" json:"port"`

	// UnitID is the Modbus slave/unit ID
	UnitID byte `gorm:"default:1" json:"unit_id"`

	// Active determines whether the poll cycle visits this device
	Active bool `gorm:"default:true" json:"active"`

	// Status is mutated by the poll cycle only
	Status DeviceStatus `gorm:"size:10;default:offline" json:"status"`

	// LastSeen is the last successful connection time
	LastSeen *time.Time `json:"last_seen,omitempty"`

	Registers []Register `gorm:"constraint:OnDelete:CASCADE" json:"registers,omitempty"`
}

// Addr returns the host:port dial address for the device.
func (d *Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Register is a single addressable data point on a device.
type Register struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	DeviceID uint    `gorm:"index" json:"device_id"`
	Device   *Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	// Name is the register's description (e.g. "Boiler Temperature")
	Name string `gorm:"size:100" json:"name"`

	// Address uses the classic 1-based numbering convention
	// (40001.. for holding, 30001.. for input, etc.)
	Address int `json:"address"`

	Kind     RegisterKind `gorm:"size:20" json:"kind"`
	DataType DataType     `gorm:"size:10;default:UINT16" json:"data_type"`

	// ByteOrder governs both byte and word ordering for multi-word types
	ByteOrder ByteOrder `gorm:"size:10;default:BIG" json:"byte_order"`

	Writable bool `gorm:"default:false" json:"writable"`

	// ScalingFactor multiplies the decoded value (0.1 divides by ten)
	ScalingFactor float64 `gorm:"default:1" json:"scaling_factor"`

	// Invert flips 0 and 1. Meaningful only for binary kinds.
	Invert bool `gorm:"default:false" json:"invert"`

	// StringLength is the register count to read. Meaningful only for STRING.
	StringLength uint16 `gorm:"default:1" json:"string_length"`

	DisplayMode DisplayMode `gorm:"size:20;default:numeric" json:"display_mode"`

	// MinValue/MaxValue bound gauges on the external dashboard.
	// Persisted for the management layer, not interpreted by the engine.
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`

	EnumValues []EnumValue `gorm:"constraint:OnDelete:CASCADE" json:"enum_values,omitempty"`
}

// IsBinary reports whether the register is a single-bit kind.
func (r *Register) IsBinary() bool {
	return r.Kind == RegisterKindCoil || r.Kind == RegisterKindDiscreteInput
}

// IsWritableCoil reports whether the register accepts coil write commands.
func (r *Register) IsWritableCoil() bool {
	return r.Kind == RegisterKindCoil && r.Writable
}

// WordCount returns the number of 16-bit registers a read request must cover.
func (r *Register) WordCount() uint16 {
	switch r.DataType {
	case DataTypeUInt32, DataTypeInt32, DataTypeFloat32:
		return 2
	case DataTypeString:
		if r.StringLength == 0 {
			return 1
		}
		return r.StringLength
	default:
		return 1
	}
}

// PDUAddress maps the 1-based human-facing address to the zero-based,
// type-relative protocol address. Addresses outside the classic numbering
// convention pass through unchanged.
func (r *Register) PDUAddress() uint16 {
	addr := r.Address
	switch {
	case r.Kind == RegisterKindCoil && addr >= 1 && addr < 10000:
		addr--
	case r.Kind == RegisterKindDiscreteInput && addr >= 10001 && addr < 20000:
		addr -= 10001
	case r.Kind == RegisterKindInput && addr >= 30001 && addr < 40000:
		addr -= 30001
	case r.Kind == RegisterKindHolding && addr >= 40001 && addr < 50000:
		addr -= 40001
	}
	return uint16(addr)
}

// Validate performs validation on the register configuration.
func (r *Register) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("register name is required")
	}
	switch r.Kind {
	case RegisterKindHolding, RegisterKindCoil, RegisterKindInput, RegisterKindDiscreteInput:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRegisterKind, r.Kind)
	}
	switch r.DataType {
	case DataTypeUInt16, DataTypeInt16, DataTypeUInt32, DataTypeInt32, DataTypeFloat32, DataTypeString:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDataType, r.DataType)
	}
	if r.Invert && !r.IsBinary() {
		return fmt.Errorf("invert is only valid for coil and discrete_input registers")
	}
	if r.DataType == DataTypeString && r.StringLength == 0 {
		return fmt.Errorf("string_length is required for STRING registers")
	}
	if r.ByteOrder == "" {
		r.ByteOrder = ByteOrderBig
	}
	if r.ScalingFactor == 0 {
		r.ScalingFactor = 1.0
	}
	return nil
}

// EnumValue maps one raw integer reading of a register to a display label.
type EnumValue struct {
	ID uint `gorm:"primaryKey" json:"id"`

	RegisterID uint `gorm:"index:idx_enum_register_raw,unique" json:"register_id"`

	// RawValue is the integral processed value the label applies to
	RawValue int64 `gorm:"index:idx_enum_register_raw,unique" json:"raw_value"`

	Label string `gorm:"size:100" json:"label"`
}
