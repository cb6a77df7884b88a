package domain

import "time"

// RegisterMapping propagates value changes on a source register to a
// destination register's write (master/slave cascade). The destination
// must be a writable coil; the written value is the source value's
// boolean truthiness.
type RegisterMapping struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name string `gorm:"size:150" json:"name"`

	SourceRegisterID uint      `gorm:"index:idx_mapping_src_dst,unique" json:"source_register_id"`
	SourceRegister   *Register `gorm:"foreignKey:SourceRegisterID;constraint:OnDelete:CASCADE" json:"-"`

	DestinationRegisterID uint      `gorm:"index:idx_mapping_src_dst,unique" json:"destination_register_id"`
	DestinationRegister   *Register `gorm:"foreignKey:DestinationRegisterID;constraint:OnDelete:CASCADE" json:"-"`

	Active bool `gorm:"default:true" json:"active"`
}

// ScheduledTask drives a writable coil to a fixed state at a time of day.
// Matching is minute-granular; the seconds component is ignored.
type ScheduledTask struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RegisterID uint      `gorm:"index" json:"register_id"`
	Register   *Register `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	// Hour and Minute are the local wall-clock firing time
	Hour   int `json:"hour"`
	Minute int `json:"minute"`

	// Action is the coil state to write when the task fires
	Action bool `json:"action"`

	Active bool `gorm:"default:true" json:"active"`
}
