package domain

import "time"

// AlarmCondition is the comparison applied between a reading and a threshold.
type AlarmCondition string

const (
	ConditionGreaterThan AlarmCondition = "gt"
	ConditionLessThan    AlarmCondition = "lt"
	ConditionEqual       AlarmCondition = "eq"
)

// AlarmSeverity is the four-level severity scale of a rule.
type AlarmSeverity string

const (
	SeverityInfo     AlarmSeverity = "info"
	SeverityWarning  AlarmSeverity = "warning"
	SeverityCritical AlarmSeverity = "critical"
	SeverityFault    AlarmSeverity = "fault"
)

// EpisodeStatus tracks an alarm episode through its lifecycle.
type EpisodeStatus string

const (
	EpisodeActiveUnack  EpisodeStatus = "ACTIVE_UNACK"
	EpisodeActiveAck    EpisodeStatus = "ACTIVE_ACK"
	EpisodeClearedUnack EpisodeStatus = "CLEARED_UNACK"
	EpisodeClearedAck   EpisodeStatus = "CLEARED_ACK"
)

// AlarmRule is a threshold rule evaluated against every processed reading
// of its register.
type AlarmRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name string `gorm:"size:150" json:"name"`

	RegisterID uint      `gorm:"index" json:"register_id"`
	Register   *Register `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	Condition AlarmCondition `gorm:"size:10" json:"condition"`
	Threshold float64        `json:"threshold"`
	Severity  AlarmSeverity  `gorm:"size:10;default:warning" json:"severity"`
	Active    bool           `gorm:"default:true" json:"active"`
}

// Violated evaluates the rule against a value using exact comparison
// semantics. Equality is exact floating-point equality, no tolerance.
func (r *AlarmRule) Violated(value float64) bool {
	switch r.Condition {
	case ConditionGreaterThan:
		return value > r.Threshold
	case ConditionLessThan:
		return value < r.Threshold
	case ConditionEqual:
		return value == r.Threshold
	default:
		return false
	}
}

// AlarmEpisode records one continuous interval during which a rule's
// condition is violated. The episode is open while EndTime is unset.
type AlarmEpisode struct {
	ID uint `gorm:"primaryKey" json:"id"`

	RuleID uint       `gorm:"index" json:"rule_id"`
	Rule   *AlarmRule `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"-"`

	StartTime time.Time     `gorm:"autoCreateTime" json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Status    EpisodeStatus `gorm:"size:20;default:ACTIVE_UNACK" json:"status"`

	AcknowledgedBy   string     `gorm:"size:100" json:"acknowledged_by,omitempty"`
	AcknowledgedTime *time.Time `json:"acknowledged_time,omitempty"`
}

// Open reports whether the violation interval is still running.
func (e *AlarmEpisode) Open() bool { return e.EndTime == nil }
