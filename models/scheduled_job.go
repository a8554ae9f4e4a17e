package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ErrInvalidSchedule is returned when a ScheduledJob's schedule_type is
// not one of the recognized values.
var ErrInvalidSchedule = errors.New("models: invalid schedule_type")

// ScheduleType is how a ScheduledJob recurs.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// DeliveryMethod is the channel a digest is delivered over.
type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryWhatsApp DeliveryMethod = "whatsapp"
)

// InferDeliveryMethod guesses the delivery channel from the shape of the
// recipient address: anything with an "@" is an email address, anything
// else is a messaging identifier.
func InferDeliveryMethod(recipient string) DeliveryMethod {
	if strings.Contains(recipient, "@") {
		return DeliveryEmail
	}
	return DeliveryWhatsApp
}

// DigestFilter selects which content a digest job's callback summarizes.
type DigestFilter struct {
	ContentTypes []string `json:"content_types,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

func (f DigestFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *DigestFilter) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), f)
	}
	return json.Unmarshal(bytes, f)
}

// ScheduledJob is a durable, single-node cron-like job: "run the named
// callback at the next occurrence of ScheduleType/TimeOfDay, and advance
// NextRun afterward regardless of whether the callback succeeded."
type ScheduledJob struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	Name         string       `json:"name" gorm:"not null"`
	DigestType   string       `json:"digest_type" gorm:"not null"` // free tag; the loop invokes callback "digest_"+DigestType
	ScheduleType ScheduleType `json:"schedule_type" gorm:"type:varchar(20);not null"`
	TimeOfDay    string       `json:"time_of_day" gorm:"not null"` // "HH:MM", 24h

	Recipient      string         `json:"recipient" gorm:"not null"`
	DeliveryMethod DeliveryMethod `json:"delivery_method" gorm:"type:varchar(20);not null"`

	Filter DigestFilter `json:"filter" gorm:"type:jsonb;default:'{}'"`

	IsActive bool `json:"is_active" gorm:"default:true;index"`

	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess *bool      `json:"last_success,omitempty"`
	NextRun     time.Time  `json:"next_run" gorm:"not null;index"`

	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time  `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null;default:now()"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (ScheduledJob) TableName() string {
	return "contentmind.scheduled_jobs"
}

// CallbackName is the key the scheduler loop resolves this job's callback
// under: "digest_" + DigestType.
func (j *ScheduledJob) CallbackName() string {
	return "digest_" + j.DigestType
}

// CreateScheduledJobRequest is the request to schedule a new recurring
// job. DeliveryMethod may be omitted, in which case it is inferred from
// the recipient's shape.
type CreateScheduledJobRequest struct {
	Name           string         `json:"name" validate:"required"`
	DigestType     string         `json:"digest_type" validate:"required"`
	ScheduleType   ScheduleType   `json:"schedule_type" validate:"required"`
	TimeOfDay      string         `json:"time_of_day" validate:"required"`
	Recipient      string         `json:"recipient" validate:"required"`
	DeliveryMethod DeliveryMethod `json:"delivery_method,omitempty"`
	Filter         DigestFilter   `json:"filter,omitempty"`
}

// UpdateScheduledJobRequest partially updates an existing job. A change
// to ScheduleType or TimeOfDay (the fields influencing next_run)
// triggers a reschedule while the job is active.
type UpdateScheduledJobRequest struct {
	ScheduleType   *ScheduleType   `json:"schedule_type,omitempty"`
	TimeOfDay      *string         `json:"time_of_day,omitempty"`
	Recipient      *string         `json:"recipient,omitempty"`
	DeliveryMethod *DeliveryMethod `json:"delivery_method,omitempty"`
	Filter         *DigestFilter   `json:"filter,omitempty"`
	IsActive       *bool           `json:"is_active,omitempty"`
}

// ComputeNextRun returns the next occurrence of the job's schedule
// strictly after `from`:
//   - daily: the next wall-clock occurrence of TimeOfDay (today if still
//     future, else tomorrow), the "daily anchor".
//   - weekly: +7 days from the daily anchor.
//   - monthly: same HH:MM on the same day-of-month (clamped to 28),
//     always one calendar month later.
//
// No day-of-week or day-of-month field is stored: recurrences are always
// derived from `from`, so a weekly/monthly job keeps the cadence implied
// by whenever it was last run.
func (j *ScheduledJob) ComputeNextRun(from time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(j.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	dailyAnchor := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !dailyAnchor.After(from) {
		dailyAnchor = dailyAnchor.AddDate(0, 0, 1)
	}

	switch j.ScheduleType {
	case ScheduleDaily:
		return dailyAnchor, nil

	case ScheduleWeekly:
		return dailyAnchor.AddDate(0, 0, 7), nil

	case ScheduleMonthly:
		day := from.Day()
		if day > 28 {
			day = 28
		}
		return time.Date(from.Year(), from.Month()+1, day, hour, minute, 0, 0, from.Location()), nil

	default:
		return time.Time{}, ErrInvalidSchedule
	}
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
