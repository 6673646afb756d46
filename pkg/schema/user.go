// Package schema defines the records shared by the nestsync client, its local cache and the
// hosted record store.
package schema

import (
	"sort"
	"time"
)

// Field names of the mutable top-level parts of a UserRecord, as they appear on the wire.
const (
	FieldProfile       = "profile"
	FieldEventLog      = "eventLog"
	FieldGrowthRecords = "growthRecords"
)

// Gender of the baby.
type Gender string

const (
	GenderBoy  Gender = "boy"
	GenderGirl Gender = "girl"
)

// LogType is the kind of care event recorded in the event log.
type LogType string

const (
	LogFeeding  LogType = "feeding"
	LogDiaper   LogType = "diaper"
	LogSleep    LogType = "sleep"
	LogMood     LogType = "mood"
	LogMedicine LogType = "medicine"
)

// Valid reports whether t is one of the known log types.
func (t LogType) Valid() bool {
	switch t {
	case LogFeeding, LogDiaper, LogSleep, LogMood, LogMedicine:
		return true
	}
	return false
}

// Profile is the baby profile attached to a code once signup completes.
// It is replaced wholesale on edit.
type Profile struct {
	Name      string    `json:"name"`
	BirthDate time.Time `json:"birthDate"`
	Gender    Gender    `json:"gender"`
}

// LogEntry is a single care event.
type LogEntry struct {
	ID        string     `json:"id"`
	Type      LogType    `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Details   string     `json:"details"`
	Value     *float64   `json:"value,omitempty"`
}

// GrowthRecord is one weight measurement.
type GrowthRecord struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Weight      float64   `json:"weight"`
	AgeInMonths float64   `json:"ageInMonths"`
}

// UserRecord is the full persisted state for one access code.
// A nil Profile marks a signup that has issued a code but not attached a profile yet.
type UserRecord struct {
	Code          string         `json:"code"`
	Profile       *Profile       `json:"profile"`
	EventLog      []LogEntry     `json:"eventLog"`
	GrowthRecords []GrowthRecord `json:"growthRecords"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// NewUserRecord returns the empty record issued together with a fresh code.
func NewUserRecord(code string) UserRecord {
	return UserRecord{
		Code:          code,
		EventLog:      []LogEntry{},
		GrowthRecords: []GrowthRecord{},
	}
}

// Partial carries a subset of the top-level fields of a UserRecord.
// A nil field is absent; a non-nil field, even an empty slice, is present.
type Partial struct {
	Profile       *Profile       `json:"profile"`
	EventLog      []LogEntry     `json:"eventLog"`
	GrowthRecords []GrowthRecord `json:"growthRecords"`
}

// Fields returns the wire names of the fields present in p.
func (p Partial) Fields() []string {
	var fields []string
	if p.Profile != nil {
		fields = append(fields, FieldProfile)
	}
	if p.EventLog != nil {
		fields = append(fields, FieldEventLog)
	}
	if p.GrowthRecords != nil {
		fields = append(fields, FieldGrowthRecords)
	}
	return fields
}

// IsEmpty reports whether p carries no field at all.
func (p Partial) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Apply merges the present fields of p into r. Growth records are re-sorted by date.
func (r *UserRecord) Apply(p Partial) {
	if p.Profile != nil {
		profile := *p.Profile
		r.Profile = &profile
	}
	if p.EventLog != nil {
		r.EventLog = make([]LogEntry, len(p.EventLog))
		for i, e := range p.EventLog {
			r.EventLog[i] = e.clone()
		}
	}
	if p.GrowthRecords != nil {
		r.GrowthRecords = append([]GrowthRecord{}, p.GrowthRecords...)
		SortGrowthRecords(r.GrowthRecords)
	}
}

// Select builds a Partial holding the named fields of r.
// Unknown names are ignored.
func (r UserRecord) Select(fields []string) Partial {
	var p Partial
	for _, f := range fields {
		switch f {
		case FieldProfile:
			if r.Profile != nil {
				profile := *r.Profile
				p.Profile = &profile
			}
		case FieldEventLog:
			p.EventLog = make([]LogEntry, len(r.EventLog))
			for i, e := range r.EventLog {
				p.EventLog[i] = e.clone()
			}
		case FieldGrowthRecords:
			p.GrowthRecords = append([]GrowthRecord{}, r.GrowthRecords...)
		}
	}
	return p
}

func (e LogEntry) clone() LogEntry {
	if e.EndTime != nil {
		end := *e.EndTime
		e.EndTime = &end
	}
	if e.Value != nil {
		v := *e.Value
		e.Value = &v
	}
	return e
}

// Equal reports whether e and o describe the same entry.
func (e LogEntry) Equal(o LogEntry) bool {
	if e.ID != o.ID || e.Type != o.Type || e.Details != o.Details || !e.Timestamp.Equal(o.Timestamp) {
		return false
	}
	if (e.EndTime == nil) != (o.EndTime == nil) || (e.EndTime != nil && !e.EndTime.Equal(*o.EndTime)) {
		return false
	}
	if (e.Value == nil) != (o.Value == nil) || (e.Value != nil && *e.Value != *o.Value) {
		return false
	}
	return true
}

// Equal reports whether g and o describe the same measurement.
func (g GrowthRecord) Equal(o GrowthRecord) bool {
	return g.ID == o.ID && g.Date.Equal(o.Date) && g.Weight == o.Weight && g.AgeInMonths == o.AgeInMonths
}

// Rebase returns p with its append-only fields laid on top of r: entries of r come first,
// followed by the entries of p whose ids r does not have yet. Profile passes through.
func (r UserRecord) Rebase(p Partial) Partial {
	if p.EventLog != nil {
		seen := make(map[string]bool, len(r.EventLog))
		events := make([]LogEntry, 0, len(r.EventLog)+len(p.EventLog))
		for _, e := range r.EventLog {
			seen[e.ID] = true
			events = append(events, e.clone())
		}
		for _, e := range p.EventLog {
			if !seen[e.ID] {
				seen[e.ID] = true
				events = append(events, e.clone())
			}
		}
		p.EventLog = events
	}
	if p.GrowthRecords != nil {
		seen := make(map[string]bool, len(r.GrowthRecords))
		growth := append([]GrowthRecord{}, r.GrowthRecords...)
		for _, g := range r.GrowthRecords {
			seen[g.ID] = true
		}
		for _, g := range p.GrowthRecords {
			if !seen[g.ID] {
				seen[g.ID] = true
				growth = append(growth, g)
			}
		}
		SortGrowthRecords(growth)
		p.GrowthRecords = growth
	}
	return p
}

// Clone returns a deep copy of r.
func (r UserRecord) Clone() UserRecord {
	out := r
	out.Apply(r.Select([]string{FieldProfile, FieldEventLog, FieldGrowthRecords}))
	return out
}

// SortGrowthRecords orders records by date ascending, keeping insertion order for equal dates.
func SortGrowthRecords(records []GrowthRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}

// InsertGrowthRecord adds rec to records at its date position.
func InsertGrowthRecord(records []GrowthRecord, rec GrowthRecord) []GrowthRecord {
	out := append(append([]GrowthRecord{}, records...), rec)
	SortGrowthRecords(out)
	return out
}
