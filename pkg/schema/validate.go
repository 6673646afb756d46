package schema

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeAlphabet holds the characters used in access codes. 0, O, 1 and I are left out so a
// code can be read aloud and typed back without ambiguity.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in an access code.
const CodeLength = 6

// MaxMessageLength bounds the text of a community message.
const MaxMessageLength = 2000

// ValidationError reports malformed input. It is raised before any cache or network work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewCode returns a random access code.
func NewCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(CodeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(CodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and upper-cases user input so that "ab3 k7q" style typing still matches.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

// ValidateCode checks that code is a well-formed access code.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return invalid("code", "must be %d characters", CodeLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return invalid("code", "unexpected character %q", c)
		}
	}
	return nil
}

// Validate checks a profile.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("profile.name", "is required")
	}
	if p.BirthDate.IsZero() {
		return invalid("profile.birthDate", "is required")
	}
	if p.Gender != GenderBoy && p.Gender != GenderGirl {
		return invalid("profile.gender", "must be %q or %q", GenderBoy, GenderGirl)
	}
	return nil
}

// Validate checks a partial update. An empty partial is rejected.
func (p Partial) Validate() error {
	if p.IsEmpty() {
		return &ValidationError{Reason: "update carries no field"}
	}
	if p.Profile != nil {
		if err := p.Profile.Validate(); err != nil {
			return err
		}
	}
	for i, e := range p.EventLog {
		if e.ID == "" {
			return invalid(fmt.Sprintf("eventLog[%d].id", i), "is required")
		}
		if !e.Type.Valid() {
			return invalid(fmt.Sprintf("eventLog[%d].type", i), "unknown type %q", e.Type)
		}
		if e.Timestamp.IsZero() {
			return invalid(fmt.Sprintf("eventLog[%d].timestamp", i), "is required")
		}
		if e.EndTime != nil && e.EndTime.Before(e.Timestamp) {
			return invalid(fmt.Sprintf("eventLog[%d].endTime", i), "is before timestamp")
		}
	}
	for i, g := range p.GrowthRecords {
		if g.ID == "" {
			return invalid(fmt.Sprintf("growthRecords[%d].id", i), "is required")
		}
		if g.Date.IsZero() {
			return invalid(fmt.Sprintf("growthRecords[%d].date", i), "is required")
		}
		if g.Weight <= 0 {
			return invalid(fmt.Sprintf("growthRecords[%d].weight", i), "must be positive")
		}
		if g.AgeInMonths < 0 {
			return invalid(fmt.Sprintf("growthRecords[%d].ageInMonths", i), "must not be negative")
		}
	}
	return nil
}

// Validate checks a community message before it is posted.
func (m CommunityMessage) Validate() error {
	if m.ID == "" {
		return invalid("id", "is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		return invalid("text", "is required")
	}
	if len(m.Text) > MaxMessageLength {
		return invalid("text", "longer than %d bytes", MaxMessageLength)
	}
	if strings.TrimSpace(m.AuthorLabel) == "" {
		return invalid("authorLabel", "is required")
	}
	if m.Timestamp.IsZero() {
		return invalid("timestamp", "is required")
	}
	return nil
}

// CheckAppendOnly rejects a partial that drops or rewrites entries already in cur. The event
// log must extend the current one; growth records are matched by id since they are re-sorted.
func CheckAppendOnly(cur UserRecord, p Partial) error {
	if p.EventLog != nil {
		if len(p.EventLog) < len(cur.EventLog) {
			return invalid("eventLog", "would drop %d existing entries", len(cur.EventLog)-len(p.EventLog))
		}
		for i, e := range cur.EventLog {
			if !e.Equal(p.EventLog[i]) {
				return invalid(fmt.Sprintf("eventLog[%d]", i), "existing entry %q is append-only", e.ID)
			}
		}
	}
	if p.GrowthRecords != nil {
		next := make(map[string]GrowthRecord, len(p.GrowthRecords))
		for _, g := range p.GrowthRecords {
			next[g.ID] = g
		}
		for _, g := range cur.GrowthRecords {
			n, ok := next[g.ID]
			if !ok {
				return invalid("growthRecords", "existing record %q would be dropped", g.ID)
			}
			if !g.Equal(n) {
				return invalid("growthRecords", "existing record %q is append-only", g.ID)
			}
		}
	}
	return nil
}
