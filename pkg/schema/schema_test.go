package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPartialFields(t *testing.T) {
	var p Partial
	if !p.IsEmpty() {
		t.Fatalf("Expected empty partial")
	}

	p.EventLog = []LogEntry{}
	fields := p.Fields()
	if len(fields) != 1 || fields[0] != FieldEventLog {
		t.Errorf("Expected [eventLog], got %v", fields)
	}
}

func TestPartialWireAbsence(t *testing.T) {
	var p Partial
	if err := json.Unmarshal([]byte(`{"growthRecords":[]}`), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Profile != nil || p.EventLog != nil {
		t.Errorf("Expected only growthRecords present, got %+v", p)
	}
	if p.GrowthRecords == nil {
		t.Errorf("Expected empty growthRecords to be present")
	}
}

func TestApplyMergesTopLevelFields(t *testing.T) {
	r := NewUserRecord("ABCDEF")
	r.Apply(Partial{Profile: &Profile{Name: "Lia", BirthDate: day("2024-01-01"), Gender: GenderGirl}})
	r.Apply(Partial{EventLog: []LogEntry{{ID: "e1", Type: LogSleep, Timestamp: day("2024-02-01")}}})

	if r.Profile == nil || r.Profile.Name != "Lia" {
		t.Fatalf("Expected profile to survive, got %+v", r.Profile)
	}
	if len(r.EventLog) != 1 {
		t.Errorf("Expected 1 log entry, got %d", len(r.EventLog))
	}

	r.Apply(Partial{Profile: &Profile{Name: "Lia Maria", BirthDate: day("2024-01-01"), Gender: GenderGirl}})
	if r.Profile.Name != "Lia Maria" || len(r.EventLog) != 1 {
		t.Errorf("Expected profile replaced and log kept, got %+v", r)
	}
}

func TestApplySortsGrowthRecords(t *testing.T) {
	r := NewUserRecord("ABCDEF")
	r.Apply(Partial{GrowthRecords: []GrowthRecord{
		{ID: "c", Date: day("2024-03-01"), Weight: 6},
		{ID: "a", Date: day("2024-01-01"), Weight: 4},
		{ID: "b", Date: day("2024-02-01"), Weight: 5},
	}})

	got := ""
	for _, g := range r.GrowthRecords {
		got += g.ID
	}
	if got != "abc" {
		t.Errorf("Expected abc, got %s", got)
	}
}

func TestInsertGrowthRecordOutOfOrder(t *testing.T) {
	var records []GrowthRecord
	for _, d := range []string{"2024-05-01", "2024-01-01", "2024-03-01", "2024-02-01"} {
		records = InsertGrowthRecord(records, GrowthRecord{ID: d, Date: day(d), Weight: 5})
	}
	for i := 1; i < len(records); i++ {
		if records[i].Date.Before(records[i-1].Date) {
			t.Fatalf("Records not sorted: %v", records)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewUserRecord("ABCDEF")
	r.Profile = &Profile{Name: "Theo"}
	r.EventLog = []LogEntry{{ID: "e1"}}

	c := r.Clone()
	c.Profile.Name = "changed"
	c.EventLog[0].ID = "changed"

	if r.Profile.Name != "Theo" || r.EventLog[0].ID != "e1" {
		t.Errorf("Clone shares memory with the original")
	}
}

func TestCloneCopiesEntryPointers(t *testing.T) {
	end := day("2024-02-01").Add(time.Hour)
	dose := 2.5
	r := NewUserRecord("ABCDEF")
	r.EventLog = []LogEntry{{ID: "e1", Type: LogMedicine, Timestamp: day("2024-02-01"), EndTime: &end, Value: &dose}}

	c := r.Clone()
	*c.EventLog[0].EndTime = end.Add(time.Hour)
	*c.EventLog[0].Value = 9

	if !r.EventLog[0].EndTime.Equal(end) || *r.EventLog[0].Value != 2.5 {
		t.Errorf("Clone shares entry pointers with the original")
	}
}

func TestNewCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatalf("NewCode failed: %v", err)
		}
		if err := ValidateCode(code); err != nil {
			t.Fatalf("Generated invalid code %q: %v", code, err)
		}
		if strings.ContainsAny(code, "0O1I") {
			t.Fatalf("Code %q contains an ambiguous character", code)
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Errorf("Too many collisions: %d distinct codes", len(seen))
	}
}

func TestValidateCode(t *testing.T) {
	cases := map[string]bool{
		"ABC234": true,
		"abc234": false,
		"ABC23":  false,
		"ABC0O1": false,
		"":       false,
	}
	for code, ok := range cases {
		err := ValidateCode(code)
		if ok && err != nil {
			t.Errorf("%q: unexpected error %v", code, err)
		}
		if !ok && err == nil {
			t.Errorf("%q: expected error", code)
		}
	}
	if NormalizeCode(" abc 234 ") != "ABC234" {
		t.Errorf("NormalizeCode did not normalize")
	}
}

func TestPartialValidate(t *testing.T) {
	valid := Partial{Profile: &Profile{Name: "Ana", BirthDate: day("2024-01-01"), Gender: GenderGirl}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	bad := []Partial{
		{},
		{Profile: &Profile{Name: "", BirthDate: day("2024-01-01"), Gender: GenderBoy}},
		{Profile: &Profile{Name: "Ana", BirthDate: day("2024-01-01"), Gender: "cat"}},
		{EventLog: []LogEntry{{ID: "e1", Type: "nap", Timestamp: day("2024-01-01")}}},
		{GrowthRecords: []GrowthRecord{{ID: "g1", Date: day("2024-01-01"), Weight: 0}}},
	}
	for i, p := range bad {
		err := p.Validate()
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestRecentMessages(t *testing.T) {
	now := time.Now()
	var msgs []CommunityMessage
	for i := 0; i < 10; i++ {
		msgs = append(msgs, CommunityMessage{ID: string(rune('a' + i)), Timestamp: now.Add(-time.Duration(i) * time.Hour)})
	}

	got := RecentMessages(msgs, now.Add(-5*time.Hour-time.Minute), 3)
	if len(got) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("Expected newest three ascending (c,b,a), got %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestCheckAppendOnly(t *testing.T) {
	cur := NewUserRecord("ABCDEF")
	cur.EventLog = []LogEntry{
		{ID: "e1", Type: LogFeeding, Timestamp: day("2024-02-01")},
		{ID: "e2", Type: LogSleep, Timestamp: day("2024-02-02")},
	}
	cur.GrowthRecords = []GrowthRecord{
		{ID: "g1", Date: day("2024-02-01"), Weight: 4},
		{ID: "g2", Date: day("2024-03-01"), Weight: 5},
	}
	e3 := LogEntry{ID: "e3", Type: LogDiaper, Timestamp: day("2024-02-03")}
	g0 := GrowthRecord{ID: "g0", Date: day("2024-01-15"), Weight: 3.5}

	ok := []Partial{
		{Profile: &Profile{Name: "Theo"}},
		{EventLog: append(append([]LogEntry{}, cur.EventLog...), e3)},
		{EventLog: cur.EventLog},
		{GrowthRecords: []GrowthRecord{cur.GrowthRecords[1], g0, cur.GrowthRecords[0]}},
	}
	for i, p := range ok {
		if err := CheckAppendOnly(cur, p); err != nil {
			t.Errorf("case %d: unexpected error %v", i, err)
		}
	}

	changed := cur.EventLog[1]
	changed.Details = "edited"
	bad := []Partial{
		{EventLog: []LogEntry{}},
		{EventLog: []LogEntry{cur.EventLog[0]}},
		{EventLog: []LogEntry{cur.EventLog[0], changed}},
		{EventLog: []LogEntry{cur.EventLog[1], cur.EventLog[0]}},
		{GrowthRecords: []GrowthRecord{}},
		{GrowthRecords: []GrowthRecord{cur.GrowthRecords[0], {ID: "g2", Date: day("2024-03-01"), Weight: 6}}},
	}
	for i, p := range bad {
		var verr *ValidationError
		if err := CheckAppendOnly(cur, p); !errors.As(err, &verr) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestRebaseKeepsBothSides(t *testing.T) {
	remote := NewUserRecord("ABCDEF")
	remote.EventLog = []LogEntry{{ID: "e1"}, {ID: "e2"}}
	remote.GrowthRecords = []GrowthRecord{{ID: "g2", Date: day("2024-03-01")}}

	local := Partial{
		Profile:       &Profile{Name: "Theo"},
		EventLog:      []LogEntry{{ID: "e1"}, {ID: "e3"}},
		GrowthRecords: []GrowthRecord{{ID: "g1", Date: day("2024-02-01")}},
	}

	p := remote.Rebase(local)
	if p.Profile == nil || p.Profile.Name != "Theo" {
		t.Errorf("Profile should pass through, got %+v", p.Profile)
	}
	var ids []string
	for _, e := range p.EventLog {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "e1,e2,e3" {
		t.Errorf("Unexpected event log %v", ids)
	}
	if len(p.GrowthRecords) != 2 || p.GrowthRecords[0].ID != "g1" {
		t.Errorf("Unexpected growth records %+v", p.GrowthRecords)
	}
	if err := CheckAppendOnly(remote, p); err != nil {
		t.Errorf("Rebased partial must extend the remote record: %v", err)
	}
}
