package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/nestsync/pkg/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "nestsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Insert(ctx, "ABC234")
	require.NoError(t, err)
	assert.Nil(t, rec.Profile)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, "ABC234", got.Code)
	assert.Nil(t, got.Profile)
	assert.Empty(t, got.EventLog)
	assert.NotNil(t, got.EventLog)
	assert.Empty(t, got.GrowthRecords)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Insert(ctx, "ABC234")
	require.NoError(t, err)

	_, err = s.Insert(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "ZZZ999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOnlyTouchesPresentFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Insert(ctx, "ABC234")
	require.NoError(t, err)

	profile := &schema.Profile{Name: "Ana", BirthDate: date("2024-01-10"), Gender: schema.GenderGirl}
	_, err = s.Update(ctx, "ABC234", schema.Partial{Profile: profile})
	require.NoError(t, err)

	events := []schema.LogEntry{{ID: "e1", Type: schema.LogFeeding, Timestamp: date("2024-02-01"), Details: "left"}}
	got, err := s.Update(ctx, "ABC234", schema.Partial{EventLog: events})
	require.NoError(t, err)

	require.NotNil(t, got.Profile)
	assert.Equal(t, "Ana", got.Profile.Name)
	assert.True(t, got.Profile.BirthDate.Equal(profile.BirthDate))
	require.Len(t, got.EventLog, 1)
	assert.Equal(t, schema.LogFeeding, got.EventLog[0].Type)
}

func TestUpdateSortsGrowthRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Insert(ctx, "ABC234")
	require.NoError(t, err)

	got, err := s.Update(ctx, "ABC234", schema.Partial{GrowthRecords: []schema.GrowthRecord{
		{ID: "g3", Date: date("2024-04-01"), Weight: 6.2, AgeInMonths: 3},
		{ID: "g1", Date: date("2024-02-01"), Weight: 4.1, AgeInMonths: 1},
		{ID: "g2", Date: date("2024-03-01"), Weight: 5.3, AgeInMonths: 2},
	}})
	require.NoError(t, err)
	require.Len(t, got.GrowthRecords, 3)
	assert.Equal(t, "g1", got.GrowthRecords[0].ID)
	assert.Equal(t, "g2", got.GrowthRecords[1].ID)
	assert.Equal(t, "g3", got.GrowthRecords[2].ID)
}

func TestUpdateMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Update(context.Background(), "ZZZ999", schema.Partial{EventLog: []schema.LogEntry{}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 8; i++ {
		require.NoError(t, s.AppendMessage(ctx, schema.CommunityMessage{
			ID:          fmt.Sprintf("m%d", i),
			AuthorLabel: "Mae",
			Text:        "oi",
			Timestamp:   now.Add(-time.Duration(i) * time.Hour),
			IsSelf:      i == 0,
		}))
	}

	msgs, err := s.RecentMessages(ctx, now.Add(-5*time.Hour-time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m1", msgs[1].ID)
	assert.Equal(t, "m0", msgs[2].ID)
	assert.True(t, msgs[2].IsSelf)

	all, err := s.RecentMessages(ctx, now.Add(-5*time.Hour-time.Minute), 50)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}
}

func TestAppendMessageDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	msg := schema.CommunityMessage{ID: "m1", AuthorLabel: "Mae", Text: "oi", Timestamp: time.Now()}

	require.NoError(t, s.AppendMessage(ctx, msg))
	assert.ErrorIs(t, s.AppendMessage(ctx, msg), ErrDuplicate)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE c = $3", pg.rebind("UPDATE t SET a = ?, b = ? WHERE c = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	assert.Error(t, err)
}

func TestUpdateRejectsHistoryRewrite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Insert(ctx, "ABC234")
	require.NoError(t, err)

	e1 := schema.LogEntry{ID: "e1", Type: schema.LogFeeding, Timestamp: date("2024-02-01")}
	g1 := schema.GrowthRecord{ID: "g1", Date: date("2024-02-01"), Weight: 4.1, AgeInMonths: 1}
	_, err = s.Update(ctx, "ABC234", schema.Partial{EventLog: []schema.LogEntry{e1}, GrowthRecords: []schema.GrowthRecord{g1}})
	require.NoError(t, err)

	var verr *schema.ValidationError
	_, err = s.Update(ctx, "ABC234", schema.Partial{EventLog: []schema.LogEntry{}})
	assert.ErrorAs(t, err, &verr)

	_, err = s.Update(ctx, "ABC234", schema.Partial{
		Profile:       &schema.Profile{Name: "Ana", BirthDate: date("2024-01-10"), Gender: schema.GenderGirl},
		GrowthRecords: []schema.GrowthRecord{},
	})
	assert.ErrorAs(t, err, &verr)

	got, err := s.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Nil(t, got.Profile, "a rejected update writes nothing")
	assert.Len(t, got.EventLog, 1)
	assert.Len(t, got.GrowthRecords, 1)

	e2 := schema.LogEntry{ID: "e2", Type: schema.LogSleep, Timestamp: date("2024-02-02")}
	got, err = s.Update(ctx, "ABC234", schema.Partial{EventLog: []schema.LogEntry{e1, e2}})
	require.NoError(t, err)
	assert.Len(t, got.EventLog, 2)
}
