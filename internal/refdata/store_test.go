package refdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	entries map[Kind][]Entry
	regions []Region
	err     error
}

func (s *stubSource) Entries(_ context.Context, kind Kind) ([]Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	rows := s.entries[kind]
	out := make([]Entry, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *stubSource) Regions(context.Context) ([]Region, error) {
	return s.regions, nil
}

func schoolRows(n int) []Entry {
	rows := make([]Entry, n)
	for i := range rows {
		rows[i].Name = string(rune('A' + i))
	}
	return rows
}

func TestLoad_EliteTopRows(t *testing.T) {
	src := &stubSource{entries: map[Kind][]Entry{
		KindPrimary:   schoolRows(25),
		KindSecondary: schoolRows(3),
		KindMall:      schoolRows(25),
	}}

	store, err := Load(context.Background(), src, LoadOptions{EliteTopRows: DefaultEliteTopRows})
	require.NoError(t, err)

	pri := store.Entries(KindPrimary)
	require.Len(t, pri, 25)
	for i, e := range pri {
		assert.Equal(t, i < 20, e.Elite, "primary row %d", i)
	}

	for i, e := range store.Entries(KindSecondary) {
		assert.True(t, e.Elite, "secondary row %d", i)
	}

	for _, e := range store.Entries(KindMall) {
		assert.False(t, e.Elite, "mall rows never get the school convention")
	}
}

func TestLoad_EliteDisabledKeepsColumn(t *testing.T) {
	rows := schoolRows(3)
	rows[2].Elite = true
	src := &stubSource{entries: map[Kind][]Entry{KindPrimary: rows}}

	store, err := Load(context.Background(), src, LoadOptions{Kinds: []Kind{KindPrimary}})
	require.NoError(t, err)

	got := store.Entries(KindPrimary)
	assert.False(t, got[0].Elite)
	assert.False(t, got[1].Elite)
	assert.True(t, got[2].Elite)
}

func TestLoad_ColumnAndConventionCombine(t *testing.T) {
	rows := schoolRows(4)
	rows[3].Elite = true
	src := &stubSource{entries: map[Kind][]Entry{KindSecondary: rows}}

	store, err := Load(context.Background(), src, LoadOptions{EliteTopRows: 2, Kinds: []Kind{KindSecondary}})
	require.NoError(t, err)

	var elite []bool
	for _, e := range store.Entries(KindSecondary) {
		elite = append(elite, e.Elite)
	}
	assert.Equal(t, []bool{true, true, false, true}, elite)
}

func TestLoad_SourceError(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := Load(context.Background(), &stubSource{err: boom}, LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "refdata: load transit")
}

func TestLoad_FromCSV(t *testing.T) {
	store, err := Load(context.Background(), NewCSVSource(writeFixtures(t)), LoadOptions{EliteTopRows: 1})
	require.NoError(t, err)

	counts := store.Counts()
	assert.Equal(t, 3, counts[KindTransit])
	assert.Equal(t, 2, counts[KindBus])
	assert.Equal(t, 1, counts[KindMall])
	assert.Equal(t, 3, counts[KindPrimary])
	assert.Len(t, store.Regions(), 2)

	pri := store.Entries(KindPrimary)
	assert.True(t, pri[0].Elite)
	assert.False(t, pri[1].Elite)
}

func TestNewStore_NilEntries(t *testing.T) {
	s := NewStore(nil, nil)
	assert.Empty(t, s.Entries(KindBus))
	assert.Empty(t, s.Counts())
}
