package source

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/msgaudit/internal/db"
)

func collect(t *testing.T, s Source) []Record {
	t.Helper()
	var out []Record
	require.NoError(t, s.Each(context.Background(), func(r Record) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func ids(records []Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestSelection_Payload(t *testing.T) {
	both := Record{ID: 1, Primary: []byte("P"), Fallback: []byte("F")}
	primaryOnly := Record{ID: 2, Primary: []byte("P")}
	fallbackOnly := Record{ID: 3, Primary: []byte("  \n"), Fallback: []byte("F")}
	neither := Record{ID: 4}

	tests := []struct {
		sel     Selection
		rec     Record
		want    string
		wantErr bool
	}{
		{sel: PrimaryFirst, rec: both, want: "P"},
		{sel: PrimaryFirst, rec: fallbackOnly, want: "F"},
		{sel: PrimaryFirst, rec: neither, wantErr: true},
		{sel: FallbackFirst, rec: both, want: "F"},
		{sel: FallbackFirst, rec: primaryOnly, want: "P"},
		{sel: PrimaryOnly, rec: fallbackOnly, wantErr: true},
		{sel: FallbackOnly, rec: primaryOnly, wantErr: true},
		{sel: FallbackOnly, rec: both, want: "F"},
	}

	for _, tt := range tests {
		t.Run(string(tt.sel), func(t *testing.T) {
			got, err := tt.sel.Payload(tt.rec)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestSelection_Validate(t *testing.T) {
	assert.NoError(t, PrimaryFirst.Validate())
	assert.NoError(t, FallbackOnly.Validate())
	assert.Error(t, Selection("newest").Validate())
}

func TestReadCSV_Header(t *testing.T) {
	export := `SCHEDULED_MESSAGE_ID,SCHEDULED_TIME,MESSAGE,SMALL_MESSAGE,SERVER
9,1700000000000,,H4sI,itim02
3,1700000001000,H4sIAAAA,,
`
	c, err := ReadCSV(strings.NewReader(export))
	require.NoError(t, err)

	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records := collect(t, c)
	assert.Equal(t, []int64{3, 9}, ids(records))

	assert.Equal(t, "H4sIAAAA", string(records[0].Primary))
	assert.Nil(t, records[0].Fallback)
	assert.Nil(t, records[0].Server)
	assert.Equal(t, int64(1700000001000), records[0].ScheduledAt)

	assert.Nil(t, records[1].Primary)
	assert.Equal(t, "H4sI", string(records[1].Fallback))
	require.NotNil(t, records[1].Server)
	assert.Equal(t, "itim02", *records[1].Server)
}

func TestReadCSV_ExportOrder(t *testing.T) {
	export := "1700000000000,7,abc,itim01,1700000005000,ref,,\n"
	c, err := ReadCSV(strings.NewReader(export))
	require.NoError(t, err)

	records := collect(t, c)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, "abc", string(r.Primary))
	require.NotNil(t, r.Checkpoint)
	assert.Equal(t, int64(1700000005000), *r.Checkpoint)
	require.NotNil(t, r.ReferenceID)
	assert.Equal(t, "ref", *r.ReferenceID)
	assert.Nil(t, r.Reference2ID)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("SCHEDULED_MESSAGE_ID,MESSAGE\nabc,x\n"))
	assert.ErrorContains(t, err, "SCHEDULED_MESSAGE_ID")

	_, err = ReadCSV(strings.NewReader("SCHEDULED_MESSAGE_ID,MESSAGE\n,x\n"))
	assert.ErrorContains(t, err, "missing")

	_, err = ReadCSV(strings.NewReader("SCHEDULED_MESSAGE_ID,SCHEDULED_TIME\n1,soon\n"))
	assert.ErrorContains(t, err, "SCHEDULED_TIME")

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestCSV_EachStopsOnCancel(t *testing.T) {
	c, err := ReadCSV(strings.NewReader("SCHEDULED_MESSAGE_ID\n1\n2\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Each(ctx, func(Record) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	stop := errors.New("stop")
	err = c.Each(context.Background(), func(Record) error { return stop })
	assert.Same(t, stop, err)
}

func TestSQL(t *testing.T) {
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "audit.db")

	seed, err := db.Open(cfg.Driver, cfg.DSN)
	require.NoError(t, err)
	_, err = seed.Exec(`CREATE TABLE SCHEDULED_MESSAGE (
		SCHEDULED_MESSAGE_ID INTEGER PRIMARY KEY, SCHEDULED_TIME INTEGER,
		MESSAGE TEXT, SERVER TEXT, CHECKPOINT_TIME INTEGER,
		REFERENCE_ID TEXT, REFERENCE2_ID TEXT, SMALL_MESSAGE TEXT)`)
	require.NoError(t, err)
	_, err = seed.Exec(`INSERT INTO SCHEDULED_MESSAGE (SCHEDULED_MESSAGE_ID, SCHEDULED_TIME, MESSAGE, SMALL_MESSAGE, CHECKPOINT_TIME)
		VALUES (42, 1700000000000, 'H4sI', NULL, 5), (7, 1700000000000, NULL, 'eJw', NULL)`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	s, err := OpenSQL(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records := collect(t, s)
	assert.Equal(t, []int64{7, 42}, ids(records))

	payload, err := PrimaryFirst.Payload(records[0])
	require.NoError(t, err)
	assert.Equal(t, "eJw", string(payload))

	require.NotNil(t, records[1].Checkpoint)
	assert.Equal(t, int64(5), *records[1].Checkpoint)
}

func TestOpenSQL_ConnectionFailure(t *testing.T) {
	cfg := db.DefaultConfig()
	cfg.Driver = "oracle"

	_, err := OpenSQL(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, db.IsConnect(err))
}
