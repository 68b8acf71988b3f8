package dbtypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), got)
	assert.Equal(t, "09:30", got.String())

	end, err := ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(MinutesPerDay), end)

	for _, bad := range []string{"9:30", "24:01", "12:60", "ab:cd", ""} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayJSONAndScan(t *testing.T) {
	payload := struct {
		Start TimeOfDay `json:"start"`
	}{}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"16:00"}`), &payload))
	assert.Equal(t, TimeOfDay(960), payload.Start)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"16:00"}`, string(out))

	var scanned TimeOfDay
	require.NoError(t, scanned.Scan(int64(1020)))
	assert.Equal(t, "17:00", scanned.String())
	assert.Error(t, scanned.Scan(1.5))
}

func TestDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", d.AddDays(1).String())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", v)

	var fromPG Date
	require.NoError(t, fromPG.Scan(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, d, fromPG)

	var fromSQLite Date
	require.NoError(t, fromSQLite.Scan("2026-03-14 00:00:00+00:00"))
	assert.Equal(t, d, fromSQLite)

	_, err = ParseDate("14/03/2026")
	assert.Error(t, err)
}
