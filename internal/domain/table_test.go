package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	return &Table{
		Columns: []string{"DATE", "CASES"},
		Rows: [][]Value{
			{String("2020-03-01"), Int(10)},
			{String("2020-03-02"), Null()},
			{Null(), Int(5)},
		},
	}
}

func TestTable_Records(t *testing.T) {
	out, err := json.Marshal(sampleTable().Records())
	require.NoError(t, err)
	assert.Equal(t,
		`[{"DATE":"2020-03-01","CASES":10},{"DATE":"2020-03-02","CASES":null},{"DATE":null,"CASES":5}]`,
		string(out))
}

func TestTable_ColumnIndexIsCaseInsensitive(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, 1, tbl.ColumnIndex("cases"))
	assert.Equal(t, -1, tbl.ColumnIndex("deaths"))
}

func TestTable_FloatTreatsNullAsZero(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, 10.0, tbl.Float(0, 1))
	assert.Equal(t, 0.0, tbl.Float(1, 1))
	assert.Equal(t, 0.0, tbl.Float(7, 1))
}

func TestTable_AddColumn(t *testing.T) {
	tbl := sampleTable()
	require.NoError(t, tbl.AddColumn("cluster", []Value{Int(0), Int(1), Int(0)}))
	assert.Equal(t, []string{"DATE", "CASES", "cluster"}, tbl.Columns)

	assert.Error(t, tbl.AddColumn("short", []Value{Int(0)}))
}

func TestTimeSeriesFromTable(t *testing.T) {
	rows, err := TimeSeriesFromTable(sampleTable(), "date", "cases")
	require.NoError(t, err)
	require.Len(t, rows, 2, "null date row is skipped")
	assert.Equal(t, "2020-03-01", rows[0].Date.String())
	assert.Equal(t, int64(10), rows[0].Cases)
	assert.Equal(t, int64(0), rows[1].Cases)

	_, err = TimeSeriesFromTable(sampleTable(), "DATE", "DEATHS")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2020-03-01", "2020-03-01"},
		{"2020-03-01T00:00:00Z", "2020-03-01"},
		{"2020-03-01T23:10:00-05:00", "2020-03-02"},
		{"2020-03-01 00:00:00", "2020-03-01"},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, d.String(), tt.in)
	}

	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}
