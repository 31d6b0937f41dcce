package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestToCSVKeepsFirstSeenKeyOrder(t *testing.T) {
	got, err := ToCSV([]byte(`[{"vendor":"Acme","total":12.50},{"date":"2024-01-02","vendor":"Bolt"}]`))
	require.NoError(t, err)
	assert.Equal(t, "vendor,total,date\nAcme,12.50,\nBolt,,2024-01-02\n", got)
}

func TestToCSVEncodesNestedValues(t *testing.T) {
	got, err := ToCSV([]byte(`[{"name":"x","tags":["a", "b"],"meta":{"k": 1},"ok":true,"none":null}]`))
	require.NoError(t, err)
	assert.Equal(t, "name,tags,meta,ok,none\nx,\"[\"\"a\"\",\"\"b\"\"]\",\"{\"\"k\"\":1}\",true,\n", got)
}

func TestToCSVScalarsUseValueColumn(t *testing.T) {
	got, err := ToCSV([]byte(`[1, "two", {"a": 3}]`))
	require.NoError(t, err)
	assert.Equal(t, "value,a\n1,\ntwo,\n,3\n", got)

	got, err = ToCSV([]byte(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", got)
}

func TestToCSVEmptyArray(t *testing.T) {
	got, err := ToCSV([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "\n", got)
}

func TestFromJSONRejectsInvalidInput(t *testing.T) {
	_, err := FromJSON([]byte("  "))
	assert.Error(t, err)
	_, err = FromJSON([]byte(`[{"a":}]`))
	assert.Error(t, err)
}

func TestDuplicateKeyKeepsLastValue(t *testing.T) {
	tbl, err := FromJSON([]byte(`[{"a":1,"b":2,"a":3}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Equal(t, "3", cellText(tbl.Rows[0][0]))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []byte(`[{"vendor":"Acme","total":12.5},{"vendor":"Bolt"}]`)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"vendor", "total"}, rows[0])
	assert.Equal(t, []string{"Acme", "12.5"}, rows[1])
	assert.Equal(t, []string{"Bolt"}, rows[2])
}
