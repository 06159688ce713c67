package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReports = `{"subject_id":"0xabc","subject_name":"PrivateToken","operations":["mul","add"],"counts":[6,2],"avg_data_size":32}
not json at all
{"subject_id":"","subject_name":"missing id","operations":["add"],"counts":[1],"avg_data_size":8}

{"subject_id":"0xdef","subject_name":"Auction","operations":["gt"],"counts":[4],"avg_data_size":16}
`

func TestParseFileSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleReports), 0o644))

	reports, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "0xabc", reports[0].SubjectID)
	assert.Equal(t, "PrivateToken", reports[0].SubjectName)
	assert.Equal(t, []string{"mul", "add"}, reports[0].Operations)
	assert.Equal(t, []int64{6, 2}, reports[0].Counts)
	assert.Equal(t, int64(32), reports[0].AvgDataSize)

	assert.Equal(t, "0xdef", reports[1].SubjectID)
}

func TestParseDirWalksNestedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"),
		[]byte(`{"subject_id":"0x1","operations":["add"],"counts":[1],"avg_data_size":4}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.jsonl"),
		[]byte(`{"subject_id":"0x2","operations":["mul"],"counts":[2],"avg_data_size":4}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"),
		[]byte("not a report\n"), 0o644))

	reports, err := ParseDir(dir)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "0x1", reports[0].SubjectID)
	assert.Equal(t, "0x2", reports[1].SubjectID)
}

func TestParseDirEmpty(t *testing.T) {
	reports, err := ParseDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
