package refdata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVSource_LoadTestdata(t *testing.T) {
	source := NewCSVSource(filepath.Join("testdata", "parasites.csv"))

	table, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Records, 5)
	assert.NotEmpty(t, table.Fingerprint)

	malaria := table.Records[0]
	assert.Equal(t, "Plasmodium falciparum", malaria.Parasite)
	assert.Equal(t, 1, malaria.Group)
	assert.Equal(t, "Severe malaria", malaria.Subtype)
	// "Key test" alias header folds into Key Test.
	assert.Equal(t, "Thick and thin blood films", malaria.KeyTest)
	assert.Equal(t, []string{"nigeria", "kenya", "india"}, malaria.TokenSet("Countries Visited"))
	assert.True(t, malaria.Has("Symptoms", "rigors"))
	assert.False(t, malaria.Has("Symptoms", "diarrhea"))
}

func TestParseCSV_SkipsMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"Parasite, Group ,Symptoms,Key Notes",
		"Giardia,2,Diarrhea;Bloating,Stool microscopy",
		",9,Orphan row without identity,",
		"Ascaris,not-a-number,Cough,Sputum microscopy",
	}, "\n")

	records, err := parseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Giardia", records[0].Parasite)
	assert.Equal(t, 2, records[0].Group)
	assert.Equal(t, "Stool microscopy", records[0].KeyTest)

	// Unparseable group falls back to the sentinel.
	assert.Equal(t, "Ascaris", records[1].Parasite)
	assert.Equal(t, GroupUnassigned, records[1].Group)
}

func TestParseCSV_ShortRowsTreatedAsUnset(t *testing.T) {
	input := "Parasite,Symptoms,Fever\nGiardia,Diarrhea\n"

	records, err := parseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].TokenSet("Fever"))
}

func TestCSVSource_MissingFileIsFatal(t *testing.T) {
	source := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"))
	_, err := source.Load(context.Background())
	assert.Error(t, err)
}

func TestCSVSource_FingerprintTracksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.csv")
	require.NoError(t, os.WriteFile(path, []byte("Parasite\nGiardia\n"), 0o644))
	source := NewCSVSource(path)

	first, err := source.Fingerprint(context.Background())
	require.NoError(t, err)

	// Size change must change the fingerprint even on coarse clocks.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("Parasite\nGiardia\nAscaris\n"), 0o644))

	second, err := source.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTable_Options(t *testing.T) {
	table := &Table{Records: []Record{
		{Parasite: "A", Fields: map[string]string{"Symptoms": "Fever;Rash"}},
		{Parasite: "B", Fields: map[string]string{"Symptoms": "fever; Cough"}},
	}}

	options := table.Options([]string{"Symptoms", "Anemia"})
	// Case-insensitive dedupe, first spelling wins, sorted.
	assert.Equal(t, []string{"Cough", "Fever", "Rash"}, options["Symptoms"])
	assert.Empty(t, options["Anemia"])
}
