package normalize

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-atlas/import-cli/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestSplitArtistNames_Empty(t *testing.T) {
	assert.Nil(t, SplitArtistNames(""))
	assert.Nil(t, SplitArtistNames("   "))
}

func TestSplitArtistNames_Single(t *testing.T) {
	assert.Equal(t, []string{"Jane Doe"}, SplitArtistNames("Jane Doe"))
	assert.Equal(t, []string{"Jane Doe"}, SplitArtistNames("  Jane Doe  "))
}

func TestSplitArtistNames_LastFirstInversion(t *testing.T) {
	assert.Equal(t, []string{"Jane Doe"}, SplitArtistNames("Doe, Jane"))
	assert.Equal(t, []string{"David Graham"}, SplitArtistNames("Graham, David"))
}

func TestSplitArtistNames_NoInversionWithAmpersand(t *testing.T) {
	assert.Equal(t, []string{"Jane Doe", "Bob Smith"}, SplitArtistNames("Jane Doe & Bob Smith"))
}

func TestSplitArtistNames_SplitOnAnd(t *testing.T) {
	assert.Equal(t, []string{"Jane Doe", "Bob Smith"}, SplitArtistNames("Jane Doe and Bob Smith"))
	// "and" inside a name must not split: case-insensitive but word-bounded.
	assert.Equal(t, []string{"Alexandra Smith"}, SplitArtistNames("Alexandra Smith"))
}

func TestSplitArtistNames_MultipleCommas(t *testing.T) {
	assert.Equal(t, []string{"Jane Doe", "Bob Smith", "Ana Lee"},
		SplitArtistNames("Jane Doe, Bob Smith, Ana Lee"))
}

func TestSplitArtistNames_Mixed(t *testing.T) {
	assert.Equal(t, []string{"Jane Doe", "Bob Smith", "Ana Lee"},
		SplitArtistNames("Jane Doe, Bob Smith & Ana Lee"))
}

func TestStripHTML_Plain(t *testing.T) {
	assert.Equal(t, "Blue Whale", StripHTML("Blue Whale"))
}

func TestStripHTML_Tags(t *testing.T) {
	assert.Equal(t, "Blue Whale", StripHTML("<b>Blue</b> Whale"))
	assert.Equal(t, "Blue Whale", StripHTML("<p>Blue Whale</p>"))
}

func TestStripHTML_Script(t *testing.T) {
	assert.Equal(t, "Blue Whale", StripHTML(`Blue <script>alert("x")</script>Whale`))
	assert.Equal(t, "Blue Whale", StripHTML(`<style>.a{color:red}</style>Blue Whale`))
}

func TestRecord_Valid(t *testing.T) {
	raw := model.RawRecord{
		Source:     "vancouver",
		ExternalID: "PA-001",
		Title:      "Blue Whale",
		Artists:    "Doe, Jane",
		Lat:        ptr(49.28),
		Lon:        ptr(-123.12),
		Tags:       map[string]string{"material": "bronze"},
	}

	rec, warnings, err := Record(3, raw, Options{RequireCoordinates: true})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 3, rec.Index)
	assert.Equal(t, "vancouver", rec.Source)
	assert.Equal(t, "PA-001", rec.ExternalID)
	assert.Equal(t, "Blue Whale", rec.Title)
	assert.Equal(t, []string{"Jane Doe"}, rec.ArtistNames)
	assert.True(t, rec.HasCoordinates)
	assert.Equal(t, 49.28, rec.Lat)
	assert.Equal(t, "bronze", rec.Tags["material"])
}

func TestRecord_MissingCoordinatesRejected(t *testing.T) {
	_, _, err := Record(0, model.RawRecord{Title: "X"}, Options{RequireCoordinates: true})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeInvalidCoordinates, verr.Code)
}

func TestRecord_MissingCoordinatesAllowed(t *testing.T) {
	rec, _, err := Record(0, model.RawRecord{Title: "X"}, Options{RequireCoordinates: false})
	require.NoError(t, err)
	assert.False(t, rec.HasCoordinates)
}

func TestRecord_OutOfRangeCoordinates(t *testing.T) {
	_, _, err := Record(0, model.RawRecord{Lat: ptr(200), Lon: ptr(-123.12)}, Options{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeInvalidCoordinates, verr.Code)
}

func TestRecord_NonFiniteCoordinates(t *testing.T) {
	_, _, err := Record(0, model.RawRecord{Lat: ptr(math.NaN()), Lon: ptr(-123.12)}, Options{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeInvalidCoordinates, verr.Code)
}

func TestRecord_TruncatesLongText(t *testing.T) {
	raw := model.RawRecord{
		Title: strings.Repeat("a", MaxTextLen+50),
		Lat:   ptr(49.28),
		Lon:   ptr(-123.12),
	}

	rec, warnings, err := Record(0, raw, Options{})
	require.NoError(t, err)
	assert.Len(t, rec.Title, MaxTextLen)
	require.Len(t, warnings, 1)
	assert.Equal(t, CodeTitleTooLong, warnings[0].Code)
	assert.Equal(t, "title", warnings[0].Field)
}

func TestRecord_TruncatesOnRuneBoundary(t *testing.T) {
	// The é straddles the cap; truncation must not leave a partial rune.
	raw := model.RawRecord{
		Title: strings.Repeat("a", MaxTextLen-1) + "és",
		Lat:   ptr(49.28),
		Lon:   ptr(-123.12),
	}

	rec, warnings, err := Record(0, raw, Options{})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(rec.Title))
	assert.Len(t, rec.Title, MaxTextLen-1)
	require.Len(t, warnings, 1)
	assert.Equal(t, CodeTitleTooLong, warnings[0].Code)
}

func TestRecord_LongDescriptionWarnsWithTextCode(t *testing.T) {
	raw := model.RawRecord{
		Description: strings.Repeat("b", MaxTextLen+1),
		Lat:         ptr(49.28),
		Lon:         ptr(-123.12),
	}

	rec, warnings, err := Record(0, raw, Options{})
	require.NoError(t, err)
	assert.Len(t, rec.Description, MaxTextLen)
	require.Len(t, warnings, 1)
	assert.Equal(t, CodeTextTooLong, warnings[0].Code)
	assert.Equal(t, "description", warnings[0].Field)
}

func TestRecord_DefaultSource(t *testing.T) {
	rec, _, err := Record(0, model.RawRecord{Lat: ptr(1), Lon: ptr(1)}, Options{DefaultSource: "osm"})
	require.NoError(t, err)
	assert.Equal(t, "osm", rec.Source)
}

func TestRecord_PreSplitArtistNames(t *testing.T) {
	raw := model.RawRecord{
		ArtistNames: []string{" Jane Doe ", "", "<b>Bob Smith</b>"},
		Lat:         ptr(1),
		Lon:         ptr(1),
	}
	rec, _, err := Record(0, raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Doe", "Bob Smith"}, rec.ArtistNames)
}
