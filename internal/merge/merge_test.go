package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-atlas/import-cli/internal/model"
)

func TestApply_TagsEarliestWins(t *testing.T) {
	target := &model.Artwork{
		ID:    "art-1",
		Title: "Cloud Gate",
		Tags:  map[string]string{"material": "steel", "year": "2006"},
	}
	rec := model.ImportRecord{
		HasCoordinates: true,
		Tags: map[string]string{
			"material": "bronze",   // conflicts, discarded
			"year":     "2006",     // same value, not a conflict
			"district": "downtown", // new key, added
		},
	}

	ch := Apply(target, rec, nil)

	assert.Equal(t, "steel", target.Tags["material"])
	assert.Equal(t, "downtown", target.Tags["district"])
	assert.Equal(t, 1, ch.TagsConflictCount)
	require.Contains(t, ch.FieldChanges, "tags.district")
	assert.Equal(t, model.ActionUpdated, ch.Action())
}

func TestApply_TagConservation(t *testing.T) {
	// No existing tag value is ever lost or rewritten.
	existing := map[string]string{"a": "1", "b": "2", "c": "3"}
	target := &model.Artwork{ID: "art-1", Tags: map[string]string{"a": "1", "b": "2", "c": "3"}}
	rec := model.ImportRecord{
		HasCoordinates: true,
		Tags:           map[string]string{"a": "x", "b": "2", "d": "4"},
	}

	Apply(target, rec, nil)

	for k, v := range existing {
		assert.Equal(t, v, target.Tags[k])
	}
	assert.Equal(t, "4", target.Tags["d"])
}

func TestApply_ScalarsFillOnlyWhenEmpty(t *testing.T) {
	target := &model.Artwork{ID: "art-1", Title: "Cloud Gate"}
	rec := model.ImportRecord{
		HasCoordinates: true,
		Title:          "The Bean",
		Description:    "Mirror-polished sculpture",
	}

	ch := Apply(target, rec, nil)

	// Non-empty title is never overwritten and records no conflict.
	assert.Equal(t, "Cloud Gate", target.Title)
	assert.NotContains(t, ch.FieldChanges, "title")

	assert.Equal(t, "Mirror-polished sculpture", target.Description)
	require.Contains(t, ch.FieldChanges, "description")
	assert.Equal(t, "", ch.FieldChanges["description"].Old)
}

func TestApply_ArtistLinksAppendOnly(t *testing.T) {
	target := &model.Artwork{ID: "art-1", Title: "x", ArtistIDs: []string{"a1"}}
	rec := model.ImportRecord{HasCoordinates: true}

	ch := Apply(target, rec, []string{"a1", "a2"})

	assert.Equal(t, []string{"a1", "a2"}, target.ArtistIDs)
	assert.Equal(t, []string{"a2"}, ch.AddedArtistIDs)
	assert.Equal(t, model.ActionMerged, ch.Action())
}

func TestApply_ExternalIDAccumulates(t *testing.T) {
	target := &model.Artwork{
		ID:          "art-1",
		Title:       "x",
		ExternalIDs: map[string]string{"museum-feed": "mf-9"},
	}
	rec := model.ImportRecord{
		HasCoordinates: true,
		Source:         "city-open-data",
		ExternalID:     "cod-42",
	}

	ch := Apply(target, rec, nil)

	assert.True(t, ch.AddedExternalID)
	assert.Equal(t, "cod-42", target.ExternalIDs["city-open-data"])
	assert.Equal(t, "mf-9", target.ExternalIDs["museum-feed"])
}

func TestApply_ExistingExternalIDKept(t *testing.T) {
	target := &model.Artwork{
		ID:          "art-1",
		Title:       "x",
		ExternalIDs: map[string]string{"city-open-data": "cod-1"},
	}
	rec := model.ImportRecord{
		HasCoordinates: true,
		Source:         "city-open-data",
		ExternalID:     "cod-2",
	}

	ch := Apply(target, rec, nil)

	assert.False(t, ch.AddedExternalID)
	assert.Equal(t, "cod-1", target.ExternalIDs["city-open-data"])
}

func TestApply_NothingToChangeIsDuplicate(t *testing.T) {
	target := &model.Artwork{
		ID:          "art-1",
		Title:       "Cloud Gate",
		Description: "desc",
		Tags:        map[string]string{"material": "steel"},
		ArtistIDs:   []string{"a1"},
		ExternalIDs: map[string]string{"city-open-data": "cod-42"},
	}
	rec := model.ImportRecord{
		HasCoordinates: true,
		Source:         "city-open-data",
		ExternalID:     "cod-42",
		Title:          "Cloud Gate",
		Tags:           map[string]string{"material": "steel"},
	}

	ch := Apply(target, rec, []string{"a1"})

	assert.False(t, ch.Any())
	assert.Equal(t, model.ActionDuplicate, ch.Action())
	assert.Nil(t, ch.FieldChanges)
}

func TestApply_MissingCoordinatesFlagged(t *testing.T) {
	target := &model.Artwork{ID: "art-1", Title: "x", Lat: 41.88, Lon: -87.62}
	rec := model.ImportRecord{Source: "s", ExternalID: "e"}

	ch := Apply(target, rec, nil)

	assert.True(t, ch.SkippedCoordinateMerge)
	assert.Equal(t, 41.88, target.Lat)
	assert.Equal(t, -87.62, target.Lon)
}
