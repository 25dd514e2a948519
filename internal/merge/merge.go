// Package merge applies the conservative field merge policy to a target
// artwork: existing data always wins, incoming data only fills gaps.
package merge

import "github.com/art-atlas/import-cli/internal/model"

// Changes describes what Apply did to the target artwork.
type Changes struct {
	// FieldChanges covers scalar fills and newly added tag keys; tag
	// keys are prefixed "tags.".
	FieldChanges map[string]model.FieldChange
	// TagsConflictCount counts incoming tag values discarded because
	// the key already existed with a different value.
	TagsConflictCount int
	// AddedArtistIDs lists artist links appended to the target.
	AddedArtistIDs []string
	// AddedExternalID reports a new (source, external id) pair.
	AddedExternalID bool
	// SkippedCoordinateMerge reports that the record carried no
	// coordinates, so the target's location was left untouched.
	SkippedCoordinateMerge bool
}

// Any reports whether Apply changed the target at all.
func (c Changes) Any() bool {
	return len(c.FieldChanges) > 0 || c.AddedExternalID || len(c.AddedArtistIDs) > 0
}

// Action classifies the merge outcome: updated when scalar fields or
// tags changed, merged when only links or identifiers were added,
// duplicate when nothing changed.
func (c Changes) Action() model.ImportAction {
	switch {
	case len(c.FieldChanges) > 0:
		return model.ActionUpdated
	case len(c.AddedArtistIDs) > 0 || c.AddedExternalID:
		return model.ActionMerged
	default:
		return model.ActionDuplicate
	}
}

// Apply merges a record into the target artwork in place.
//
// Tags union with earliest-data-wins: an existing key keeps its value
// and a differing incoming value counts as one discarded conflict.
// Scalar fields fill only when the target is empty; non-empty targets
// silently discard the incoming value. Artist links and external
// identifiers are append-only.
func Apply(target *model.Artwork, rec model.ImportRecord, artistIDs []string) Changes {
	ch := Changes{FieldChanges: make(map[string]model.FieldChange)}

	for key, incoming := range rec.Tags {
		existing, ok := target.Tags[key]
		if ok {
			if existing != incoming {
				ch.TagsConflictCount++
			}
			continue
		}
		if target.Tags == nil {
			target.Tags = make(map[string]string)
		}
		target.Tags[key] = incoming
		ch.FieldChanges["tags."+key] = model.FieldChange{New: incoming}
	}

	fillScalar(&target.Title, rec.Title, "title", ch.FieldChanges)
	fillScalar(&target.Description, rec.Description, "description", ch.FieldChanges)
	fillScalar(&target.SourceURL, rec.SourceURL, "source_url", ch.FieldChanges)

	for _, id := range artistIDs {
		if !target.HasArtist(id) {
			target.ArtistIDs = append(target.ArtistIDs, id)
			ch.AddedArtistIDs = append(ch.AddedArtistIDs, id)
		}
	}

	if rec.Source != "" && rec.ExternalID != "" {
		if _, ok := target.ExternalID(rec.Source); !ok {
			if target.ExternalIDs == nil {
				target.ExternalIDs = make(map[string]string)
			}
			target.ExternalIDs[rec.Source] = rec.ExternalID
			ch.AddedExternalID = true
		}
	}

	ch.SkippedCoordinateMerge = !rec.HasCoordinates

	if len(ch.FieldChanges) == 0 {
		ch.FieldChanges = nil
	}
	return ch
}

func fillScalar(target *string, incoming, name string, changes map[string]model.FieldChange) {
	if *target == "" && incoming != "" {
		changes[name] = model.FieldChange{New: incoming}
		*target = incoming
	}
}
