// Package normalize validates and canonicalizes raw import records into
// the internal candidate shape consumed by the dedup pipeline.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/art-atlas/import-cli/internal/model"
)

// Validation error codes.
const (
	CodeInvalidCoordinates = "INVALID_COORDINATES"
	CodeTitleTooLong       = "TITLE_TOO_LONG"
	CodeTextTooLong        = "TEXT_TOO_LONG"
)

// MaxTextLen caps free-text fields; longer values are truncated with a warning.
const MaxTextLen = 10_000

// ValidationError rejects a single record. It carries the offending
// field and a stable code surfaced in the audit entry.
type ValidationError struct {
	Field string
	Code  string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("normalize: %s: %s", e.Field, e.Code)
}

// Options controls normalizer behavior for a batch.
type Options struct {
	// RequireCoordinates rejects records without lat/lon. When false,
	// coordinate-less records pass through with HasCoordinates unset and
	// skip the spatial merge step entirely.
	RequireCoordinates bool

	// DefaultSource is applied when a record carries no source name.
	DefaultSource string
}

// Record validates raw and produces the canonical ImportRecord for
// position idx in the batch. Truncation and stripping produce warnings,
// not errors; only unusable coordinates reject the record.
func Record(idx int, raw model.RawRecord, opts Options) (model.ImportRecord, []model.Warning, error) {
	var warnings []model.Warning

	rec := model.ImportRecord{
		Index:      idx,
		Source:     strings.TrimSpace(raw.Source),
		ExternalID: strings.TrimSpace(raw.ExternalID),
		SourceURL:  strings.TrimSpace(raw.SourceURL),
	}
	if rec.Source == "" {
		rec.Source = opts.DefaultSource
	}

	// Coordinates.
	switch {
	case raw.Lat == nil || raw.Lon == nil:
		if opts.RequireCoordinates {
			return model.ImportRecord{}, nil, &ValidationError{Field: "coordinates", Code: CodeInvalidCoordinates, Msg: "missing lat/lon"}
		}
	case !isFinite(*raw.Lat) || !isFinite(*raw.Lon):
		return model.ImportRecord{}, nil, &ValidationError{Field: "coordinates", Code: CodeInvalidCoordinates, Msg: "non-finite lat/lon"}
	case !model.ValidCoordinates(*raw.Lat, *raw.Lon):
		return model.ImportRecord{}, nil, &ValidationError{Field: "coordinates", Code: CodeInvalidCoordinates, Msg: "lat/lon out of range"}
	default:
		rec.Lat = *raw.Lat
		rec.Lon = *raw.Lon
		rec.HasCoordinates = true
	}

	rec.Title, warnings = cleanText("title", raw.Title, warnings)
	rec.Description, warnings = cleanText("description", raw.Description, warnings)

	// Artist names, split order preserved for downstream tie-breaks.
	if len(raw.ArtistNames) > 0 {
		for _, name := range raw.ArtistNames {
			if n := strings.TrimSpace(StripHTML(name)); n != "" {
				rec.ArtistNames = append(rec.ArtistNames, n)
			}
		}
	} else {
		rec.ArtistNames = SplitArtistNames(raw.Artists)
	}

	if len(raw.Tags) > 0 {
		rec.Tags = make(map[string]string, len(raw.Tags))
		for k, v := range raw.Tags {
			clean, w := cleanText("tags."+k, v, nil)
			warnings = append(warnings, w...)
			rec.Tags[strings.TrimSpace(k)] = clean
		}
	}

	return rec, warnings, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// cleanText strips markup and truncates over-long values, appending a
// warning for each truncation. The cut backs up to a rune boundary so
// multibyte characters are never split.
func cleanText(field, v string, warnings []model.Warning) (string, []model.Warning) {
	v = strings.TrimSpace(StripHTML(v))
	if len(v) > MaxTextLen {
		zap.L().Warn("normalize: truncating over-long field",
			zap.String("field", field),
			zap.Int("length", len(v)),
		)
		cut := MaxTextLen
		for cut > 0 && !utf8.RuneStart(v[cut]) {
			cut--
		}
		v = v[:cut]
		code := CodeTextTooLong
		if field == "title" {
			code = CodeTitleTooLong
		}
		warnings = append(warnings, model.Warning{
			Field:   field,
			Code:    code,
			Message: fmt.Sprintf("truncated to %d bytes", cut),
		})
	}
	return v, warnings
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s{2,}`)
)

// StripHTML removes script/style blocks and all remaining markup from
// text fields, guarding against stored injection from import sources.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

var andSplitRe = regexp.MustCompile(`(?i)\s+and\s+|&`)

// SplitArtistNames splits a raw multi-artist string on commas,
// ampersands, and the word "and", trimming each part. A single comma
// with no ampersand is treated as "Last, First" and collapsed to
// "First Last". Original order is preserved.
func SplitArtistNames(raw string) []string {
	raw = strings.TrimSpace(StripHTML(raw))
	if raw == "" {
		return nil
	}

	// "Last, First" inversion only applies to the single-comma,
	// no-ampersand shape; anything else is a genuine list.
	if strings.Count(raw, ",") == 1 && !strings.Contains(raw, "&") {
		parts := strings.SplitN(raw, ",", 2)
		last, first := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if last != "" && first != "" {
			return []string{first + " " + last}
		}
	}

	var names []string
	for _, chunk := range strings.Split(raw, ",") {
		for _, name := range andSplitRe.Split(chunk, -1) {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
