package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/art-atlas/import-cli/internal/match"
	"github.com/art-atlas/import-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Spatial lookup
// uses a degree bounding-box prefilter with exact haversine distances
// computed in Go, since there is no PostGIS here.
type SQLiteStore struct {
	db *sql.DB
	q  sqlQuerier
}

var _ Store = (*SQLiteStore)(nil)

// sqlQuerier is the query surface shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS artworks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	lat         REAL,
	lon         REAL,
	tags        TEXT NOT NULL DEFAULT '{}',
	source_url  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_artworks_lat ON artworks (lat);
CREATE INDEX IF NOT EXISTS idx_artworks_lon ON artworks (lon);

CREATE TABLE IF NOT EXISTS artists (
	id             TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	canonical_key  TEXT NOT NULL,
	aliases        TEXT NOT NULL DEFAULT '[]',
	notes          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_artists_key ON artists (canonical_key);

CREATE TABLE IF NOT EXISTS artwork_artists (
	artwork_id TEXT NOT NULL REFERENCES artworks(id),
	artist_id  TEXT NOT NULL REFERENCES artists(id),
	PRIMARY KEY (artwork_id, artist_id)
);

CREATE TABLE IF NOT EXISTS artwork_external_ids (
	artwork_id  TEXT NOT NULL REFERENCES artworks(id),
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	PRIMARY KEY (source, external_id)
);

CREATE TABLE IF NOT EXISTS audit_entries (
	import_id    TEXT NOT NULL,
	record_index INTEGER NOT NULL,
	action       TEXT NOT NULL,
	confidence   REAL NOT NULL DEFAULT 0,
	entry        TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (import_id, record_index)
);

CREATE TABLE IF NOT EXISTS batch_reports (
	import_id   TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	totals      TEXT NOT NULL
);
`

// Migrate applies the schema. Idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

// Close implements Store. No-op on a transaction-scoped view.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return eris.Wrap(s.db.Close(), "store: close sqlite")
}

// WithTx implements Store.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	txStore := &SQLiteStore{db: nil, q: tx}
	if err := fn(txStore); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "store: commit tx")
}

// FindNearbyArtworks implements Store. The bounding box over-fetches by
// design; exact haversine filtering and (distance, id) ordering happen
// in Go.
func (s *SQLiteStore) FindNearbyArtworks(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyArtwork, error) {
	// One degree of latitude is ~111km; longitude shrinks with latitude.
	latDelta := radiusMeters / 111_000
	lonScale := math.Cos(lat * math.Pi / 180)
	if lonScale < 0.01 {
		lonScale = 0.01
	}
	lonDelta := radiusMeters / (111_000 * lonScale)

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, lat, lon FROM artworks
		WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
	`, lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta)
	if err != nil {
		return nil, eris.Wrap(err, "store: find nearby artworks")
	}
	defer rows.Close()

	var hits []NearbyArtwork
	for rows.Next() {
		var n NearbyArtwork
		if err := rows.Scan(&n.ID, &n.Lat, &n.Lon); err != nil {
			return nil, eris.Wrap(err, "store: scan nearby artwork")
		}
		n.DistanceMeters = match.HaversineMeters(lat, lon, n.Lat, n.Lon)
		if n.DistanceMeters <= radiusMeters {
			hits = append(hits, n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate nearby artworks")
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// GetArtwork implements Store.
func (s *SQLiteStore) GetArtwork(ctx context.Context, id string) (*model.Artwork, error) {
	var a model.Artwork
	var tags string
	var lat, lon sql.NullFloat64
	err := s.q.QueryRowContext(ctx, `
		SELECT id, title, description, lat, lon, tags, source_url, created_at, updated_at
		FROM artworks WHERE id = ?
	`, id).Scan(
		&a.ID, &a.Title, &a.Description, &lat, &lon, &tags, &a.SourceURL,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get artwork")
	}
	if lat.Valid && lon.Valid {
		a.Lat, a.Lon, a.HasLocation = lat.Float64, lon.Float64, true
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, eris.Wrap(err, "store: decode artwork tags")
	}

	artistRows, err := s.q.QueryContext(ctx,
		`SELECT artist_id FROM artwork_artists WHERE artwork_id = ? ORDER BY artist_id`, id)
	if err != nil {
		return nil, eris.Wrap(err, "store: artwork artist ids")
	}
	defer artistRows.Close()
	for artistRows.Next() {
		var artistID string
		if err := artistRows.Scan(&artistID); err != nil {
			return nil, eris.Wrap(err, "store: scan artist id")
		}
		a.ArtistIDs = append(a.ArtistIDs, artistID)
	}
	if err := artistRows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate artist ids")
	}

	extRows, err := s.q.QueryContext(ctx,
		`SELECT source, external_id FROM artwork_external_ids WHERE artwork_id = ?`, id)
	if err != nil {
		return nil, eris.Wrap(err, "store: artwork external ids")
	}
	defer extRows.Close()
	a.ExternalIDs = map[string]string{}
	for extRows.Next() {
		var source, extID string
		if err := extRows.Scan(&source, &extID); err != nil {
			return nil, eris.Wrap(err, "store: scan external id")
		}
		a.ExternalIDs[source] = extID
	}
	return &a, eris.Wrap(extRows.Err(), "store: iterate external ids")
}

// GetArtworkByExternalID implements Store.
func (s *SQLiteStore) GetArtworkByExternalID(ctx context.Context, source, externalID string) (*model.Artwork, error) {
	var artworkID string
	err := s.q.QueryRowContext(ctx,
		`SELECT artwork_id FROM artwork_external_ids WHERE source = ? AND external_id = ?`,
		source, externalID,
	).Scan(&artworkID)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get artwork by external id")
	}
	return s.GetArtwork(ctx, artworkID)
}

// CreateArtwork implements Store.
func (s *SQLiteStore) CreateArtwork(ctx context.Context, a *model.Artwork) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	tags, err := json.Marshal(tagsOrEmpty(a.Tags))
	if err != nil {
		return "", eris.Wrap(err, "store: encode artwork tags")
	}
	var lat, lon any
	if a.HasLocation {
		lat, lon = a.Lat, a.Lon
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO artworks (id, title, description, lat, lon, tags, source_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Title, a.Description, lat, lon, string(tags), a.SourceURL); err != nil {
		return "", eris.Wrap(err, "store: create artwork")
	}

	for _, artistID := range a.ArtistIDs {
		if err := s.LinkArtist(ctx, a.ID, artistID); err != nil {
			return "", err
		}
	}
	for source, extID := range a.ExternalIDs {
		if err := s.AddExternalID(ctx, a.ID, source, extID); err != nil {
			return "", err
		}
	}
	return a.ID, nil
}

// UpdateArtwork implements Store.
func (s *SQLiteStore) UpdateArtwork(ctx context.Context, a *model.Artwork) error {
	tags, err := json.Marshal(tagsOrEmpty(a.Tags))
	if err != nil {
		return eris.Wrap(err, "store: encode artwork tags")
	}
	if _, err := s.q.ExecContext(ctx, `
		UPDATE artworks
		SET title = ?, description = ?, tags = ?, source_url = ?, updated_at = datetime('now')
		WHERE id = ?
	`, a.Title, a.Description, string(tags), a.SourceURL, a.ID); err != nil {
		return eris.Wrap(err, "store: update artwork")
	}
	return nil
}

// LinkArtist implements Store.
func (s *SQLiteStore) LinkArtist(ctx context.Context, artworkID, artistID string) error {
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO artwork_artists (artwork_id, artist_id) VALUES (?, ?)
		ON CONFLICT (artwork_id, artist_id) DO NOTHING
	`, artworkID, artistID); err != nil {
		return eris.Wrap(err, "store: link artist")
	}
	return nil
}

// AddExternalID implements Store.
func (s *SQLiteStore) AddExternalID(ctx context.Context, artworkID, source, externalID string) error {
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO artwork_external_ids (artwork_id, source, external_id) VALUES (?, ?, ?)
		ON CONFLICT (source, external_id) DO NOTHING
	`, artworkID, source, externalID); err != nil {
		return eris.Wrap(err, "store: add external id")
	}
	return nil
}

func (s *SQLiteStore) scanArtistRow(row interface{ Scan(...any) error }) (*model.Artist, error) {
	var a model.Artist
	var key, aliases string
	if err := row.Scan(&a.ID, &a.CanonicalName, &key, &aliases, &a.Notes, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aliases), &a.Aliases); err != nil {
		return nil, eris.Wrap(err, "store: decode artist aliases")
	}
	return &a, nil
}

// FindArtistByKey implements Store.
func (s *SQLiteStore) FindArtistByKey(ctx context.Context, canonicalKey string) (*model.Artist, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, canonical_name, canonical_key, aliases, notes, created_at
		FROM artists WHERE canonical_key = ? ORDER BY id LIMIT 1
	`, canonicalKey)
	a, err := s.scanArtistRow(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: find artist by key")
	}
	return a, nil
}

// FindArtistsFuzzy implements Store. Without pg_trgm the candidate set
// is every artist; in-process similarity ranking happens in the resolver.
func (s *SQLiteStore) FindArtistsFuzzy(ctx context.Context, name string, limit int) ([]model.Artist, error) {
	artists, err := s.ListArtists(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(artists) > limit {
		artists = artists[:limit]
	}
	return artists, nil
}

// CreateArtist implements Store.
func (s *SQLiteStore) CreateArtist(ctx context.Context, a *model.Artist) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	aliases, err := json.Marshal(aliasesOrEmpty(a.Aliases))
	if err != nil {
		return "", eris.Wrap(err, "store: encode artist aliases")
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO artists (id, canonical_name, canonical_key, aliases, notes)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.CanonicalName, artistKey(a), string(aliases), a.Notes); err != nil {
		return "", eris.Wrap(err, "store: create artist")
	}
	return a.ID, nil
}

// ListArtists implements Store.
func (s *SQLiteStore) ListArtists(ctx context.Context) ([]model.Artist, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, canonical_name, canonical_key, aliases, notes, created_at
		FROM artists ORDER BY id
	`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list artists")
	}
	defer rows.Close()

	var artists []model.Artist
	for rows.Next() {
		a, err := s.scanArtistRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan artist")
		}
		artists = append(artists, *a)
	}
	return artists, eris.Wrap(rows.Err(), "store: iterate artists")
}

// AppendAuditEntry implements Store.
func (s *SQLiteStore) AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	entry, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "store: encode audit entry")
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_entries (import_id, record_index, action, confidence, entry)
		VALUES (?, ?, ?, ?, ?)
	`, e.ImportID, e.RecordIndex, string(e.Action), e.Confidence, string(entry)); err != nil {
		return eris.Wrap(err, "store: append audit entry")
	}
	return nil
}

// SaveBatchReport implements Store.
func (s *SQLiteStore) SaveBatchReport(ctx context.Context, r *model.BatchReport) error {
	totals, err := json.Marshal(r.Totals)
	if err != nil {
		return eris.Wrap(err, "store: encode totals")
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO batch_reports (import_id, started_at, finished_at, totals)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (import_id) DO UPDATE SET
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			totals = excluded.totals
	`, r.ImportID, r.StartedAt, r.FinishedAt, string(totals)); err != nil {
		return eris.Wrap(err, "store: save batch report")
	}
	return nil
}

// GetBatchReport implements Store.
func (s *SQLiteStore) GetBatchReport(ctx context.Context, importID string) (*model.BatchReport, error) {
	var r model.BatchReport
	var totals string
	err := s.q.QueryRowContext(ctx, `
		SELECT import_id, started_at, finished_at, totals FROM batch_reports WHERE import_id = ?
	`, importID).Scan(&r.ImportID, &r.StartedAt, &r.FinishedAt, &totals)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get batch report")
	}
	if err := json.Unmarshal([]byte(totals), &r.Totals); err != nil {
		return nil, eris.Wrap(err, "store: decode totals")
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT entry FROM audit_entries WHERE import_id = ? ORDER BY record_index`, importID)
	if err != nil {
		return nil, eris.Wrap(err, "store: get audit entries")
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "store: scan audit entry")
		}
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, eris.Wrap(err, "store: decode audit entry")
		}
		r.Records = append(r.Records, e)
	}
	return &r, eris.Wrap(rows.Err(), "store: iterate audit entries")
}
