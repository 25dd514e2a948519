package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"golang.org/x/time/rate"

	"github.com/art-atlas/import-cli/internal/match"
	"github.com/art-atlas/import-cli/internal/model"
)

// artistKey derives the lookup key stored alongside an artist row.
func artistKey(a *model.Artist) string {
	return match.CanonicalKey(a.CanonicalName)
}

// Pool is the minimal pgx pool surface used by PostgresStore. Satisfied
// by *pgxpool.Pool and by pgxmock pools in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// querier is the query surface shared by a pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfig tunes the Postgres store.
type PostgresConfig struct {
	// SpatialQueriesPerSecond rate-limits nearby-artwork queries against
	// a shared cluster. Zero disables limiting.
	SpatialQueriesPerSecond float64
}

// PostgresStore implements Store on Postgres with PostGIS.
type PostgresStore struct {
	pool    Pool
	q       querier
	limiter *rate.Limiter
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore over an existing pool.
func NewPostgres(pool Pool, cfg PostgresConfig) *PostgresStore {
	s := &PostgresStore{pool: pool, q: pool}
	if cfg.SpatialQueriesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SpatialQueriesPerSecond), 1)
	}
	return s
}

// ConnectPostgres opens a pgx pool for the given URL and verifies connectivity.
func ConnectPostgres(ctx context.Context, databaseURL string, cfg PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return NewPostgres(pool, cfg), nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS artworks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	lat         DOUBLE PRECISION,
	lon         DOUBLE PRECISION,
	geom        geometry(Point, 4326),
	tags        JSONB NOT NULL DEFAULT '{}',
	source_url  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_artworks_geom ON artworks USING GIST (geom);

CREATE TABLE IF NOT EXISTS artists (
	id             TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	canonical_key  TEXT NOT NULL,
	aliases        JSONB NOT NULL DEFAULT '[]',
	notes          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
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
CREATE INDEX IF NOT EXISTS idx_external_ids_artwork ON artwork_external_ids (artwork_id);

CREATE TABLE IF NOT EXISTS audit_entries (
	import_id    TEXT NOT NULL,
	record_index INT NOT NULL,
	action       TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	entry        JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (import_id, record_index)
);

CREATE TABLE IF NOT EXISTS batch_reports (
	import_id   TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	totals      JSONB NOT NULL
);
`

// Migrate applies the schema. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

// Close releases the pool. No-op on a transaction-scoped view.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// WithTx implements Store. The callback sees a store bound to the
// transaction; commit happens only when fn returns nil.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	txStore := &PostgresStore{pool: nil, q: tx, limiter: s.limiter}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit tx")
	}
	return nil
}

// FindNearbyArtworks implements Store using ST_DWithin over geography,
// ordered by distance with id as the deterministic tiebreak.
func (s *PostgresStore) FindNearbyArtworks(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyArtwork, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "store: spatial rate limit")
		}
	}

	sql := `
		SELECT id, lat, lon,
		       ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography) AS distance
		FROM artworks
		WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		ORDER BY distance, id
		LIMIT $4
	`
	rows, err := s.q.Query(ctx, sql, lat, lon, radiusMeters, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: find nearby artworks")
	}
	defer rows.Close()

	var hits []NearbyArtwork
	for rows.Next() {
		var n NearbyArtwork
		if err := rows.Scan(&n.ID, &n.Lat, &n.Lon, &n.DistanceMeters); err != nil {
			return nil, eris.Wrap(err, "store: scan nearby artwork")
		}
		hits = append(hits, n)
	}
	return hits, eris.Wrap(rows.Err(), "store: iterate nearby artworks")
}

// GetArtwork implements Store.
func (s *PostgresStore) GetArtwork(ctx context.Context, id string) (*model.Artwork, error) {
	sql := `
		SELECT id, title, description, lat, lon, tags, source_url, created_at, updated_at
		FROM artworks WHERE id = $1
	`
	var a model.Artwork
	var tags []byte
	var lat, lon pgtype.Float8
	err := s.q.QueryRow(ctx, sql, id).Scan(
		&a.ID, &a.Title, &a.Description, &lat, &lon, &tags, &a.SourceURL,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get artwork")
	}
	if lat.Valid && lon.Valid {
		a.Lat, a.Lon, a.HasLocation = lat.Float64, lon.Float64, true
	}
	if err := json.Unmarshal(tags, &a.Tags); err != nil {
		return nil, eris.Wrap(err, "store: decode artwork tags")
	}

	if a.ArtistIDs, err = s.artworkArtistIDs(ctx, id); err != nil {
		return nil, err
	}
	if a.ExternalIDs, err = s.artworkExternalIDs(ctx, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) artworkArtistIDs(ctx context.Context, artworkID string) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT artist_id FROM artwork_artists WHERE artwork_id = $1 ORDER BY artist_id`, artworkID)
	if err != nil {
		return nil, eris.Wrap(err, "store: artwork artist ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan artist id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "store: iterate artist ids")
}

func (s *PostgresStore) artworkExternalIDs(ctx context.Context, artworkID string) (map[string]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT source, external_id FROM artwork_external_ids WHERE artwork_id = $1`, artworkID)
	if err != nil {
		return nil, eris.Wrap(err, "store: artwork external ids")
	}
	defer rows.Close()

	ids := map[string]string{}
	for rows.Next() {
		var source, extID string
		if err := rows.Scan(&source, &extID); err != nil {
			return nil, eris.Wrap(err, "store: scan external id")
		}
		ids[source] = extID
	}
	return ids, eris.Wrap(rows.Err(), "store: iterate external ids")
}

// GetArtworkByExternalID implements Store.
func (s *PostgresStore) GetArtworkByExternalID(ctx context.Context, source, externalID string) (*model.Artwork, error) {
	var artworkID string
	err := s.q.QueryRow(ctx,
		`SELECT artwork_id FROM artwork_external_ids WHERE source = $1 AND external_id = $2`,
		source, externalID,
	).Scan(&artworkID)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get artwork by external id")
	}
	return s.GetArtwork(ctx, artworkID)
}

// pointEWKB encodes a lon/lat pair as EWKB with SRID 4326 for the geom column.
func pointEWKB(lat, lon float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode point")
	}
	return data, nil
}

// CreateArtwork implements Store. Generates an id when none is set and
// writes artist links and the external id in the same call. Artworks
// without a location get NULL lat/lon/geom so they never surface from
// spatial queries.
func (s *PostgresStore) CreateArtwork(ctx context.Context, a *model.Artwork) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	tags, err := json.Marshal(tagsOrEmpty(a.Tags))
	if err != nil {
		return "", eris.Wrap(err, "store: encode artwork tags")
	}
	var lat, lon, geomBytes any
	if a.HasLocation {
		ewkbPoint, err := pointEWKB(a.Lat, a.Lon)
		if err != nil {
			return "", err
		}
		lat, lon, geomBytes = a.Lat, a.Lon, ewkbPoint
	}

	sql := `
		INSERT INTO artworks (id, title, description, lat, lon, geom, tags, source_url)
		VALUES ($1, $2, $3, $4, $5, ST_GeomFromEWKB($6), $7, $8)
	`
	if _, err := s.q.Exec(ctx, sql,
		a.ID, a.Title, a.Description, lat, lon, geomBytes, tags, a.SourceURL,
	); err != nil {
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

// UpdateArtwork implements Store. Writes scalar fields and tags only;
// links and external ids go through LinkArtist / AddExternalID.
func (s *PostgresStore) UpdateArtwork(ctx context.Context, a *model.Artwork) error {
	tags, err := json.Marshal(tagsOrEmpty(a.Tags))
	if err != nil {
		return eris.Wrap(err, "store: encode artwork tags")
	}
	sql := `
		UPDATE artworks
		SET title = $2, description = $3, tags = $4, source_url = $5, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.q.Exec(ctx, sql, a.ID, a.Title, a.Description, tags, a.SourceURL); err != nil {
		return eris.Wrap(err, "store: update artwork")
	}
	return nil
}

// LinkArtist implements Store. Existing links are kept as-is.
func (s *PostgresStore) LinkArtist(ctx context.Context, artworkID, artistID string) error {
	sql := `
		INSERT INTO artwork_artists (artwork_id, artist_id)
		VALUES ($1, $2)
		ON CONFLICT (artwork_id, artist_id) DO NOTHING
	`
	if _, err := s.q.Exec(ctx, sql, artworkID, artistID); err != nil {
		return eris.Wrap(err, "store: link artist")
	}
	return nil
}

// AddExternalID implements Store.
func (s *PostgresStore) AddExternalID(ctx context.Context, artworkID, source, externalID string) error {
	sql := `
		INSERT INTO artwork_external_ids (artwork_id, source, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (source, external_id) DO NOTHING
	`
	if _, err := s.q.Exec(ctx, sql, artworkID, source, externalID); err != nil {
		return eris.Wrap(err, "store: add external id")
	}
	return nil
}

const artistColumns = `id, canonical_name, canonical_key, aliases, notes, created_at`

func scanArtist(row pgx.Row) (*model.Artist, error) {
	var a model.Artist
	var key string
	var aliases []byte
	if err := row.Scan(&a.ID, &a.CanonicalName, &key, &aliases, &a.Notes, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(aliases, &a.Aliases); err != nil {
		return nil, eris.Wrap(err, "store: decode artist aliases")
	}
	return &a, nil
}

// FindArtistByKey implements Store.
func (s *PostgresStore) FindArtistByKey(ctx context.Context, canonicalKey string) (*model.Artist, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE canonical_key = $1 ORDER BY id LIMIT 1`,
		canonicalKey)
	a, err := scanArtist(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: find artist by key")
	}
	return a, nil
}

// FindArtistsFuzzy implements Store using trigram similarity against
// canonical names. Requires the pg_trgm extension.
func (s *PostgresStore) FindArtistsFuzzy(ctx context.Context, name string, limit int) ([]model.Artist, error) {
	sql := `
		SELECT ` + artistColumns + `
		FROM artists
		WHERE similarity(canonical_name, $1) > 0.3
		ORDER BY similarity(canonical_name, $1) DESC, id
		LIMIT $2
	`
	rows, err := s.q.Query(ctx, sql, name, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: find artists fuzzy")
	}
	defer rows.Close()

	var artists []model.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan artist")
		}
		artists = append(artists, *a)
	}
	return artists, eris.Wrap(rows.Err(), "store: iterate artists")
}

// CreateArtist implements Store. The canonical key is derived by the
// caller and stored alongside the display name.
func (s *PostgresStore) CreateArtist(ctx context.Context, a *model.Artist) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	aliases, err := json.Marshal(aliasesOrEmpty(a.Aliases))
	if err != nil {
		return "", eris.Wrap(err, "store: encode artist aliases")
	}
	sql := `
		INSERT INTO artists (id, canonical_name, canonical_key, aliases, notes)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.q.Exec(ctx, sql, a.ID, a.CanonicalName, artistKey(a), aliases, a.Notes); err != nil {
		return "", eris.Wrap(err, "store: create artist")
	}
	return a.ID, nil
}

// ListArtists implements Store. Used to build the per-batch resolver snapshot.
func (s *PostgresStore) ListArtists(ctx context.Context) ([]model.Artist, error) {
	rows, err := s.q.Query(ctx, `SELECT `+artistColumns+` FROM artists ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list artists")
	}
	defer rows.Close()

	var artists []model.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan artist")
		}
		artists = append(artists, *a)
	}
	return artists, eris.Wrap(rows.Err(), "store: iterate artists")
}

// AppendAuditEntry implements Store. Entries are append-only; replays of
// the same (import_id, record_index) are rejected by the primary key.
func (s *PostgresStore) AppendAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	entry, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "store: encode audit entry")
	}
	sql := `
		INSERT INTO audit_entries (import_id, record_index, action, confidence, entry)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.q.Exec(ctx, sql, e.ImportID, e.RecordIndex, string(e.Action), e.Confidence, entry); err != nil {
		return eris.Wrap(err, "store: append audit entry")
	}
	return nil
}

// SaveBatchReport implements Store.
func (s *PostgresStore) SaveBatchReport(ctx context.Context, r *model.BatchReport) error {
	totals, err := json.Marshal(r.Totals)
	if err != nil {
		return eris.Wrap(err, "store: encode totals")
	}
	sql := `
		INSERT INTO batch_reports (import_id, started_at, finished_at, totals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (import_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			totals = EXCLUDED.totals
	`
	if _, err := s.q.Exec(ctx, sql, r.ImportID, r.StartedAt, r.FinishedAt, totals); err != nil {
		return eris.Wrap(err, "store: save batch report")
	}
	return nil
}

// GetBatchReport implements Store, reassembling the report from the
// stored summary and its audit entries in record order.
func (s *PostgresStore) GetBatchReport(ctx context.Context, importID string) (*model.BatchReport, error) {
	var r model.BatchReport
	var totals []byte
	err := s.q.QueryRow(ctx,
		`SELECT import_id, started_at, finished_at, totals FROM batch_reports WHERE import_id = $1`,
		importID,
	).Scan(&r.ImportID, &r.StartedAt, &r.FinishedAt, &totals)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get batch report")
	}
	if err := json.Unmarshal(totals, &r.Totals); err != nil {
		return nil, eris.Wrap(err, "store: decode totals")
	}

	rows, err := s.q.Query(ctx,
		`SELECT entry FROM audit_entries WHERE import_id = $1 ORDER BY record_index`, importID)
	if err != nil {
		return nil, eris.Wrap(err, "store: get audit entries")
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "store: scan audit entry")
		}
		var e model.AuditEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, eris.Wrap(err, "store: decode audit entry")
		}
		r.Records = append(r.Records, e)
	}
	return &r, eris.Wrap(rows.Err(), "store: iterate audit entries")
}

func tagsOrEmpty(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

func aliasesOrEmpty(aliases []string) []string {
	if aliases == nil {
		return []string{}
	}
	return aliases
}
