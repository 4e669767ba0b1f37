// Package persistence provides SQLite-based storage of the unit population.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/machines"
)

// DB wraps a SQLite connection for unit state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. ":memory:"
// opens a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		pos_z INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		saved_tick INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS links (
		from_id TEXT PRIMARY KEY,
		to_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_units_kind ON units(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// inTx runs fn in one transaction, committing only if fn succeeds.
func (db *DB) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveUnits writes all unit records to the database (full replace). Records
// keep their order so units tick in the same order after a reload.
func (db *DB) SaveUnits(records []Record) error {
	return db.inTx(func(tx *sqlx.Tx) error { return saveUnits(tx, records) })
}

func saveUnits(tx *sqlx.Tx, records []Record) error {
	if _, err := tx.Exec("DELETE FROM units"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO units
		(id, kind, pos_x, pos_y, pos_z, schema_version, saved_tick, state_json, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.Exec(r.ID, r.Kind, r.X, r.Y, r.Z, r.SchemaVersion, r.SavedTick, string(r.State), i)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", r.ID, err)
		}
	}
	return nil
}

// unitRow is a units table row. The state column is TEXT, which the
// driver returns as a string.
type unitRow struct {
	Record
	StateJSON string `db:"state_json"`
}

// LoadUnits returns every stored unit record in saved order.
func (db *DB) LoadUnits() ([]Record, error) {
	var rows []unitRow
	err := db.conn.Select(&rows, `SELECT id, kind, pos_x, pos_y, pos_z,
		schema_version, saved_tick, state_json FROM units ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = r.Record
		records[i].State = json.RawMessage(r.StateJSON)
	}
	return records, nil
}

// SaveLinks writes all energy links (full replace).
func (db *DB) SaveLinks(links []engine.Link) error {
	return db.inTx(func(tx *sqlx.Tx) error { return saveLinks(tx, links) })
}

func saveLinks(tx *sqlx.Tx, links []engine.Link) error {
	if _, err := tx.Exec("DELETE FROM links"); err != nil {
		return err
	}
	for _, l := range links {
		if _, err := tx.Exec("INSERT INTO links (from_id, to_id) VALUES (?, ?)", l.From.String(), l.To.String()); err != nil {
			return fmt.Errorf("insert link %s: %w", l.From, err)
		}
	}
	return nil
}

// LoadLinks returns every stored energy link.
func (db *DB) LoadLinks() ([]engine.Link, error) {
	var rows []struct {
		From string `db:"from_id"`
		To   string `db:"to_id"`
	}
	if err := db.conn.Select(&rows, "SELECT from_id, to_id FROM links ORDER BY from_id"); err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	links := make([]engine.Link, 0, len(rows))
	for _, r := range rows {
		from, err := uuid.Parse(r.From)
		if err != nil {
			return nil, fmt.Errorf("link source %q: %w", r.From, ErrCorruptRecord)
		}
		to, err := uuid.Parse(r.To)
		if err != nil {
			return nil, fmt.Errorf("link target %q: %w", r.To, ErrCorruptRecord)
		}
		links = append(links, engine.Link{From: from, To: to})
	}
	return links, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	return saveMeta(db.conn, key, value)
}

func saveMeta(x sqlx.Execer, key, value string) error {
	_, err := x.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// HasWorldState reports whether a previous save exists.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta("last_tick")
	return err == nil
}

// SaveWorldState performs a full save with the simulation frozen. Units,
// links and the saved tick are written in one transaction, so a failed
// save leaves the previous one intact.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	return sim.Freeze(func(tick uint64, units []machines.Unit, links []engine.Link) error {
		slog.Info("saving world state", "units", len(units), "links", len(links), "tick", tick)

		records := make([]Record, 0, len(units))
		for _, u := range units {
			rec, err := Encode(u, tick)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		err := db.inTx(func(tx *sqlx.Tx) error {
			if err := saveUnits(tx, records); err != nil {
				return fmt.Errorf("save units: %w", err)
			}
			if err := saveLinks(tx, links); err != nil {
				return fmt.Errorf("save links: %w", err)
			}
			if err := saveMeta(tx, "last_tick", strconv.FormatUint(tick, 10)); err != nil {
				return fmt.Errorf("save meta: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("world state saved")
		return nil
	})
}

// LoadWorldState restores every saved unit and link into sim. A unit that
// cannot be decoded is skipped with a warning so one bad record does not
// take the rest of the world down.
func (db *DB) LoadWorldState(sim *engine.Simulation) (uint64, error) {
	raw, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load meta: %w", err)
	}
	tick, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("last_tick %q: %w", raw, err)
	}

	records, err := db.LoadUnits()
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		u, err := Decode(rec, sim.Env())
		if err != nil {
			slog.Warn("skipping unit", "unit", rec.ID, "kind", rec.Kind, "error", err)
			continue
		}
		if err := sim.Add(u); err != nil {
			return 0, err
		}
	}

	links, err := db.LoadLinks()
	if err != nil {
		return 0, err
	}
	for _, l := range links {
		if err := sim.Link(l.From, l.To); err != nil {
			slog.Warn("dropping link", "from", l.From, "to", l.To, "error", err)
		}
	}

	sim.SetTick(tick)
	slog.Info("world state loaded", "units", sim.Len(), "links", len(sim.Links()), "tick", tick)
	return tick, nil
}
