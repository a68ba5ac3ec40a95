package dictionary

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/clpgo/clpcore/internal/clperr"
	"github.com/clpgo/clpcore/internal/logtype"
)

// SQLiteVariableDictionary persists variable entries in a SQLite
// database (driver: github.com/mattn/go-sqlite3). Wildcard lookups scan
// the table and filter in Go, so they behave identically to the memory
// implementation for any pattern, including patterns containing SQL
// metacharacters.
type SQLiteVariableDictionary struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteVariableDictionary(db *sql.DB, logger *slog.Logger) (*SQLiteVariableDictionary, error) {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS Variables (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, value TEXT NOT NULL UNIQUE);")
	if err != nil {
		return nil, fmt.Errorf("error creating variables table: %w", err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS VariableSegments (variable_id INTEGER NOT NULL, segment_id TEXT NOT NULL, UNIQUE(variable_id, segment_id));")
	if err != nil {
		return nil, fmt.Errorf("error creating variable segments table: %w", err)
	}
	return &SQLiteVariableDictionary{db: db, logger: logger}, nil
}

func (d *SQLiteVariableDictionary) AddEntry(value string) (uint64, bool, error) {
	res, err := d.db.Exec("INSERT OR IGNORE INTO Variables (value) VALUES (?);", value)
	if err != nil {
		return 0, false, fmt.Errorf("error adding variable entry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("error checking variable insert result: %w", err)
	}
	var id uint64
	err = d.db.QueryRow("SELECT id FROM Variables WHERE value = ?;", value).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("error reading back variable id: %w", err)
	}
	return id - 1, inserted > 0, nil
}

func (d *SQLiteVariableDictionary) AssociateSegment(id uint64, segmentID string) error {
	_, err := d.db.Exec("INSERT OR IGNORE INTO VariableSegments (variable_id, segment_id) VALUES (?, ?);", id+1, segmentID)
	if err != nil {
		return fmt.Errorf("error associating variable %d with segment %s: %w", id, segmentID, err)
	}
	return nil
}

func (d *SQLiteVariableDictionary) EntryMatchingValue(value string, ignoreCase bool) (*VariableEntry, bool) {
	if !ignoreCase {
		var id uint64
		err := d.db.QueryRow("SELECT id FROM Variables WHERE value = ?;", value).Scan(&id)
		if err != nil {
			return nil, false
		}
		return d.loadEntry(id-1, value), true
	}
	for _, e := range d.scanAll() {
		if lowerASCII(e.Value) == lowerASCII(value) {
			return e, true
		}
	}
	return nil, false
}

func (d *SQLiteVariableDictionary) EntriesMatchingWildcard(pattern string, ignoreCase bool) []*VariableEntry {
	var out []*VariableEntry
	for _, e := range d.scanAll() {
		if WildcardMatch(pattern, e.Value, ignoreCase) {
			out = append(out, e)
		}
	}
	return out
}

func (d *SQLiteVariableDictionary) GetValue(id uint64) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM Variables WHERE id = ?;", id+1).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: no variable entry with id %d", clperr.BadParam, id)
	}
	if err != nil {
		return "", fmt.Errorf("error reading variable %d: %w", id, err)
	}
	return value, nil
}

func (d *SQLiteVariableDictionary) scanAll() []*VariableEntry {
	rows, err := d.db.Query("SELECT id, value FROM Variables ORDER BY id;")
	if err != nil {
		d.logger.Error("error scanning variables table", slog.Any("error", err))
		return nil
	}
	defer rows.Close()
	var out []*VariableEntry
	for rows.Next() {
		var id uint64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			d.logger.Error("error scanning variable row", slog.Any("error", err))
			return out
		}
		out = append(out, d.loadEntry(id-1, value))
	}
	return out
}

func (d *SQLiteVariableDictionary) loadEntry(id uint64, value string) *VariableEntry {
	e := &VariableEntry{ID: id, Value: value, segments: map[string]struct{}{}}
	rows, err := d.db.Query("SELECT segment_id FROM VariableSegments WHERE variable_id = ?;", id+1)
	if err != nil {
		d.logger.Error("error reading variable segments", slog.Uint64("id", id), slog.Any("error", err))
		return e
	}
	defer rows.Close()
	for rows.Next() {
		var seg string
		if err := rows.Scan(&seg); err != nil {
			continue
		}
		e.segments[seg] = struct{}{}
	}
	return e
}

// SQLiteLogtypeDictionary persists logtype entries in SQLite.
type SQLiteLogtypeDictionary struct {
	mode   logtype.Mode
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteLogtypeDictionary(db *sql.DB, mode logtype.Mode, logger *slog.Logger) (*SQLiteLogtypeDictionary, error) {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS Logtypes (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, value BLOB NOT NULL UNIQUE);")
	if err != nil {
		return nil, fmt.Errorf("error creating logtypes table: %w", err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS LogtypeSegments (logtype_id INTEGER NOT NULL, segment_id TEXT NOT NULL, UNIQUE(logtype_id, segment_id));")
	if err != nil {
		return nil, fmt.Errorf("error creating logtype segments table: %w", err)
	}
	return &SQLiteLogtypeDictionary{mode: mode, db: db, logger: logger}, nil
}

func (d *SQLiteLogtypeDictionary) AddEntry(value []byte) (uint64, bool, error) {
	res, err := d.db.Exec("INSERT OR IGNORE INTO Logtypes (value) VALUES (?);", value)
	if err != nil {
		return 0, false, fmt.Errorf("error adding logtype entry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("error checking logtype insert result: %w", err)
	}
	var id uint64
	err = d.db.QueryRow("SELECT id FROM Logtypes WHERE value = ?;", value).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("error reading back logtype id: %w", err)
	}
	return id - 1, inserted > 0, nil
}

func (d *SQLiteLogtypeDictionary) AssociateSegment(id uint64, segmentID string) error {
	_, err := d.db.Exec("INSERT OR IGNORE INTO LogtypeSegments (logtype_id, segment_id) VALUES (?, ?);", id+1, segmentID)
	if err != nil {
		return fmt.Errorf("error associating logtype %d with segment %s: %w", id, segmentID, err)
	}
	return nil
}

func (d *SQLiteLogtypeDictionary) EntriesMatchingWildcard(pattern string, ignoreCase bool) []*LogtypeEntry {
	rows, err := d.db.Query("SELECT id, value FROM Logtypes ORDER BY id;")
	if err != nil {
		d.logger.Error("error scanning logtypes table", slog.Any("error", err))
		return nil
	}
	defer rows.Close()
	var out []*LogtypeEntry
	for rows.Next() {
		var id uint64
		var value []byte
		if err := rows.Scan(&id, &value); err != nil {
			d.logger.Error("error scanning logtype row", slog.Any("error", err))
			return out
		}
		if !WildcardMatch(pattern, string(value), ignoreCase) {
			continue
		}
		e := &LogtypeEntry{
			ID:       id - 1,
			Value:    value,
			Mode:     d.mode,
			vars:     logtype.ParseVars(value, d.mode),
			segments: map[string]struct{}{},
		}
		d.loadSegments(e)
		out = append(out, e)
	}
	return out
}

func (d *SQLiteLogtypeDictionary) loadSegments(e *LogtypeEntry) {
	rows, err := d.db.Query("SELECT segment_id FROM LogtypeSegments WHERE logtype_id = ?;", e.ID+1)
	if err != nil {
		d.logger.Error("error reading logtype segments", slog.Uint64("id", e.ID), slog.Any("error", err))
		return
	}
	defer rows.Close()
	for rows.Next() {
		var seg string
		if err := rows.Scan(&seg); err != nil {
			continue
		}
		e.segments[seg] = struct{}{}
	}
}
