package reconng

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

// Tables read from a recon-ng workspace database.
var Tables = []string{"breaches", "companies", "contacts", "credentials", "domains", "hosts"}

// Row is one workspace table row keyed by column name.
type Row map[string]any

// Records holds the de-duplicated rows of every table of interest.
type Records map[string][]Row

// AsMap converts records into the profile's plain mapping shape.
func (r Records) AsMap() map[string]any {
	out := make(map[string]any, len(Tables))
	for _, table := range Tables {
		rows := make([]any, 0, len(r[table]))
		for _, row := range r[table] {
			rows = append(rows, map[string]any(row))
		}
		out[table] = rows
	}
	return out
}

// LoadWorkspace reads the tables of interest from a recon-ng data.db. Missing
// tables yield empty lists; duplicate rows are dropped.
func LoadWorkspace(ctx context.Context, path string) (Records, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("reconng: open %s: %w", path, err)
	}
	defer db.Close()

	present, err := tableNames(ctx, db)
	if err != nil {
		return nil, err
	}
	records := make(Records, len(Tables))
	for _, table := range Tables {
		records[table] = []Row{}
		if _, ok := present[table]; !ok {
			continue
		}
		rows, err := readTable(ctx, db, table)
		if err != nil {
			return nil, err
		}
		records[table] = dedupe(rows)
	}
	return records, nil
}

func tableNames(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("reconng: list tables: %w", err)
	}
	defer rows.Close()
	names := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("reconng: list tables: %w", err)
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// readTable selects every column; table is always one of Tables.
func readTable(ctx context.Context, db *sql.DB, table string) ([]Row, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("reconng: read %s: %w", table, err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reconng: read %s columns: %w", table, err)
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("reconng: scan %s: %w", table, err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = plain(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func plain(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case int64:
		return int(v)
	default:
		return v
	}
}

func dedupe(rows []Row) []Row {
	seen := map[string]struct{}{}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		key, err := json.Marshal(row)
		if err != nil {
			key = []byte(fmt.Sprint(row))
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, row)
	}
	return out
}

// stringValues returns the trimmed string cells of rows in column order.
func stringValues(rows []Row) []string {
	var out []string
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for key := range row {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if value, ok := row[key].(string); ok {
				out = append(out, value)
			}
		}
	}
	return out
}
