package db

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"threatexplorer/models"

	_ "github.com/mattn/go-sqlite3"
)

const tableName = "attacks"

const insertBatchSize = 1000

// LoadError means the dataset could not be loaded at startup. No agent can
// function without data, so callers should treat it as fatal.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load dataset from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// QueryError means a caller-supplied query string failed to execute. It is
// recoverable: tools report it back into the conversation so the model can
// retry or explain.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// AttackStore holds the attack dataset in an in-memory SQLite table. The
// table is populated once at startup and read-only afterwards, so it is safe
// for concurrent request handlers.
type AttackStore struct {
	db      *sql.DB
	columns []string
}

// Each store gets its own shared-cache database name so that independent
// stores (tests in particular) never see each other's tables.
var storeSequence atomic.Int64

func NewAttackStore(csvPath string) (*AttackStore, error) {
	log.Printf("[INFO] Initializing in-memory attacks database from %s", csvPath)

	file, err := os.Open(csvPath)
	if err != nil {
		return nil, &LoadError{Source: csvPath, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, &LoadError{Source: csvPath, Err: fmt.Errorf("failed to read CSV header: %w", err)}
	}

	dsn := fmt.Sprintf("file:attackdb%d?mode=memory&cache=shared", storeSequence.Add(1))
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &LoadError{Source: csvPath, Err: fmt.Errorf("failed to open database: %w", err)}
	}

	// A single long-lived connection keeps the shared in-memory database
	// alive for the process lifetime.
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)
	database.SetConnMaxLifetime(0)

	store := &AttackStore{db: database, columns: header}

	if err := store.createTable(header); err != nil {
		database.Close()
		return nil, &LoadError{Source: csvPath, Err: err}
	}

	rowCount, err := store.insertRows(reader, header)
	if err != nil {
		database.Close()
		return nil, &LoadError{Source: csvPath, Err: err}
	}

	log.Printf("[INFO] Loaded %d rows with %d columns into '%s' table", rowCount, len(header), tableName)

	return store, nil
}

func (s *AttackStore) createTable(header []string) error {
	// All columns are TEXT for simplicity; SQLite compares numerically
	// where the query casts.
	definitions := make([]string, len(header))
	for i, column := range header {
		definitions[i] = fmt.Sprintf("%q TEXT", column)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(definitions, ", "))
	if _, err := s.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

func (s *AttackStore) insertRows(reader *csv.Reader, header []string) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, placeholders)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	total := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			tx.Rollback()
			return 0, fmt.Errorf("malformed CSV row: %w", err)
		}

		values := make([]any, len(record))
		for i, field := range record {
			values[i] = field
		}

		if _, err := stmt.Exec(values...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert row: %w", err)
		}

		total++
		if total%insertBatchSize == 0 {
			log.Printf("[INFO] Inserted %d rows...", total)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit inserts: %w", err)
	}

	return total, nil
}

// Execute runs the supplied query string unmodified and returns the result
// rows as ordered column-to-value mappings. Callers wanting a row cap should
// pass the query through EnsureRowLimit first.
func (s *AttackStore) Execute(query string) ([]map[string]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}

	results := make([]map[string]string, 0)
	for rows.Next() {
		raw := make([]sql.NullString, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range raw {
			scanTargets[i] = &raw[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}

		row := make(map[string]string, len(columns))
		for i, column := range columns {
			row[column] = raw[i].String
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}

	return results, nil
}

// DescribeSchema reports the table name, its columns and the row count so
// callers (including the model) can discover available fields before querying.
func (s *AttackStore) DescribeSchema() (*models.SchemaInfo, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		columns = append(columns, models.SchemaColumn{Name: name, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over table info: %w", err)
	}

	var rowCount int
	if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&rowCount); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	return &models.SchemaInfo{
		TableName: tableName,
		Columns:   columns,
		RowCount:  rowCount,
	}, nil
}

// Columns returns the dataset column names in CSV order.
func (s *AttackStore) Columns() []string {
	columns := make([]string, len(s.columns))
	copy(columns, s.columns)
	return columns
}

func (s *AttackStore) Close() error {
	return s.db.Close()
}

// EnsureRowLimit appends a LIMIT clause when the query does not already
// declare one, bounding response size for model consumption.
func EnsureRowLimit(query string, limit int) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(query), ";")
	if strings.Contains(strings.ToUpper(trimmed), "LIMIT") {
		return trimmed
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}
