package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const (
	dialectSQLite       = "sqlite3"
	sqliteSchemaVersion = 1
)

// SQLiteStore keeps every collection in one table of a local database file.
type SQLiteStore struct {
	db   *sqlx.DB
	opts options
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o, err := buildOptions(defaultTableName, opts)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Writers take the lock at BEGIN so read-modify-write cannot deadlock on upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, unavailable(fmt.Errorf("open sqlite: %w", err))
	}

	s := &SQLiteStore{db: db, opts: o}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return unavailable(fmt.Errorf("enable WAL: %w", err))
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return unavailable(err)
	}

	var current int
	_ = s.db.GetContext(ctx, &current, `SELECT value FROM meta WHERE key='schema_version';`)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	var stmts []string
	if current < sqliteSchemaVersion {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				collection TEXT NOT NULL,
				id TEXT NOT NULL,
				doc TEXT NOT NULL,
				UNIQUE(collection, id)
			);`, s.opts.tableName),
		)
	}
	// Index declarations may change between runs, so they are always ensured.
	for _, idx := range s.opts.indexes {
		stmts = append(stmts, sqliteIndexStatement(s.opts.tableName, idx))
	}
	stmts = append(stmts, `INSERT INTO meta(key,value) VALUES('schema_version',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value;`)

	for _, stmt := range stmts {
		var err error
		if strings.Contains(stmt, "?") {
			_, err = tx.ExecContext(ctx, stmt, sqliteSchemaVersion)
		} else {
			_, err = tx.ExecContext(ctx, stmt)
		}
		if err != nil {
			return unavailable(fmt.Errorf("migration failed: %w", err))
		}
	}
	return tx.Commit()
}

func sqliteIndexStatement(table string, idx UniqueIndex) string {
	expr := fmt.Sprintf("json_extract(doc, '$.%s')", idx.Field)
	keyExpr := expr
	if idx.Fold {
		keyExpr = fmt.Sprintf("lower(%s)", expr)
	}
	return fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s_%s_%s_key ON %s(%s) WHERE collection = '%s' AND COALESCE(%s, '') <> '';",
		table, idx.Collection, idx.Field, table, keyExpr, idx.Collection, expr,
	)
}

func jsonPath(fieldName string) string {
	return "$." + fieldName
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	query, _, err := goqu.Dialect(dialectSQLite).
		From(s.opts.tableName).
		Select(colDoc).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var doc string
	if err := s.db.GetContext(ctx, &doc, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		log.Printf("[SQLiteStore] get %s/%s failed: %v", collection, id, err)
		return nil, unavailable(err)
	}
	return []byte(doc), nil
}

func (s *SQLiteStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	query, err := s.buildFindQuery(collection, q)
	if err != nil {
		return nil, err
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		log.Printf("[SQLiteStore] find in %s failed: %v", collection, err)
		return nil, unavailable(err)
	}

	docs := make([][]byte, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, []byte(row))
	}
	return docs, nil
}

func (s *SQLiteStore) buildFindQuery(collection string, q Query) (string, error) {
	stmt := goqu.Dialect(dialectSQLite).
		From(s.opts.tableName).
		Select(colDoc).
		Where(goqu.C(colCollection).Eq(collection))

	for _, c := range q.Where {
		stmt = stmt.Where(sqliteCondition(c))
	}

	if q.SortBy != "" {
		// SQLite sorts NULL first ascending and last descending.
		key := goqu.L("json_extract(doc, ?)", jsonPath(q.SortBy))
		if q.Desc {
			stmt = stmt.Order(key.Desc(), goqu.C(colSeq).Asc())
		} else {
			stmt = stmt.Order(key.Asc(), goqu.C(colSeq).Asc())
		}
	} else {
		stmt = stmt.Order(goqu.C(colSeq).Asc())
	}

	if q.Limit > 0 {
		stmt = stmt.Limit(uint(q.Limit))
	}
	if q.Skip > 0 {
		if q.Limit <= 0 {
			// SQLite needs a LIMIT before OFFSET.
			stmt = stmt.Limit(uint(1<<31 - 1))
		}
		stmt = stmt.Offset(uint(q.Skip))
	}

	query, _, err := stmt.ToSQL()
	return query, err
}

func sqliteCondition(c Condition) exp.Expression {
	path := jsonPath(c.Field)
	switch c.Op {
	case OpEqFold:
		return goqu.L("lower(json_extract(doc, ?)) = lower(?)", path, c.Value)
	case OpContainsFold:
		return goqu.L("instr(lower(json_extract(doc, ?)), lower(?)) > 0", path, c.Value)
	case OpHas:
		return goqu.L("EXISTS (SELECT 1 FROM json_each(doc, ?) WHERE json_type(doc, ?) = 'array' AND lower(value) = lower(?))",
			path, path, c.Value)
	default:
		return goqu.L("CAST(json_extract(doc, ?) AS TEXT) = ?", path, c.Value)
	}
}

func (s *SQLiteStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}

	query, _, err := goqu.Dialect(dialectSQLite).
		Insert(s.opts.tableName).
		Rows(goqu.Record{colCollection: collection, colID: id, colDoc: string(doc)}).
		ToSQL()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return s.translate("insert", collection, id, err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}

	query, _, err := goqu.Dialect(dialectSQLite).
		Insert(s.opts.tableName).
		Rows(goqu.Record{colCollection: collection, colID: id, colDoc: string(doc)}).
		OnConflict(goqu.DoUpdate("collection, id", goqu.Record{colDoc: goqu.L("excluded.doc")})).
		ToSQL()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return s.translate("upsert", collection, id, err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.translate("update", collection, id, err)
	}
	defer tx.Rollback()

	builder := goqu.Dialect(dialectSQLite)
	selectSQL, _, err := builder.
		From(s.opts.tableName).
		Select(colDoc).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return err
	}

	var current string
	if err := tx.GetContext(ctx, &current, selectSQL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return s.translate("update", collection, id, err)
	}

	updated, err := fn([]byte(current))
	if err != nil {
		return err
	}
	if !validDocument(updated) {
		return ErrInvalidDocument
	}

	updateSQL, _, err := builder.
		Update(s.opts.tableName).
		Set(goqu.Record{colDoc: string(updated)}).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, updateSQL); err != nil {
		return s.translate("update", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return s.translate("update", collection, id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	query, _, err := goqu.Dialect(dialectSQLite).
		Delete(s.opts.tableName).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return s.translate("delete", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) translate(op, collection, id string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicate
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	log.Printf("[SQLiteStore] %s %s/%s failed: %v", op, collection, id, err)
	return unavailable(err)
}
