package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	dialectPostgres  = "postgres"
	defaultTableName = "documents"

	colCollection = "collection"
	colID         = "id"
	colSeq        = "seq"
	colDoc        = "doc"

	pgUniqueViolation = "23505"
)

// PostgresStore keeps every collection in one JSONB table.
type PostgresStore struct {
	db   *sqlx.DB
	opts options
}

// ConnectPostgres opens a pooled connection and verifies it.
func ConnectPostgres(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// NewPostgresStore creates the documents table and unique indexes if needed.
func NewPostgresStore(ctx context.Context, db *sqlx.DB, opts ...Option) (*PostgresStore, error) {
	o, err := buildOptions(defaultTableName, opts)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db, opts: o}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			seq BIGSERIAL,
			doc JSONB NOT NULL,
			PRIMARY KEY (collection, id)
		)`, s.opts.tableName),
	}
	for _, idx := range s.opts.indexes {
		stmts = append(stmts, pgIndexStatement(s.opts.tableName, idx))
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable(fmt.Errorf("migrate %s: %w", s.opts.tableName, err))
		}
	}
	return nil
}

func pgIndexStatement(table string, idx UniqueIndex) string {
	expr := fmt.Sprintf("(doc->>'%s')", idx.Field)
	if idx.Fold {
		expr = fmt.Sprintf("lower(doc->>'%s')", idx.Field)
	}
	return fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s_%s_%s_key ON %s ((%s)) WHERE collection = '%s' AND COALESCE(doc->>'%s', '') <> ''",
		table, idx.Collection, idx.Field, table, expr, idx.Collection, idx.Field,
	)
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	query, _, err := goqu.Dialect(dialectPostgres).
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
		log.Printf("[PostgresStore] get %s/%s failed: %v", collection, id, err)
		return nil, unavailable(err)
	}
	return []byte(doc), nil
}

func (s *PostgresStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	query, err := s.buildFindQuery(collection, q)
	if err != nil {
		return nil, err
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		log.Printf("[PostgresStore] find in %s failed: %v", collection, err)
		return nil, unavailable(err)
	}

	docs := make([][]byte, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, []byte(row))
	}
	return docs, nil
}

func (s *PostgresStore) buildFindQuery(collection string, q Query) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(s.opts.tableName).
		Select(colDoc).
		Where(goqu.C(colCollection).Eq(collection))

	for _, c := range q.Where {
		stmt = stmt.Where(pgCondition(c))
	}

	if q.SortBy != "" {
		key := goqu.L("doc->?", q.SortBy)
		if q.Desc {
			stmt = stmt.Order(key.Desc().NullsLast(), goqu.C(colSeq).Asc())
		} else {
			stmt = stmt.Order(key.Asc().NullsFirst(), goqu.C(colSeq).Asc())
		}
	} else {
		stmt = stmt.Order(goqu.C(colSeq).Asc())
	}

	if q.Skip > 0 {
		stmt = stmt.Offset(uint(q.Skip))
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(uint(q.Limit))
	}

	query, _, err := stmt.ToSQL()
	return query, err
}

func pgCondition(c Condition) exp.Expression {
	switch c.Op {
	case OpEqFold:
		return goqu.L("lower(doc->>?) = lower(?)", c.Field, c.Value)
	case OpContainsFold:
		return goqu.L("strpos(lower(doc->>?), lower(?)) > 0", c.Field, c.Value)
	case OpHas:
		return goqu.L("EXISTS (SELECT 1 FROM jsonb_array_elements_text(CASE WHEN jsonb_typeof(doc->?) = 'array' THEN doc->? ELSE '[]'::jsonb END) AS e(v) WHERE lower(e.v) = lower(?))",
			c.Field, c.Field, c.Value)
	default:
		return goqu.L("doc->>? = ?", c.Field, c.Value)
	}
}

func (s *PostgresStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}

	query, _, err := goqu.Dialect(dialectPostgres).
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

func (s *PostgresStore) Upsert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}

	query, _, err := goqu.Dialect(dialectPostgres).
		Insert(s.opts.tableName).
		Rows(goqu.Record{colCollection: collection, colID: id, colDoc: string(doc)}).
		OnConflict(goqu.DoUpdate("collection, id", goqu.Record{colDoc: goqu.L("EXCLUDED.doc")})).
		ToSQL()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return s.translate("upsert", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	builder := goqu.Dialect(dialectPostgres)
	selectSQL, _, err := builder.
		From(s.opts.tableName).
		Select(colDoc).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ForUpdate(exp.Wait).
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

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	query, _, err := goqu.Dialect(dialectPostgres).
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

func (s *PostgresStore) translate(op, collection, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	log.Printf("[PostgresStore] %s %s/%s failed: %v", op, collection, id, err)
	return unavailable(err)
}
