package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/record"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLOptions struct {
	Driver string `cfg:"driver" def:"sqlite3" validate:"oneof=sqlite3 mysql"`
	DSN    string `cfg:"dsn" validate:"required"`
	Table  string `cfg:"table" validate:"required"`

	Columns []record.Column `cfg:"columns" validate:"required,dive"`
	Key     []string        `cfg:"key"`
	Sorting string          `cfg:"sorting"`
	// Identity 自增列，插入时为空则由数据库生成
	Identity string `cfg:"identity"`
	// Dialect 为空时按驱动选择
	Dialect string `cfg:"dialect"`
	// LockClause 加锁时附加在查询后的子句，如 "for update"
	LockClause    string `cfg:"lockClause"`
	Transactional bool   `cfg:"transactional"`

	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime"`
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQL 基于 database/sql 的表，写入在事务模式下延迟开启事务
type SQL struct {
	mu      sync.Mutex
	db      *sql.DB
	tx      *sql.Tx
	rows    *sql.Rows
	dialect filter.Dialect
	named   bool
	options *SQLOptions
}

func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	if options == nil {
		return nil, errors.New("sql options is nil")
	}
	if options.Table == "" || options.DSN == "" {
		return nil, errors.New("table and dsn are required")
	}
	if len(options.Columns) == 0 {
		return nil, errors.New("columns is required")
	}
	driver := options.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, options.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open %s failed", driver)
	}
	if options.MaxConns > 0 {
		db.SetMaxOpenConns(options.MaxConns)
	}
	if options.MaxIdle > 0 {
		db.SetMaxIdleConns(options.MaxIdle)
	}
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db.Ping failed")
	}

	dialectName := options.Dialect
	if dialectName == "" {
		dialectName = driver
	}
	dialect := filter.DialectByName(dialectName)
	_, isNamed := dialect.(filter.NamedDialect)
	_, isSQLite := dialect.(filter.SQLiteDialect)

	opts := *options
	opts.Driver = driver
	return &SQL{
		db:      db,
		dialect: dialect,
		named:   isNamed || isSQLite,
		options: &opts,
	}, nil
}

func (s *SQL) Name() string             { return s.options.Table }
func (s *SQL) Columns() []record.Column { return s.options.Columns }
func (s *SQL) Key() []string            { return s.options.Key }
func (s *SQL) Sorting() string          { return s.options.Sorting }
func (s *SQL) Transactional() bool      { return s.options.Transactional }

// DB 底层连接
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// writer 事务模式下第一次写入时开启事务
func (s *SQL) writer(ctx context.Context) (querier, error) {
	if !s.options.Transactional {
		return s.db, nil
	}
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(err, "db.BeginTx failed")
		}
		s.tx = tx
	}
	return s.tx, nil
}

func (s *SQL) args(binds []filter.BindValue) []any {
	args := make([]any, len(binds))
	for i, b := range binds {
		if s.named {
			args[i] = sql.Named(b.Name, b.Arg())
		} else {
			args[i] = b.Arg()
		}
	}
	return args
}

func (s *SQL) columnList() string {
	names := make([]string, len(s.options.Columns))
	for i, c := range s.options.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// selectSQL 构造查询语句
func (s *SQL) selectSQL(r *filter.Renderer, where *filter.Structure) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "select %s from %s", s.columnList(), s.options.Table)
	if where != nil {
		if clause := where.RenderTo(r); clause != "" {
			buf.WriteString(" where ")
			buf.WriteString(clause)
		}
	}
	return buf.String()
}

func (s *SQL) Query(ctx context.Context, where *filter.Structure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}

	r := filter.NewRenderer(s.dialect)
	query := s.selectSQL(r, where)
	if s.options.Sorting != "" {
		query += " order by " + s.options.Sorting
	}
	rows, err := s.querier().QueryContext(ctx, query, s.args(r.BindValues())...)
	if err != nil {
		return errors.Wrapf(err, "query %s failed", s.options.Table)
	}
	s.rows = rows
	return nil
}

func (s *SQL) Fetch(ctx context.Context) (map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rows == nil {
		return nil, false, ErrNoQuery
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		_ = s.rows.Close()
		s.rows = nil
		if err != nil {
			return nil, false, errors.Wrap(err, "rows.Next failed")
		}
		return nil, false, nil
	}
	row, err := s.scan(s.rows)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (s *SQL) scan(rows *sql.Rows) (map[string]any, error) {
	values := make([]any, len(s.options.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "rows.Scan failed")
	}
	row := make(map[string]any, len(values))
	for i, c := range s.options.Columns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if converted, err := c.Type.Coerce(v); err == nil {
			v = converted
		}
		row[c.Name] = v
	}
	return row, nil
}

func (s *SQL) Insert(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	r := filter.NewRenderer(s.dialect)
	var columns, placeholders []string
	for _, c := range s.options.Columns {
		if rec.IndexOf(c.Name) < 0 {
			continue
		}
		v := rec.Get(c.Name)
		if c.Name == s.options.Identity && v == nil {
			continue
		}
		columns = append(columns, c.Name)
		placeholders = append(placeholders, r.Bind(filter.BindValue{Name: c.Name, Type: c.Type, Value: v}))
	}
	query := fmt.Sprintf("insert into %s (%s) values (%s)",
		s.options.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	result, err := w.ExecContext(ctx, query, s.args(r.BindValues())...)
	if err != nil {
		return errors.Wrapf(err, "insert into %s failed", s.options.Table)
	}

	if s.options.Identity != "" && rec.Get(s.options.Identity) == nil {
		id, err := result.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "result.LastInsertId failed")
		}
		rec.Set(s.options.Identity, id)
	}
	return nil
}

func (s *SQL) Update(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := backedValues(s, rec, true)
	if len(values) == 0 {
		return nil
	}
	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	r := filter.NewRenderer(s.dialect)
	var sets []string
	for _, c := range s.options.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		sets = append(sets, c.Name+" = "+r.Bind(filter.BindValue{Name: "set_" + c.Name, Type: c.Type, Value: v}))
	}
	query := fmt.Sprintf("update %s set %s where %s",
		s.options.Table, strings.Join(sets, ", "), keyFilter(s, rec).RenderTo(r))
	result, err := w.ExecContext(ctx, query, s.args(r.BindValues())...)
	if err != nil {
		return errors.Wrapf(err, "update %s failed", s.options.Table)
	}
	return s.affected(result, "update")
}

func (s *SQL) Delete(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(ctx)
	if err != nil {
		return err
	}
	r := filter.NewRenderer(s.dialect)
	query := fmt.Sprintf("delete from %s where %s", s.options.Table, keyFilter(s, rec).RenderTo(r))
	result, err := w.ExecContext(ctx, query, s.args(r.BindValues())...)
	if err != nil {
		return errors.Wrapf(err, "delete from %s failed", s.options.Table)
	}
	return s.affected(result, "delete")
}

func (s *SQL) affected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "result.RowsAffected failed")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s %s", op, s.options.Table)
	}
	return nil
}

func (s *SQL) Lock(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.querier()
	if s.options.LockClause != "" {
		w, err := s.writer(ctx)
		if err != nil {
			return err
		}
		q = w
	}
	row, err := s.refresh(ctx, q, rec, s.options.LockClause)
	if err != nil {
		return err
	}
	return verifyUnchanged(s, rec, row)
}

func (s *SQL) Refresh(ctx context.Context, rec *record.Record) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx, s.querier(), rec, "")
}

func (s *SQL) refresh(ctx context.Context, q querier, rec *record.Record, suffix string) (map[string]any, error) {
	r := filter.NewRenderer(s.dialect)
	query := s.selectSQL(r, keyFilter(s, rec))
	if suffix != "" {
		query += " " + suffix
	}
	rows, err := q.QueryContext(ctx, query, s.args(r.BindValues())...)
	if err != nil {
		return nil, errors.Wrapf(err, "refresh %s failed", s.options.Table)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "rows.Next failed")
		}
		return nil, errors.Wrapf(ErrNotFound, "refresh %s", s.options.Table)
	}
	return s.scan(rows)
}

func (s *SQL) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "tx.Commit failed")
	}
	return nil
}

func (s *SQL) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return errors.Wrap(err, "tx.Rollback failed")
	}
	return nil
}

func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}
