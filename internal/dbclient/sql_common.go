package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// sqlConnector backs the MySQL, Postgres, and SQLite connectors with a
// single database/sql implementation. One cursor at a time: Execute
// discards whatever the previous query left open.
type sqlConnector struct {
	driverName string
	db         *sql.DB

	mu      sync.Mutex
	cursor  *sql.Rows
	cancel  context.CancelFunc // releases the cursor's query context
	columns []string
	served  int
}

func newSQLConnector(driverName, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

var readPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA"}

// isReadQuery reports whether the statement can only read.
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, p := range readPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

func (c *sqlConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	if !isReadQuery(query) {
		return nil, fmt.Errorf("connector is read-only, refusing query: %.40s", query)
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropCursorLocked()

	// The cursor outlives this call (FetchMore pages through it later),
	// so its context must too: cancelling here would make database/sql
	// close the rows as soon as Execute returns. The cancel func is
	// released together with the cursor in dropCursorLocked.
	ctx, cancel := context.WithCancel(ctx)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancel()
		return nil, fmt.Errorf("columns: %w", err)
	}

	c.cursor = rows
	c.cancel = cancel
	c.columns = cols
	c.served = 0

	return c.nextPageLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	if fetchSize <= 0 {
		fetchSize = 50
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor == nil {
		return nil, fmt.Errorf("no active cursor — execute a query first")
	}
	return c.nextPageLocked(fetchSize)
}

// nextPageLocked drains up to fetchSize rows from the cursor, closing it
// once exhausted. Caller holds c.mu.
func (c *sqlConnector) nextPageLocked(fetchSize int) (*QueryPage, error) {
	width := len(c.columns)
	page := &QueryPage{Columns: c.columns, HasMore: true}

	scan := make([]any, width)
	ptrs := make([]any, width)
	for i := range scan {
		ptrs[i] = &scan[i]
	}

	for len(page.Rows) < fetchSize && c.cursor.Next() {
		if err := c.cursor.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, width)
		for i, v := range scan {
			row[i] = formatValue(v)
		}
		page.Rows = append(page.Rows, row)
	}

	if len(page.Rows) < fetchSize {
		page.HasMore = false
		if err := c.cursor.Err(); err != nil {
			c.dropCursorLocked()
			return nil, fmt.Errorf("iterate: %w", err)
		}
		c.dropCursorLocked()
	}

	c.served += len(page.Rows)
	page.TotalFetched = c.served
	return page, nil
}

// formatValue maps driver values onto JSON-friendly ones.
func formatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

func (c *sqlConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tables, err := c.listTables(ctx)
	if err != nil {
		return nil, err
	}

	schema := &SchemaInfo{}
	for _, tbl := range tables {
		cols, err := c.tableColumns(ctx, tbl)
		if err != nil {
			// Table without column detail still shows up in discovery.
			schema.Tables = append(schema.Tables, TableInfo{Name: tbl})
			continue
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: tbl, Columns: cols})
	}
	return schema, nil
}

func (c *sqlConnector) listTables(ctx context.Context) ([]string, error) {
	var rows *sql.Rows
	var err error

	if c.driverName == "sqlite" {
		rows, err = c.db.QueryContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	} else {
		rows, err = c.db.QueryContext(ctx,
			`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			 WHERE TABLE_SCHEMA = DATABASE() OR TABLE_SCHEMA = CURRENT_SCHEMA()
			 ORDER BY TABLE_NAME`)
		if err != nil {
			// Some servers reject the schema filter; take everything.
			rows, err = c.db.QueryContext(ctx,
				`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES ORDER BY TABLE_NAME`)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *sqlConnector) tableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	if c.driverName == "sqlite" {
		rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info('%s')", table))
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var cols []ColumnInfo
		for rows.Next() {
			var cid, notNull, pk int
			var name, colType string
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				continue
			}
			cols = append(cols, ColumnInfo{Name: name, Type: colType})
		}
		return cols, rows.Err()
	}

	q := `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
	if c.driverName == "postgres" {
		q = strings.Replace(q, "?", "$1", 1)
	}
	rows, err := c.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		if err := rows.Scan(&ci.Name, &ci.Type); err != nil {
			continue
		}
		cols = append(cols, ci)
	}
	return cols, rows.Err()
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.dropCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) dropCursorLocked() {
	if c.cursor != nil {
		c.cursor.Close()
		c.cursor = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
