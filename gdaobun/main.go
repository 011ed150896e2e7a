// Package gdaobun provides a Bun-backed SQL adapter for gdao,
// supporting PostgreSQL, MySQL, and SQLite.
package gdaobun

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lemmego/gdao"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// =====================================
// Factory Implementation
// =====================================

// Factory implements gdao.BackendFactory
type Factory struct{}

// Create creates a new Bun backend instance
func (f *Factory) Create(config gdao.Config) (gdao.Backend, error) {
	var sqlDB *sql.DB
	var err error

	driver := strings.ToLower(config.Driver)
	switch driver {
	case "postgres", "postgresql":
		sqlDB, err = createPostgresConnection(config)
	case "pq":
		// lib/pq instead of the bun-native pgdriver
		sqlDB, err = createLibPQConnection(config)
		driver = "postgres"
	case "mysql":
		sqlDB, err = createMySQLConnection(config)
	case "sqlite", "sqlite3":
		sqlDB, err = createSQLiteConnection(config)
	default:
		return nil, gdao.NewError(gdao.ErrorTypeUnsupported,
			fmt.Sprintf("unsupported driver: %s", config.Driver))
	}

	if err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to connect to database", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	var bunDB *bun.DB
	switch driver {
	case "postgres", "postgresql":
		bunDB = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		bunDB = bun.NewDB(sqlDB, mysqldialect.New())
	case "sqlite", "sqlite3":
		bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	// Configure Bun options
	if options, ok := config.Options["bun"]; ok {
		if bunOpts, ok := options.(map[string]interface{}); ok {
			if logLevel, ok := bunOpts["log_level"].(string); ok && logLevel != "silent" {
				bunDB.AddQueryHook(bundebug.NewQueryHook(
					bundebug.WithVerbose(logLevel == "debug"),
				))
			}
		}
	}

	return &Backend{db: bunDB, config: config, driver: driver}, nil
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "pq", "mysql", "sqlite", "sqlite3"}
}

// =====================================
// Backend Implementation
// =====================================

// Backend implements gdao.Backend using Bun
type Backend struct {
	db     *bun.DB
	config gdao.Config
	driver string
}

// DB exposes the underlying bun.DB for schema setup and migrations
func (b *Backend) DB() *bun.DB {
	return b.db
}

// Info returns information about this backend
func (b *Backend) Info() gdao.BackendInfo {
	return gdao.BackendInfo{
		Name:         "Bun",
		Version:      "1.0.0",
		DatabaseType: gdao.DatabaseTypeSQL,
		Features: []gdao.Feature{
			gdao.FeatureTransactions,
			gdao.FeatureReturning,
			gdao.FeatureRawQueries,
			gdao.FeatureIndexing,
		},
	}
}

// Select retrieves all rows matching the filter
func (b *Backend) Select(ctx context.Context, table string, filter gdao.Filter, projection []string) ([]gdao.Record, error) {
	query := b.db.NewSelect().Table(table)
	if len(projection) > 0 {
		query = query.Column(projection...)
	}
	query = applySelectFilter(query, filter)

	var rows []map[string]interface{}
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, convertBunError(err)
	}
	return toRecords(rows), nil
}

// SelectOne retrieves a single row matching the filter
func (b *Backend) SelectOne(ctx context.Context, table string, filter gdao.Filter) (gdao.Record, error) {
	query := applySelectFilter(b.db.NewSelect().Table(table), filter).Limit(1)

	row := map[string]interface{}{}
	if err := query.Scan(ctx, &row); err != nil {
		return nil, convertBunError(err)
	}
	return gdao.Record(row), nil
}

// Count returns the number of rows matching the filter
func (b *Backend) Count(ctx context.Context, table string, filter gdao.Filter) (int64, error) {
	query := applySelectFilter(b.db.NewSelect().Table(table), filter)
	count, err := query.Count(ctx)
	return int64(count), convertBunError(err)
}

// Insert writes one row and returns it as stored. PostgreSQL and
// SQLite use RETURNING; MySQL re-selects by the auto-increment id.
func (b *Backend) Insert(ctx context.Context, table string, row gdao.Record) (gdao.Record, error) {
	values := map[string]interface{}(row.Clone())
	query := b.db.NewInsert().Model(&values).Table(table)

	if b.driver != "mysql" {
		returned := map[string]interface{}{}
		if _, err := query.Returning("*").Exec(ctx, &returned); err != nil {
			return nil, convertBunError(err)
		}
		return gdao.Record(returned), nil
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return nil, convertBunError(err)
	}
	if lastID, err := result.LastInsertId(); err == nil && lastID > 0 {
		if _, exists := row["id"]; !exists {
			return b.SelectOne(ctx, table, gdao.Eq("id", lastID))
		}
	}
	if id, exists := row["id"]; exists && id != nil {
		return b.SelectOne(ctx, table, gdao.Eq("id", id))
	}
	return row.Clone(), nil
}

// Update applies the row's columns to every row matching the filter
// and returns the updated row as stored.
func (b *Backend) Update(ctx context.Context, table string, row gdao.Record, filter gdao.Filter) (gdao.Record, error) {
	values := map[string]interface{}(row.Clone())
	query := b.db.NewUpdate().Model(&values).Table(table)
	query = applyUpdateFilter(query, filter)

	if b.driver == "postgres" || b.driver == "postgresql" {
		returned := map[string]interface{}{}
		if _, err := query.Returning("*").Exec(ctx, &returned); err != nil {
			return nil, convertBunError(err)
		}
		return gdao.Record(returned), nil
	}

	if _, err := query.Exec(ctx); err != nil {
		return nil, convertBunError(err)
	}
	return b.SelectOne(ctx, table, filter)
}

// Delete removes all rows matching the filter. Matching zero rows is
// not an error.
func (b *Backend) Delete(ctx context.Context, table string, filter gdao.Filter) error {
	query := applyDeleteFilter(b.db.NewDelete().Table(table), filter)
	_, err := query.Exec(ctx)
	return convertBunError(err)
}

// RPC executes a raw SQL query with :name placeholders bound from
// params, and returns the result rows.
func (b *Backend) RPC(ctx context.Context, name string, params map[string]interface{}) ([]gdao.Record, error) {
	sqlText, args := bindNamedParams(name, params)

	var rows []map[string]interface{}
	if err := b.db.NewRaw(sqlText, args...).Scan(ctx, &rows); err != nil {
		return nil, convertBunError(err)
	}
	return toRecords(rows), nil
}

// Health checks the database connection health
func (b *Backend) Health() error {
	return b.db.DB.Ping()
}

// Close closes the database connection
func (b *Backend) Close() error {
	return b.db.Close()
}

// =====================================
// Filter Application
// =====================================

func applySelectFilter(query *bun.SelectQuery, filter gdao.Filter) *bun.SelectQuery {
	for column, value := range filter.Eq {
		query = query.Where("? = ?", bun.Ident(column), value)
	}
	for column, values := range filter.In {
		query = query.Where("? IN (?)", bun.Ident(column), bun.In(values))
	}
	for _, order := range filter.Order {
		query = query.Order(fmt.Sprintf("%s %s", order.Field, order.Direction))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query
}

func applyUpdateFilter(query *bun.UpdateQuery, filter gdao.Filter) *bun.UpdateQuery {
	for column, value := range filter.Eq {
		query = query.Where("? = ?", bun.Ident(column), value)
	}
	for column, values := range filter.In {
		query = query.Where("? IN (?)", bun.Ident(column), bun.In(values))
	}
	return query
}

func applyDeleteFilter(query *bun.DeleteQuery, filter gdao.Filter) *bun.DeleteQuery {
	for column, value := range filter.Eq {
		query = query.Where("? = ?", bun.Ident(column), value)
	}
	for column, values := range filter.In {
		query = query.Where("? IN (?)", bun.Ident(column), bun.In(values))
	}
	return query
}

// =====================================
// Connection Helpers
// =====================================

// createPostgresConnection creates a PostgreSQL connection via pgdriver
func createPostgresConnection(config gdao.Config) (*sql.DB, error) {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(buildPostgresDSN(config)))
	return sql.OpenDB(connector), nil
}

// createLibPQConnection creates a PostgreSQL connection via lib/pq
func createLibPQConnection(config gdao.Config) (*sql.DB, error) {
	return sql.Open("postgres", buildPostgresDSN(config))
}

// buildPostgresDSN builds a PostgreSQL DSN string
func buildPostgresDSN(config gdao.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	params := []string{}
	if config.SSL.Enabled {
		params = append(params, "sslmode="+config.SSL.Mode)
		if config.SSL.CertFile != "" {
			params = append(params, "sslcert="+config.SSL.CertFile)
		}
		if config.SSL.KeyFile != "" {
			params = append(params, "sslkey="+config.SSL.KeyFile)
		}
		if config.SSL.CAFile != "" {
			params = append(params, "sslrootcert="+config.SSL.CAFile)
		}
	} else {
		params = append(params, "sslmode=disable")
	}

	return dsn + "?" + strings.Join(params, "&")
}

// createMySQLConnection creates a MySQL connection
func createMySQLConnection(config gdao.Config) (*sql.DB, error) {
	if config.ConnectionURL != "" {
		return sql.Open("mysql", config.ConnectionURL)
	}

	mysqlConfig := mysql.Config{
		User:      config.Username,
		Passwd:    config.Password,
		Net:       "tcp",
		Addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
		DBName:    config.Database,
		ParseTime: true,
	}

	return sql.Open("mysql", mysqlConfig.FormatDSN())
}

// createSQLiteConnection creates a SQLite connection
func createSQLiteConnection(config gdao.Config) (*sql.DB, error) {
	if config.ConnectionURL != "" {
		return sql.Open("sqlite3", config.ConnectionURL)
	}
	return sql.Open("sqlite3", config.Database)
}

// =====================================
// Helper Functions
// =====================================

func toRecords(rows []map[string]interface{}) []gdao.Record {
	records := make([]gdao.Record, len(rows))
	for i, row := range rows {
		records[i] = gdao.Record(row)
	}
	return records
}

// bindNamedParams rewrites :name placeholders in a SQL string to
// positional placeholders, collecting the bound values in order of
// appearance. Names are word-delimited; "::" type casts are ignored.
func bindNamedParams(query string, params map[string]interface{}) (string, []interface{}) {
	if len(params) == 0 {
		return query, nil
	}

	var b strings.Builder
	var args []interface{}
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != ':' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(query) && query[i+1] == ':' {
			b.WriteString("::")
			i++
			continue
		}
		j := i + 1
		for j < len(query) && isNameChar(query[j]) {
			j++
		}
		name := query[i+1 : j]
		if value, ok := params[name]; ok {
			b.WriteByte('?')
			args = append(args, value)
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), args
}

func isNameChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// =====================================
// Error Conversion
// =====================================

// convertBunError converts Bun/database errors to gdao errors
func convertBunError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case err == sql.ErrNoRows:
		return gdao.NewErrorWithCause(gdao.ErrorTypeNotFound, "record not found", err)
	case strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "unique"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeDuplicate, "duplicate key violation", err)
	case strings.Contains(err.Error(), "timeout"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeTimeout, "operation timeout", err)
	case strings.Contains(err.Error(), "connection"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeConnection, "connection error", err)
	default:
		return gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "database operation failed", err)
	}
}

// =====================================
// Registration
// =====================================

// init registers the Bun backend factory
func init() {
	gdao.RegisterBackend("bun", &Factory{})
}
