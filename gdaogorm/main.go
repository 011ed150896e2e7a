// Package gdaogorm provides a GORM-backed SQL adapter for gdao,
// supporting PostgreSQL, MySQL, SQLite, and SQL Server.
package gdaogorm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lemmego/gdao"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// =====================================
// Factory Implementation
// =====================================

// Factory implements gdao.BackendFactory
type Factory struct{}

// Create creates a new GORM backend instance
func (f *Factory) Create(config gdao.Config) (gdao.Backend, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
	}

	// Apply custom configurations from options
	if options, ok := config.Options["gorm"]; ok {
		if gormOpts, ok := options.(map[string]interface{}); ok {
			if logLevel, ok := gormOpts["log_level"].(string); ok {
				switch logLevel {
				case "silent":
					gormConfig.Logger = logger.Default.LogMode(logger.Silent)
				case "error":
					gormConfig.Logger = logger.Default.LogMode(logger.Error)
				case "warn":
					gormConfig.Logger = logger.Default.LogMode(logger.Warn)
				case "info":
					gormConfig.Logger = logger.Default.LogMode(logger.Info)
				}
			}
		}
	}

	driver := strings.ToLower(config.Driver)

	var dialector gorm.Dialector
	switch driver {
	case "postgres", "postgresql":
		dialector = postgres.Open(buildPostgresDSN(config))
	case "mysql":
		dialector = mysql.Open(buildMySQLDSN(config))
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(sqliteDSN(config))
	case "sqlserver", "mssql":
		dialector = sqlserver.Open(buildSQLServerDSN(config))
	default:
		return nil, gdao.NewError(gdao.ErrorTypeUnsupported,
			fmt.Sprintf("unsupported driver: %s", config.Driver))
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to connect to database", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to get underlying sql.DB", err)
	}
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

	return &Backend{db: db, config: config, driver: driver}, nil
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3", "sqlserver", "mssql"}
}

// =====================================
// Backend Implementation
// =====================================

// Backend implements gdao.Backend using GORM
type Backend struct {
	db     *gorm.DB
	config gdao.Config
	driver string
}

// DB exposes the underlying gorm.DB for schema setup and migrations
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Info returns information about this backend
func (b *Backend) Info() gdao.BackendInfo {
	return gdao.BackendInfo{
		Name:         "GORM",
		Version:      "1.0.0",
		DatabaseType: gdao.DatabaseTypeSQL,
		Features: []gdao.Feature{
			gdao.FeatureTransactions,
			gdao.FeatureRawQueries,
			gdao.FeatureIndexing,
		},
	}
}

// Select retrieves all rows matching the filter
func (b *Backend) Select(ctx context.Context, table string, filter gdao.Filter, projection []string) ([]gdao.Record, error) {
	tx := b.applyFilter(b.db.WithContext(ctx).Table(table), filter)
	if len(projection) > 0 {
		tx = tx.Select(projection)
	}

	var rows []map[string]interface{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, convertGormError(err)
	}
	return toRecords(rows), nil
}

// SelectOne retrieves a single row matching the filter
func (b *Backend) SelectOne(ctx context.Context, table string, filter gdao.Filter) (gdao.Record, error) {
	tx := b.applyFilter(b.db.WithContext(ctx).Table(table), filter)

	row := map[string]interface{}{}
	if err := tx.Take(&row).Error; err != nil {
		return nil, convertGormError(err)
	}
	return gdao.Record(row), nil
}

// Count returns the number of rows matching the filter
func (b *Backend) Count(ctx context.Context, table string, filter gdao.Filter) (int64, error) {
	tx := b.applyFilter(b.db.WithContext(ctx).Table(table), filter)

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, convertGormError(err)
	}
	return count, nil
}

// Insert writes one row and returns it as stored. Dialects with
// RETURNING get the stored row in one statement; MySQL re-selects by
// the auto-increment id from the same session.
func (b *Backend) Insert(ctx context.Context, table string, row gdao.Record) (gdao.Record, error) {
	columns := sortedKeys(row)
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		placeholders[i] = "?"
		args[i] = row[col]
	}
	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if b.supportsReturning() {
		stored := map[string]interface{}{}
		err := b.db.WithContext(ctx).Raw(sqlText+" RETURNING *", args...).Scan(&stored).Error
		if err != nil {
			return nil, convertGormError(err)
		}
		return gdao.Record(stored), nil
	}

	err := b.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if err := tx.Exec(sqlText, args...).Error; err != nil {
			return err
		}
		if _, exists := row["id"]; !exists {
			var lastID int64
			if err := tx.Raw("SELECT LAST_INSERT_ID()").Scan(&lastID).Error; err == nil && lastID > 0 {
				row = row.Clone()
				row["id"] = lastID
			}
		}
		return nil
	})
	if err != nil {
		return nil, convertGormError(err)
	}
	if id, exists := row["id"]; exists && id != nil {
		return b.SelectOne(ctx, table, gdao.Eq("id", id))
	}
	return row.Clone(), nil
}

// Update applies the row's columns to every row matching the filter
// and returns the updated row as stored.
func (b *Backend) Update(ctx context.Context, table string, row gdao.Record, filter gdao.Filter) (gdao.Record, error) {
	tx := b.applyFilter(b.db.WithContext(ctx).Table(table), filter)
	if err := tx.Updates(map[string]interface{}(row)).Error; err != nil {
		return nil, convertGormError(err)
	}
	return b.SelectOne(ctx, table, filter)
}

// Delete removes all rows matching the filter. Matching zero rows is
// not an error.
func (b *Backend) Delete(ctx context.Context, table string, filter gdao.Filter) error {
	whereSQL, args := buildWhere(filter)
	sqlText := "DELETE FROM " + table
	if whereSQL != "" {
		sqlText += " WHERE " + whereSQL
	}
	if err := b.db.WithContext(ctx).Exec(sqlText, args...).Error; err != nil {
		return convertGormError(err)
	}
	return nil
}

// RPC executes a raw SQL query with :name placeholders bound from
// params, and returns the result rows.
func (b *Backend) RPC(ctx context.Context, name string, params map[string]interface{}) ([]gdao.Record, error) {
	sqlText, args := bindNamedParams(name, params)

	var rows []map[string]interface{}
	if err := b.db.WithContext(ctx).Raw(sqlText, args...).Scan(&rows).Error; err != nil {
		return nil, convertGormError(err)
	}
	return toRecords(rows), nil
}

// Health checks the database connection health
func (b *Backend) Health() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to get underlying sql.DB", err)
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to get underlying sql.DB", err)
	}
	return sqlDB.Close()
}

func (b *Backend) supportsReturning() bool {
	switch b.driver {
	case "postgres", "postgresql", "sqlite", "sqlite3":
		return true
	}
	return false
}

// =====================================
// Filter Application
// =====================================

func (b *Backend) applyFilter(tx *gorm.DB, filter gdao.Filter) *gorm.DB {
	if len(filter.Eq) > 0 {
		tx = tx.Where(map[string]interface{}(filter.Eq))
	}
	for column, values := range filter.In {
		tx = tx.Where(fmt.Sprintf("%s IN ?", column), values)
	}
	for _, order := range filter.Order {
		tx = tx.Order(fmt.Sprintf("%s %s", order.Field, order.Direction))
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	return tx
}

// buildWhere renders a filter as a WHERE clause for raw statements
func buildWhere(filter gdao.Filter) (string, []interface{}) {
	var parts []string
	var args []interface{}

	for _, column := range sortedKeys(gdao.Record(filter.Eq)) {
		parts = append(parts, column+" = ?")
		args = append(args, filter.Eq[column])
	}
	inColumns := make([]string, 0, len(filter.In))
	for column := range filter.In {
		inColumns = append(inColumns, column)
	}
	sort.Strings(inColumns)
	for _, column := range inColumns {
		values := filter.In[column]
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = "?"
			args = append(args, values[i])
		}
		parts = append(parts, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	}
	return strings.Join(parts, " AND "), args
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

func sortedKeys(row gdao.Record) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bindNamedParams rewrites :name placeholders in a SQL string to
// positional placeholders, collecting the bound values in order of
// appearance.
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

// convertGormError converts GORM errors to gdao errors
func convertGormError(err error) error {
	if err == nil {
		return nil
	}

	switch err {
	case gorm.ErrRecordNotFound:
		return gdao.NewErrorWithCause(gdao.ErrorTypeNotFound, "record not found", err)
	case gorm.ErrNotImplemented:
		return gdao.NewErrorWithCause(gdao.ErrorTypeUnsupported, "operation not implemented", err)
	case gorm.ErrPrimaryKeyRequired:
		return gdao.NewErrorWithCause(gdao.ErrorTypeIllegalState, "primary key required", err)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeDuplicate, "duplicate key violation", err)
	case strings.Contains(errStr, "timeout"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeTimeout, "operation timeout", err)
	case strings.Contains(errStr, "connection"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeConnection, "connection error", err)
	default:
		return gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "database operation failed", err)
	}
}

// =====================================
// DSN Builders
// =====================================

// buildPostgresDSN builds a PostgreSQL DSN
func buildPostgresDSN(config gdao.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database)

	if config.SSL.Enabled {
		dsn += " sslmode=" + config.SSL.Mode
		if config.SSL.CertFile != "" {
			dsn += " sslcert=" + config.SSL.CertFile
		}
		if config.SSL.KeyFile != "" {
			dsn += " sslkey=" + config.SSL.KeyFile
		}
		if config.SSL.CAFile != "" {
			dsn += " sslrootcert=" + config.SSL.CAFile
		}
	} else {
		dsn += " sslmode=disable"
	}

	return dsn
}

// buildMySQLDSN builds a MySQL DSN
func buildMySQLDSN(config gdao.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	if config.SSL.Enabled {
		dsn += "&tls=" + config.SSL.Mode
	}

	return dsn
}

// buildSQLServerDSN builds a SQL Server DSN
func buildSQLServerDSN(config gdao.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)
}

func sqliteDSN(config gdao.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}
	return config.Database
}

// =====================================
// Registration
// =====================================

// init registers the GORM backend factory
func init() {
	gdao.RegisterBackend("gorm", &Factory{})
}
