// Package gdaoredis provides a Redis adapter for gdao. Rows are
// stored as JSON values at "table:id" keys, with a per-table index
// set of known ids; filters are evaluated client-side.
package gdaoredis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lemmego/gdao"
)

// =====================================
// Factory Implementation
// =====================================

// Factory implements gdao.BackendFactory
type Factory struct{}

// Create creates a new Redis backend instance
func (f *Factory) Create(config gdao.Config) (gdao.Backend, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       0,
	}
	if config.Database != "" {
		if db, err := strconv.Atoi(config.Database); err == nil {
			opts.DB = db
		}
	}
	if config.MaxOpenConns > 0 {
		opts.PoolSize = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		opts.MinIdleConns = config.MaxIdleConns
	}
	if options, ok := config.Options["redis"]; ok {
		if redisOpts, ok := options.(map[string]interface{}); ok {
			if dialTimeout, ok := redisOpts["dial_timeout"].(time.Duration); ok {
				opts.DialTimeout = dialTimeout
			}
			if readTimeout, ok := redisOpts["read_timeout"].(time.Duration); ok {
				opts.ReadTimeout = readTimeout
			}
			if writeTimeout, ok := redisOpts["write_timeout"].(time.Duration); ok {
				opts.WriteTimeout = writeTimeout
			}
		}
	}

	backend := &Backend{client: redis.NewClient(opts), config: config}
	if err := backend.Health(); err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to connect to Redis", err)
	}
	return backend, nil
}

// SupportedDrivers returns the list of supported Redis drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"redis"}
}

// =====================================
// Backend Implementation
// =====================================

// Backend implements gdao.Backend using Redis
type Backend struct {
	client *redis.Client
	config gdao.Config
}

// Client exposes the underlying Redis client
func (b *Backend) Client() *redis.Client {
	return b.client
}

// Info returns information about this backend
func (b *Backend) Info() gdao.BackendInfo {
	return gdao.BackendInfo{
		Name:         "Redis",
		Version:      "1.0.0",
		DatabaseType: gdao.DatabaseTypeKV,
		Features: []gdao.Feature{
			gdao.FeatureTTL,
		},
	}
}

func rowKey(table string, id interface{}) string {
	return fmt.Sprintf("%s:%v", table, id)
}

func indexKey(table string) string {
	return table + ":__index"
}

// Select retrieves all rows matching the filter. The whole table is
// fetched with one SMEMBERS and one MGET, then filtered client-side.
func (b *Backend) Select(ctx context.Context, table string, filter gdao.Filter, projection []string) ([]gdao.Record, error) {
	rows, err := b.loadTable(ctx, table)
	if err != nil {
		return nil, err
	}

	var matched []gdao.Record
	for _, row := range rows {
		if filter.Matches(row) {
			matched = append(matched, row)
		}
	}
	sortRecords(matched, filter.Order)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	if len(projection) > 0 {
		for i, row := range matched {
			matched[i] = project(row, projection)
		}
	}
	return matched, nil
}

// SelectOne retrieves a single row matching the filter. A filter on
// "id" alone is served with one GET.
func (b *Backend) SelectOne(ctx context.Context, table string, filter gdao.Filter) (gdao.Record, error) {
	if id, ok := filter.Eq["id"]; ok && len(filter.Eq) == 1 && len(filter.In) == 0 {
		data, err := b.client.Get(ctx, rowKey(table, id)).Result()
		if err != nil {
			return nil, convertRedisError(err)
		}
		return decodeRow(data)
	}

	rows, err := b.Select(ctx, table, filter.WithLimit(1), nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gdao.NewError(gdao.ErrorTypeNotFound, "record not found")
	}
	return rows[0], nil
}

// Count returns the number of rows matching the filter
func (b *Backend) Count(ctx context.Context, table string, filter gdao.Filter) (int64, error) {
	if filter.IsEmpty() {
		count, err := b.client.SCard(ctx, indexKey(table)).Result()
		return count, convertRedisError(err)
	}
	rows, err := b.Select(ctx, table, filter, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Insert writes one row and returns it as stored. Rows without an id
// are assigned a generated UUID.
func (b *Backend) Insert(ctx context.Context, table string, row gdao.Record) (gdao.Record, error) {
	stored := row.Clone()
	id, ok := stored["id"]
	if !ok || id == nil {
		id = uuid.NewString()
		stored["id"] = id
	}

	key := rowKey(table, id)
	exists, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, convertRedisError(err)
	}
	if exists > 0 {
		return nil, gdao.NewError(gdao.ErrorTypeDuplicate,
			fmt.Sprintf("row already exists: %s", key))
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "failed to encode row", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey(table), fmt.Sprintf("%v", id))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, convertRedisError(err)
	}
	return stored, nil
}

// Update applies the row's columns to every row matching the filter
// and returns the first updated row as stored.
func (b *Backend) Update(ctx context.Context, table string, row gdao.Record, filter gdao.Filter) (gdao.Record, error) {
	matched, err := b.Select(ctx, table, filter, nil)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, gdao.NewError(gdao.ErrorTypeNotFound, "record not found")
	}

	var first gdao.Record
	for _, existing := range matched {
		merged := existing.Clone()
		for column, value := range row {
			merged[column] = value
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "failed to encode row", err)
		}
		if err := b.client.Set(ctx, rowKey(table, merged["id"]), data, 0).Err(); err != nil {
			return nil, convertRedisError(err)
		}
		if first == nil {
			first = merged
		}
	}
	return first, nil
}

// Delete removes all rows matching the filter. Matching zero rows is
// not an error.
func (b *Backend) Delete(ctx context.Context, table string, filter gdao.Filter) error {
	matched, err := b.Select(ctx, table, filter, nil)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return nil
	}

	pipe := b.client.TxPipeline()
	for _, row := range matched {
		pipe.Del(ctx, rowKey(table, row["id"]))
		pipe.SRem(ctx, indexKey(table), fmt.Sprintf("%v", row["id"]))
	}
	_, err = pipe.Exec(ctx)
	return convertRedisError(err)
}

// RPC is not supported by the Redis backend
func (b *Backend) RPC(ctx context.Context, name string, params map[string]interface{}) ([]gdao.Record, error) {
	return nil, gdao.NewError(gdao.ErrorTypeUnsupported, "redis backend does not support RPC")
}

// Health checks the connection to Redis
func (b *Backend) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (b *Backend) Close() error {
	return b.client.Close()
}

// =====================================
// Row Handling
// =====================================

// loadTable fetches every row of a table: one SMEMBERS for the ids,
// one MGET for the values.
func (b *Backend) loadTable(ctx context.Context, table string) ([]gdao.Record, error) {
	ids, err := b.client.SMembers(ctx, indexKey(table)).Result()
	if err != nil {
		return nil, convertRedisError(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rowKey(table, id)
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, convertRedisError(err)
	}

	rows := make([]gdao.Record, 0, len(values))
	for _, value := range values {
		data, ok := value.(string)
		if !ok {
			// Index entry without a value; the row was deleted out of band.
			continue
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(data string) (gdao.Record, error) {
	var row gdao.Record
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "failed to decode row", err)
	}
	return row, nil
}

func project(row gdao.Record, projection []string) gdao.Record {
	out := make(gdao.Record, len(projection))
	for _, column := range projection {
		if value, ok := row[column]; ok {
			out[column] = value
		}
	}
	return out
}

// sortRecords orders rows client-side by the filter's order clauses
func sortRecords(rows []gdao.Record, orders []gdao.Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, order := range orders {
			cmp := compareValues(rows[i][order.Field], rows[j][order.Field])
			if cmp == 0 {
				continue
			}
			if order.Direction == gdao.OrderDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareValues(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// =====================================
// Error Conversion
// =====================================

// convertRedisError converts Redis errors to gdao errors
func convertRedisError(err error) error {
	if err == nil {
		return nil
	}

	if err == redis.Nil {
		return gdao.NewErrorWithCause(gdao.ErrorTypeNotFound, "record not found", err)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeTimeout, "operation timeout", err)
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "refused"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeConnection, "connection error", err)
	default:
		return gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "redis operation failed", err)
	}
}

// =====================================
// Registration
// =====================================

// init registers the Redis backend factory
func init() {
	gdao.RegisterBackend("redis", &Factory{})
}
