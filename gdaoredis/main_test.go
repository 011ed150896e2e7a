package gdaoredis

import (
	"context"
	"testing"

	"github.com/lemmego/gdao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RedisAdapterTestSuite struct {
	suite.Suite
	backend *Backend
	ctx     context.Context
}

func (suite *RedisAdapterTestSuite) SetupSuite() {
	config := gdao.Config{
		Driver:   "redis",
		Host:     "localhost",
		Port:     6379,
		Database: "15",
	}

	backend, err := (&Factory{}).Create(config)
	if err != nil {
		suite.T().Skipf("Redis not available: %v", err)
	}

	suite.backend = backend.(*Backend)
	suite.ctx = context.Background()
}

func (suite *RedisAdapterTestSuite) TearDownSuite() {
	if suite.backend != nil {
		suite.backend.Close()
	}
}

func (suite *RedisAdapterTestSuite) SetupTest() {
	// An empty filter matches every row.
	require.NoError(suite.T(), suite.backend.Delete(suite.ctx, "test_sessions", gdao.NewFilter()))
}

func (suite *RedisAdapterTestSuite) insertSession(id interface{}, user string, ttl int) gdao.Record {
	row := gdao.Record{"user": user, "ttl": ttl}
	if id != nil {
		row["id"] = id
	}
	stored, err := suite.backend.Insert(suite.ctx, "test_sessions", row)
	require.NoError(suite.T(), err)
	return stored
}

func (suite *RedisAdapterTestSuite) TestFactory() {
	drivers := (&Factory{}).SupportedDrivers()
	assert.Equal(suite.T(), []string{"redis"}, drivers)
}

func (suite *RedisAdapterTestSuite) TestBackendInfo() {
	info := suite.backend.Info()
	assert.Equal(suite.T(), "Redis", info.Name)
	assert.Equal(suite.T(), gdao.DatabaseTypeKV, info.DatabaseType)
}

func (suite *RedisAdapterTestSuite) TestInsertAssignsID() {
	stored := suite.insertSession(nil, "alice", 300)

	// Rows without an id get a generated UUID.
	assert.NotNil(suite.T(), stored["id"])
	assert.NotEmpty(suite.T(), stored["id"].(string))
}

func (suite *RedisAdapterTestSuite) TestInsertDuplicate() {
	suite.insertSession("s1", "alice", 300)

	_, err := suite.backend.Insert(suite.ctx, "test_sessions",
		gdao.Record{"id": "s1", "user": "bob"})
	assert.Error(suite.T(), err)
	assert.True(suite.T(), gdao.IsDuplicate(err))
}

func (suite *RedisAdapterTestSuite) TestSelectOneByID() {
	suite.insertSession("s1", "alice", 300)

	row, err := suite.backend.SelectOne(suite.ctx, "test_sessions", gdao.Eq("id", "s1"))
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), "alice", row["user"])
}

func (suite *RedisAdapterTestSuite) TestSelectOneNotFound() {
	_, err := suite.backend.SelectOne(suite.ctx, "test_sessions", gdao.Eq("id", "missing"))
	assert.Error(suite.T(), err)
	assert.True(suite.T(), gdao.IsNotFound(err))

	_, err = suite.backend.SelectOne(suite.ctx, "test_sessions", gdao.Eq("user", "nobody"))
	assert.Error(suite.T(), err)
	assert.True(suite.T(), gdao.IsNotFound(err))
}

func (suite *RedisAdapterTestSuite) TestSelectFiltersClientSide() {
	suite.insertSession("s1", "alice", 300)
	suite.insertSession("s2", "bob", 600)
	suite.insertSession("s3", "alice", 900)

	rows, err := suite.backend.Select(suite.ctx, "test_sessions", gdao.Eq("user", "alice"), nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), rows, 2)

	rows, err = suite.backend.Select(suite.ctx, "test_sessions",
		gdao.In("id", []interface{}{"s1", "s2"}), nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), rows, 2)
}

func (suite *RedisAdapterTestSuite) TestSelectOrderAndLimit() {
	suite.insertSession("s1", "alice", 300)
	suite.insertSession("s2", "bob", 600)
	suite.insertSession("s3", "carol", 900)

	filter := gdao.NewFilter().
		OrderBy(gdao.Order{Field: "ttl", Direction: gdao.OrderDesc}).
		WithLimit(2)
	rows, err := suite.backend.Select(suite.ctx, "test_sessions", filter, nil)
	assert.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 2)
	assert.EqualValues(suite.T(), "carol", rows[0]["user"])
	assert.EqualValues(suite.T(), "bob", rows[1]["user"])
}

func (suite *RedisAdapterTestSuite) TestSelectProjection() {
	suite.insertSession("s1", "alice", 300)

	rows, err := suite.backend.Select(suite.ctx, "test_sessions", gdao.NewFilter(), []string{"user"})
	assert.NoError(suite.T(), err)
	require.Len(suite.T(), rows, 1)
	assert.EqualValues(suite.T(), "alice", rows[0]["user"])
	assert.NotContains(suite.T(), rows[0], "ttl")
}

func (suite *RedisAdapterTestSuite) TestCount() {
	suite.insertSession("s1", "alice", 300)
	suite.insertSession("s2", "bob", 600)

	// Empty filter takes the SCARD fast path.
	count, err := suite.backend.Count(suite.ctx, "test_sessions", gdao.NewFilter())
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, count)

	count, err = suite.backend.Count(suite.ctx, "test_sessions", gdao.Eq("user", "alice"))
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 1, count)
}

func (suite *RedisAdapterTestSuite) TestUpdate() {
	suite.insertSession("s1", "alice", 300)

	updated, err := suite.backend.Update(suite.ctx, "test_sessions",
		gdao.Record{"ttl": 900}, gdao.Eq("id", "s1"))
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 900, updated["ttl"])
	assert.EqualValues(suite.T(), "alice", updated["user"])
}

func (suite *RedisAdapterTestSuite) TestUpdateNoMatch() {
	_, err := suite.backend.Update(suite.ctx, "test_sessions",
		gdao.Record{"ttl": 900}, gdao.Eq("id", "missing"))
	assert.Error(suite.T(), err)
	assert.True(suite.T(), gdao.IsNotFound(err))
}

func (suite *RedisAdapterTestSuite) TestDelete() {
	suite.insertSession("s1", "alice", 300)

	err := suite.backend.Delete(suite.ctx, "test_sessions", gdao.Eq("id", "s1"))
	assert.NoError(suite.T(), err)

	count, _ := suite.backend.Count(suite.ctx, "test_sessions", gdao.NewFilter())
	assert.EqualValues(suite.T(), 0, count)

	// Matching zero rows is not an error.
	err = suite.backend.Delete(suite.ctx, "test_sessions", gdao.Eq("id", "s1"))
	assert.NoError(suite.T(), err)
}

func (suite *RedisAdapterTestSuite) TestRPCUnsupported() {
	_, err := suite.backend.RPC(suite.ctx, "anything", nil)
	assert.Error(suite.T(), err)
	assert.True(suite.T(), gdao.IsUnsupported(err))
}

func TestRedisAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(RedisAdapterTestSuite))
}

// =====================================
// Row Handling
// =====================================

func TestProject(t *testing.T) {
	row := gdao.Record{"id": "s1", "user": "alice", "ttl": 300}
	out := project(row, []string{"user", "missing"})
	assert.Equal(t, gdao.Record{"user": "alice"}, out)
}

func TestSortRecords(t *testing.T) {
	rows := []gdao.Record{
		{"id": "b", "rank": float64(2)},
		{"id": "a", "rank": float64(1)},
		{"id": "c", "rank": float64(3)},
	}
	sortRecords(rows, []gdao.Order{{Field: "rank", Direction: gdao.OrderAsc}})
	assert.EqualValues(t, "a", rows[0]["id"])
	assert.EqualValues(t, "c", rows[2]["id"])

	sortRecords(rows, []gdao.Order{{Field: "id", Direction: gdao.OrderDesc}})
	assert.EqualValues(t, "c", rows[0]["id"])
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, compareValues(1, 2))
	assert.Equal(t, 1, compareValues(float64(3), int64(2)))
	assert.Equal(t, 0, compareValues(int64(2), float64(2)))
	assert.Equal(t, -1, compareValues(nil, "x"))
	assert.Equal(t, -1, compareValues("a", "b"))
}
