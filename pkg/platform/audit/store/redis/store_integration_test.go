//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
	redisstore "audittrail/pkg/platform/audit/store/redis"
	"audittrail/pkg/platform/sentinel"
	"audittrail/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *redisstore.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = redisstore.New(s.redis.Client, redisstore.WithMaxLen(100))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) record(name string) audit.Record {
	root := scope.New(name)
	root.LogEvent("start")
	record, err := audit.NewRecord(context.Background(), root)
	s.Require().NoError(err)
	return record
}

func (s *RedisStoreSuite) TestAppendAndGet() {
	ctx := context.Background()
	record := s.record("create_user")

	s.Require().NoError(s.store.Append(ctx, record))

	got, err := s.store.Get(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.Name, got.Name)
	s.NoError(got.Verify())
}

func (s *RedisStoreSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestListRecentNewestFirst() {
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Append(ctx, s.record(name)))
	}

	got, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("c", got[0].Name)
	s.Equal("b", got[1].Name)
}

func (s *RedisStoreSuite) TestAppendWritesStreamEntry() {
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Append(ctx, s.record(name)))
	}

	n, err := s.redis.StreamLen(ctx, redisstore.DefaultStream)
	s.Require().NoError(err)
	s.Equal(int64(3), n)
}
