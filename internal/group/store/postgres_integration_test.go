//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"splitgroups/internal/group/models"
	"splitgroups/internal/group/store"
	"splitgroups/pkg/platform/sentinel"
	"splitgroups/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "groups"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	desc := "weekend"
	now := time.Now().UTC().Truncate(time.Microsecond)
	g, err := models.NewGroup("g1", "Trip", &desc, "u1", "https://img", now)
	s.Require().NoError(err)
	g.AddMember("u2", now)

	s.Require().NoError(s.store.Save(ctx, g))

	found, err := s.store.FindByID(ctx, "g1")
	s.Require().NoError(err)
	s.Equal("Trip", found.Name)
	s.Require().NotNil(found.Description)
	s.Equal("weekend", *found.Description)
	s.Equal([]string{"u1", "u2"}, found.Members)
	s.True(now.Equal(found.CreatedAt))

	byMember, err := s.store.FindByMember(ctx, "u2")
	s.Require().NoError(err)
	s.Require().Len(byMember, 1)
	s.Equal("g1", byMember[0].ID)

	_, err = s.store.FindByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSaveUpdatesAndDelete() {
	ctx := context.Background()
	now := time.Now().UTC()
	g, err := models.NewGroup("g1", "Trip", nil, "u1", "", now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(ctx, g))

	name := "Renamed"
	_, err = g.ApplyDetails(&name, nil, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(ctx, g))

	found, err := s.store.FindByID(ctx, "g1")
	s.Require().NoError(err)
	s.Equal("Renamed", found.Name)
	s.Nil(found.Description)

	ids, err := s.store.ListIDs(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"g1"}, ids)

	s.Require().NoError(s.store.Delete(ctx, "g1"))
	s.ErrorIs(s.store.Delete(ctx, "g1"), sentinel.ErrNotFound)
}
