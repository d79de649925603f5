//go:build integration
// +build integration

package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"
)

type PostgresTestSuite struct {
	suite.Suite
}

func (suite *PostgresTestSuite) SetupSuite() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err, "Failed to get postgres conn")

	m, err := pg.NewMigrate()
	suite.Require().NoError(err, "Failed to create migrate instance")

	ver, dirty, _ := m.Version()
	if dirty {
		suite.Require().NoError(m.Force(int(ver)))
	}
	if ver > 0 {
		suite.Require().NoError(m.Down(), "Failed to migrate down cleanly")
	}

	suite.Require().NoError(pg.Migrate(), "Failed to fully migrate")
}

func (suite *PostgresTestSuite) SetupTest() {
	suite.CleanDB()
}

func (suite *PostgresTestSuite) CleanDB() {
	tables := []string{"billable_external_identities", "billable_users"}

	pg, err := NewPostgres("", false)
	suite.Require().NoError(err, "Failed to get postgres conn")

	for _, table := range tables {
		_, err = pg.RawDB().Exec("delete from " + table)
		suite.Require().NoError(err, "Failed to get clean table")
	}
}

func (suite *PostgresTestSuite) TestUpsertIdentityCreatesUserAndIdentity() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	resolved, err := pg.UpsertIdentity(context.Background(), "telegram", "12345", nil)
	suite.Require().NoError(err)

	suite.Assert().True(resolved.CreatedIdentity)
	suite.Assert().True(resolved.CreatedUser)
	suite.Assert().Equal("billable_telegram_12345", resolved.User.Username)
	suite.Require().NotNil(resolved.Identity.UserID)
	suite.Assert().Equal(resolved.User.ID, *resolved.Identity.UserID)
}

func (suite *PostgresTestSuite) TestUpsertIdentityIsStable() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	first, err := pg.UpsertIdentity(context.Background(), "telegram", "12345", nil)
	suite.Require().NoError(err)

	second, err := pg.UpsertIdentity(context.Background(), "telegram", "12345", nil)
	suite.Require().NoError(err)

	suite.Assert().False(second.CreatedIdentity)
	suite.Assert().False(second.CreatedUser)
	suite.Assert().Equal(first.User.ID, second.User.ID)
	suite.Assert().Equal(first.Identity.ID, second.Identity.ID)
}

func (suite *PostgresTestSuite) TestUpsertIdentityDistinctPairsGetDistinctUsers() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	telegram, err := pg.UpsertIdentity(context.Background(), "telegram", "12345", nil)
	suite.Require().NoError(err)

	// the same external id under another provider is a different person
	web, err := pg.UpsertIdentity(context.Background(), "web", "12345", nil)
	suite.Require().NoError(err)

	suite.Assert().NotEqual(telegram.User.ID, web.User.ID)
}

func (suite *PostgresTestSuite) TestUpsertIdentityMergesProfileMetadata() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	_, err = pg.UpsertIdentity(context.Background(), "telegram", "12345",
		datastore.Metadata{"username": "alice", "lang": "en"})
	suite.Require().NoError(err)

	resolved, err := pg.UpsertIdentity(context.Background(), "telegram", "12345",
		datastore.Metadata{"lang": "de"})
	suite.Require().NoError(err)

	suite.Assert().Equal("alice", resolved.Identity.Metadata["username"])
	suite.Assert().Equal("de", resolved.Identity.Metadata["lang"])
}

func (suite *PostgresTestSuite) TestGetIdentity() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	_, err = pg.GetIdentity(context.Background(), "telegram", "nobody")
	suite.Assert().Equal(model.ErrIdentityNotFound, err)

	resolved, err := pg.UpsertIdentity(context.Background(), "telegram", "12345", nil)
	suite.Require().NoError(err)

	identity, err := pg.GetIdentity(context.Background(), "telegram", "12345")
	suite.Require().NoError(err)
	suite.Assert().Equal(resolved.Identity.ID, identity.ID)
}

func (suite *PostgresTestSuite) TestGetUser() {
	pg, err := NewPostgres("", false)
	suite.Require().NoError(err)

	resolved, err := pg.UpsertIdentity(context.Background(), "telegram", "12345", nil)
	suite.Require().NoError(err)

	user, err := pg.GetUser(context.Background(), resolved.User.ID)
	suite.Require().NoError(err)
	suite.Assert().Equal(resolved.User.Username, user.Username)
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
