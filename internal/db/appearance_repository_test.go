package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/nshusa/battlerune-server/internal/model"
	"github.com/nshusa/battlerune-server/internal/testutil"
)

// AppearanceRepositorySuite работает с одним PostgreSQL контейнером на весь suite.
type AppearanceRepositorySuite struct {
	suite.Suite
	dsn  string
	pool *pgxpool.Pool
	repo *AppearanceRepository
	ctx  context.Context
}

func (s *AppearanceRepositorySuite) SetupSuite() {
	s.dsn = testutil.SetupPostgres(s.T())
	ctx := testutil.ContextWithTimeout(s.T(), time.Minute)

	s.Require().NoError(RunMigrations(ctx, s.dsn))
	pool, err := pgxpool.New(ctx, s.dsn)
	s.Require().NoError(err)
	s.pool = pool
	s.repo = NewAppearanceRepository(pool)
}

func (s *AppearanceRepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SetupTest очищает таблицы для изоляции между тестами.
func (s *AppearanceRepositorySuite) SetupTest() {
	s.ctx = testutil.ContextWithTimeout(s.T(), 30*time.Second)
	_, err := s.pool.Exec(s.ctx, "TRUNCATE player_appearance")
	s.Require().NoError(err)
}

func (s *AppearanceRepositorySuite) TestLoadMissingReturnsDefault() {
	a, ok, err := s.repo.Load(s.ctx, "nobody")
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(model.DefaultAppearance("nobody"), a)
}

func (s *AppearanceRepositorySuite) TestSaveLoad() {
	want := model.DefaultAppearance("zezima")
	want.Gender = model.GenderFemale
	want.Style[model.StyleChest] = 56
	want.CombatLevel = 3
	want.Animations.Run = 1661

	s.Require().NoError(s.repo.Save(s.ctx, want))

	got, ok, err := s.repo.Load(s.ctx, "zezima")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(want, got)
}

func (s *AppearanceRepositorySuite) TestSaveOverwrites() {
	a := model.DefaultAppearance("woox")
	s.Require().NoError(s.repo.Save(s.ctx, a))

	a.CombatLevel = 99
	s.Require().NoError(s.repo.Save(s.ctx, a))

	got, _, err := s.repo.Load(s.ctx, "woox")
	s.Require().NoError(err)
	s.Equal(99, got.CombatLevel)
}

func (s *AppearanceRepositorySuite) TestDelete() {
	s.Require().NoError(s.repo.Save(s.ctx, model.DefaultAppearance("framed")))

	existed, err := s.repo.Delete(s.ctx, "framed")
	s.Require().NoError(err)
	s.True(existed)

	existed, err = s.repo.Delete(s.ctx, "framed")
	s.Require().NoError(err)
	s.False(existed)
}

func (s *AppearanceRepositorySuite) TestNewAndMigrateAreIdempotent() {
	d, err := New(s.ctx, s.dsn)
	s.Require().NoError(err)
	defer d.Close()
	s.NotNil(d.Pool())

	s.NoError(RunMigrations(s.ctx, s.dsn))
}

func TestAppearanceRepositorySuite(t *testing.T) {
	suite.Run(t, new(AppearanceRepositorySuite))
}
