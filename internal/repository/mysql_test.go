package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iliyamo/smartbooking/internal/database"
	"github.com/iliyamo/smartbooking/internal/model"
)

// MySQLSuite runs the repositories against a real MySQL 8. TEST_MYSQL_DSN
// points at an existing server; otherwise a container is started. The
// container runs west of UTC so timestamp handling is exercised.
type MySQLSuite struct {
	suite.Suite
	ctx       context.Context
	db        *sql.DB
	container testcontainers.Container

	users        *UserRepo
	shows        *ShowRepo
	reps         *RepresentationRepo
	reservations *ReservationRepo
	artists      *ArtistRepo
	locations    *LocationRepo
}

func TestMySQLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("mysql integration tests skipped in short mode")
	}
	suite.Run(t, new(MySQLSuite))
}

func (s *MySQLSuite) SetupSuite() {
	s.ctx = context.Background()

	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(s.T())
		dsn = s.startMySQL()
	}

	db, err := sql.Open("mysql", dsn)
	require.NoError(s.T(), err)
	require.Eventually(s.T(), func() bool { return db.PingContext(s.ctx) == nil }, time.Minute, time.Second)
	require.NoError(s.T(), database.Migrate(s.ctx, db))
	s.db = db

	s.users = NewUserRepo(db)
	s.shows = NewShowRepo(db)
	s.reps = NewRepresentationRepo(db)
	s.reservations = NewReservationRepo(db)
	s.artists = NewArtistRepo(db)
	s.locations = NewLocationRepo(db)
}

func (s *MySQLSuite) startMySQL() string {
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "smartbooking",
			"TZ":                  "America/New_York",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(3 * time.Minute),
	}
	c, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err, "failed to start mysql container")
	s.container = c

	host, err := c.Host(s.ctx)
	require.NoError(s.T(), err)
	port, err := c.MappedPort(s.ctx, "3306/tcp")
	require.NoError(s.T(), err)
	return database.DSN("root", "secret", host, port.Port(), "smartbooking")
}

func (s *MySQLSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

// SetupTest empties every table except the seeded roles.
func (s *MySQLSuite) SetupTest() {
	conn, err := s.db.Conn(s.ctx)
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.ExecContext(s.ctx, "SET FOREIGN_KEY_CHECKS = 0")
	s.Require().NoError(err)
	for _, table := range []string{
		"reviews", "reservation_items", "reservations", "prices", "representations", "artist_type_show",
		"shows", "artist_type", "types", "artists", "locations", "localities",
		"password_reset_tokens", "refresh_tokens", "user_roles", "users",
	} {
		_, err := conn.ExecContext(s.ctx, "TRUNCATE TABLE "+table)
		s.Require().NoError(err, table)
	}
	_, err = conn.ExecContext(s.ctx, "SET FOREIGN_KEY_CHECKS = 1")
	s.Require().NoError(err)
}

func (s *MySQLSuite) user(login, email string) model.User {
	u := model.User{Login: login, PasswordHash: "x", Firstname: "Ann", Lastname: "Lee", Email: email,
		Langue: "fr", Roles: []string{model.RoleMember}}
	s.Require().NoError(s.users.Create(s.ctx, &u))
	return u
}

func (s *MySQLSuite) show(slug string, status string) model.Show {
	sh := model.Show{Slug: slug, Title: slug, Bookable: true, Status: status}
	s.Require().NoError(s.shows.Create(s.ctx, &sh))
	return sh
}

func (s *MySQLSuite) representation(showID uint64, when time.Time, capacity uint32) model.Representation {
	rep := model.Representation{ShowID: showID, When: when, Capacity: capacity,
		Prices: []model.Price{{Type: model.PriceStandard, AmountCents: 1000}}}
	s.Require().NoError(s.reps.Create(s.ctx, &rep))
	s.Require().Len(rep.Prices, 1)
	return rep
}

func items(rep model.Representation, places uint32) []NewItem {
	return []NewItem{{RepresentationID: rep.ID, PriceID: rep.Prices[0].ID, Quantity: places, UnitPriceCents: rep.Prices[0].AmountCents}}
}

func (s *MySQLSuite) TestDuplicateUserKeys() {
	s.user("emailqueen", "queen@example.com")

	dup := model.User{Login: "emailqueen", PasswordHash: "x", Firstname: "B", Lastname: "B", Email: "other@example.com", Langue: "fr"}
	s.ErrorIs(s.users.Create(s.ctx, &dup), ErrLoginExists)

	dup = model.User{Login: "someone", PasswordHash: "x", Firstname: "B", Lastname: "B", Email: "Queen@Example.com", Langue: "fr"}
	s.ErrorIs(s.users.Create(s.ctx, &dup), ErrEmailExists)
}

func (s *MySQLSuite) TestCreatePending_Capacity() {
	u := s.user("bob", "bob@example.com")
	sh := s.show("hamlet", model.ShowConfirmed)
	limited := s.representation(sh.ID, time.Now().UTC().Add(48*time.Hour), 5)
	open := s.representation(sh.ID, time.Now().UTC().Add(72*time.Hour), 0)

	first, err := s.reservations.CreatePending(s.ctx, u.ID, items(limited, 3))
	s.Require().NoError(err)
	s.Equal(model.ReservationPending, first.Status)
	s.EqualValues(3000, first.TotalAmountCents)
	s.Require().Len(first.Items, 1)

	_, err = s.reservations.CreatePending(s.ctx, u.ID, items(limited, 3))
	s.ErrorIs(err, ErrSoldOut)

	_, err = s.reservations.CreatePending(s.ctx, u.ID, items(limited, 2))
	s.NoError(err, "exactly the remaining places")

	changed, err := s.reservations.Transition(s.ctx, first.ID, []string{model.ReservationPending}, model.ReservationCancelled, "")
	s.Require().NoError(err)
	s.True(changed)
	_, err = s.reservations.CreatePending(s.ctx, u.ID, items(limited, 3))
	s.NoError(err, "cancelled places are released")

	_, err = s.reservations.CreatePending(s.ctx, u.ID, items(open, 500))
	s.NoError(err, "zero capacity is unlimited")
}

func (s *MySQLSuite) TestTransition_Idempotent() {
	u := s.user("bob", "bob@example.com")
	sh := s.show("hamlet", model.ShowConfirmed)
	rep := s.representation(sh.ID, time.Now().UTC().Add(48*time.Hour), 0)
	res, err := s.reservations.CreatePending(s.ctx, u.ID, items(rep, 1))
	s.Require().NoError(err)

	pending := []string{model.ReservationPending}
	changed, err := s.reservations.Transition(s.ctx, res.ID, pending, model.ReservationConfirmed, "cs_1")
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.reservations.Transition(s.ctx, res.ID, pending, model.ReservationConfirmed, "cs_1")
	s.Require().NoError(err)
	s.False(changed, "redelivery changes nothing")

	changed, err = s.reservations.Transition(s.ctx, res.ID, pending, model.ReservationCancelled, "")
	s.Require().NoError(err)
	s.False(changed, "a late expiry cannot cancel a paid reservation")

	got, err := s.reservations.GetByID(s.ctx, res.ID)
	s.Require().NoError(err)
	s.Equal(model.ReservationConfirmed, got.Status)
	s.Require().NotNil(got.PaymentRef)
	s.Equal("cs_1", *got.PaymentRef)
}

func (s *MySQLSuite) TestStalePending_UsesUTC() {
	u := s.user("bob", "bob@example.com")
	sh := s.show("hamlet", model.ShowConfirmed)
	rep := s.representation(sh.ID, time.Now().UTC().Add(48*time.Hour), 0)
	res, err := s.reservations.CreatePending(s.ctx, u.ID, items(rep, 1))
	s.Require().NoError(err)

	now := time.Now().UTC()
	s.WithinDuration(now, res.ReservationDate, 2*time.Minute)

	ids, err := s.reservations.StalePending(s.ctx, now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Empty(ids, "a fresh reservation is not stale")

	ids, err = s.reservations.StalePending(s.ctx, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal([]uint64{res.ID}, ids)
}

func (s *MySQLSuite) TestUpdateRepresentation_CapacityFloor() {
	u := s.user("bob", "bob@example.com")
	sh := s.show("hamlet", model.ShowConfirmed)
	rep := s.representation(sh.ID, time.Now().UTC().Add(48*time.Hour), 10)
	_, err := s.reservations.CreatePending(s.ctx, u.ID, items(rep, 4))
	s.Require().NoError(err)

	upd := rep
	upd.Capacity = 3
	s.ErrorIs(s.reps.Update(s.ctx, &upd), ErrConflict)

	upd = rep
	upd.Capacity = 4
	s.Require().NoError(s.reps.Update(s.ctx, &upd))
	s.EqualValues(4, upd.ReservedPlaces)

	upd.Capacity = 0
	s.NoError(s.reps.Update(s.ctx, &upd), "removing the limit is always allowed")

	s.ErrorIs(s.reps.Delete(s.ctx, rep.ID), ErrConflict)
}

func (s *MySQLSuite) TestSearch_DateBounds() {
	confirmed := s.show("ayiti", model.ShowConfirmed)
	pending := s.show("draft", model.ShowPending)
	june1 := time.Date(2031, 6, 1, 20, 0, 0, 0, time.UTC)
	june10 := time.Date(2031, 6, 10, 20, 0, 0, 0, time.UTC)
	s.representation(confirmed.ID, june1, 0)
	s.representation(confirmed.ID, june10, 0)
	s.representation(pending.ID, june1, 0)

	at := func(t time.Time) *time.Time { return &t }
	titles := func(q ShowSearchQuery) []string {
		list, err := s.shows.Search(s.ctx, q)
		s.Require().NoError(err)
		out := []string{}
		for _, sh := range list {
			out = append(out, sh.Title)
		}
		return out
	}

	s.Equal([]string{"ayiti"}, titles(ShowSearchQuery{}))
	s.Equal([]string{"ayiti"}, titles(ShowSearchQuery{Start: at(june1)}), "start is inclusive")
	s.Empty(titles(ShowSearchQuery{Start: at(june1.Add(time.Minute)), End: at(june10)}), "end is exclusive")
	s.Equal([]string{"ayiti"}, titles(ShowSearchQuery{Start: at(june1.Add(time.Minute)), End: at(june10.Add(time.Minute))}))
	s.Empty(titles(ShowSearchQuery{Title: "dra"}), "pending shows never match")
	s.Equal([]string{"ayiti"}, titles(ShowSearchQuery{Title: "AYI"}))
}

func (s *MySQLSuite) TestArtistDelete_InUse() {
	credited := model.Artist{Firstname: "Ann", Lastname: "Lee"}
	s.Require().NoError(s.artists.Create(s.ctx, &credited))
	free := model.Artist{Firstname: "Bo", Lastname: "Ma"}
	s.Require().NoError(s.artists.Create(s.ctx, &free))

	at, err := s.artists.CreateArtistType(s.ctx, credited.ID, "singer")
	s.Require().NoError(err)
	sh := model.Show{Slug: "gala", Title: "Gala", ArtistTypeIDs: []uint64{at.ID}}
	s.Require().NoError(s.shows.Create(s.ctx, &sh))

	s.ErrorIs(s.artists.Delete(s.ctx, credited.ID), ErrConflict)
	s.NoError(s.artists.Delete(s.ctx, free.ID))
	s.ErrorIs(s.artists.Delete(s.ctx, free.ID), ErrNotFound)
}

func (s *MySQLSuite) TestListLocalities() {
	for _, l := range []model.Location{
		{Slug: "royal", Designation: "Royal", Address: "Rue 1", PostalCode: "4000", LocalityName: "Liège"},
		{Slug: "parc", Designation: "Parc", Address: "Rue 2", PostalCode: "1000", LocalityName: "Bruxelles"},
		{Slug: "bozar", Designation: "Bozar", Address: "Rue 3", PostalCode: "1000", LocalityName: "Bruxelles"},
	} {
		s.Require().NoError(s.locations.Create(s.ctx, &l))
	}

	list, err := s.locations.ListLocalities(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2, "localities are shared")
	s.Equal("1000", list[0].PostalCode)
	s.Equal("Liège", list[1].Locality)
}
