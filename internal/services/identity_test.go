package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/stretchr/testify/suite"
)

type IdentitySuite struct {
	suite.Suite
	ctx context.Context
	w   *world
	c   *client
}

func TestIdentitySuite(t *testing.T) {
	suite.Run(t, new(IdentitySuite))
}

func (s *IdentitySuite) SetupTest() {
	s.ctx = context.Background()
	s.w = newWorld(s.T())
	s.c = s.w.newClient(s.T())
}

func (s *IdentitySuite) register(username, email string) *models.User {
	u, err := s.c.identity.Register(s.ctx, RegisterRequest{Username: username, Email: email, Password: []byte("Password1!")})
	s.Require().NoError(err)
	return u
}

func (s *IdentitySuite) count(store string, q *storage.IndexQuery) int {
	n, err := s.w.engine.Count(s.ctx, store, q)
	s.Require().NoError(err)
	return n
}

func (s *IdentitySuite) TestRegister_SeedsDefaultCategories() {
	u := s.register("  alice ", "alice@example.com")

	s.Equal("alice", u.Username)
	s.Equal(models.RolePersonal, u.Role)
	s.Contains(u.Permissions, "export:basic")
	s.True(u.State.IsFirstLogin)
	s.Equal(60, u.Security.SessionTimeout)

	rows, err := s.w.engine.QueryByIndex(s.ctx, storage.StoreCategories, "userId", u.ID)
	s.Require().NoError(err)
	cats, err := storage.DecodeAll[models.Category](rows)
	s.Require().NoError(err)
	s.Len(cats, 16)

	byName := map[string]models.Category{}
	for _, c := range cats {
		byName[c.Name] = c
	}
	salary := byName["Salary"]
	s.Equal(models.CategoryIncome, salary.Type)
	s.False(salary.Budget.AllowBudgeting)
	s.Equal("/salary", salary.Path)
	s.Equal("Default salary category", salary.Description)
	s.True(salary.IsSystem)

	other := byName["Other Expenses"]
	s.Equal(models.CategoryExpense, other.Type)
	s.True(other.Budget.AllowBudgeting)
	s.Equal("/other-expenses", other.Path)
	s.Equal(10, other.SortOrder)
	s.Equal(80, other.Budget.AlertThreshold)
	s.Nil(other.ParentID)
}

func (s *IdentitySuite) TestRegister_StoresHashNotPassword() {
	u := s.register("alice", "")

	var rec models.UserRecord
	found, err := s.w.engine.Get(s.ctx, storage.StoreUsers, u.ID, &rec)
	s.Require().NoError(err)
	s.Require().True(found)
	s.NotEmpty(rec.PasswordSalt)
	s.Contains(rec.PasswordHash, "$argon2id$")
	s.NotContains(rec.PasswordHash, "Password1!")
	s.Nil(rec.Email)
}

func (s *IdentitySuite) TestRegister_Conflicts() {
	s.register("alice", "a@example.com")

	_, err := s.c.identity.Register(s.ctx, RegisterRequest{Username: "alice", Password: []byte("x")})
	s.ErrorIs(err, common.ErrConflict)

	_, err = s.c.identity.Register(s.ctx, RegisterRequest{Username: "bob", Email: "a@example.com", Password: []byte("x")})
	s.ErrorIs(err, common.ErrConflict)

	// Users without an email never collide.
	s.register("carol", "")
	s.register("dave", "")

	s.Equal(3, s.count(storage.StoreUsers, nil))
	s.Equal(48, s.count(storage.StoreCategories, nil))
}

func (s *IdentitySuite) TestRegister_Validation() {
	cases := []RegisterRequest{
		{Username: "", Password: []byte("x")},
		{Username: "   ", Password: []byte("x")},
		{Username: "alice"},
		{Username: "alice", Password: []byte("x"), Role: "root"},
	}
	for _, req := range cases {
		_, err := s.c.identity.Register(s.ctx, req)
		s.ErrorIs(err, common.ErrValidation, "%+v", req)
	}
	s.Zero(s.count(storage.StoreUsers, nil))
}

func (s *IdentitySuite) TestRegister_AdminPermissions() {
	_, err := s.c.identity.Register(s.ctx, RegisterRequest{Username: "root", Password: []byte("pw"), Role: models.RoleAdmin})
	s.Require().NoError(err)
	_, err = s.c.identity.Login(s.ctx, "root", []byte("pw"))
	s.Require().NoError(err)

	s.True(s.c.identity.HasPermission("transactions:read"))
	s.True(s.c.identity.HasPermission("budgets:delete"))
	s.False(s.c.identity.HasPermission("budgets:export"))
}

func (s *IdentitySuite) TestLogin_StartsSession() {
	s.register("alice", "")

	res, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)
	s.NotEmpty(res.Session.Token)
	s.Equal(s.w.clock.Now().Add(60*time.Minute), res.Session.ExpiresAt)
	s.Require().NotNil(res.User.LastLoginAt)
	s.True(s.c.identity.IsAuthenticated())

	var cached models.Session
	found, err := s.c.cache.Load(s.ctx, CacheKeySession, &cached)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(res.Session.Token, cached.Token)

	prefs, err := s.c.identity.CachedPreferences(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(prefs)
	s.Equal("IDR", prefs.Currency)
}

func (s *IdentitySuite) TestLogin_FailuresLookTheSame() {
	s.register("alice", "")

	_, wrongPassword := s.c.identity.Login(s.ctx, "alice", []byte("nope"))
	_, unknownUser := s.c.identity.Login(s.ctx, "mallory", []byte("Password1!"))

	s.ErrorIs(wrongPassword, common.ErrAuthentication)
	s.ErrorIs(unknownUser, common.ErrAuthentication)
	s.Equal(wrongPassword.Error(), unknownUser.Error())
	s.Equal("invalid username or password", wrongPassword.Error())
	s.False(s.c.identity.IsAuthenticated())
}

func (s *IdentitySuite) TestSessionExpires() {
	s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	s.w.clock.Advance(59 * time.Minute)
	s.True(s.c.identity.IsAuthenticated())

	s.w.clock.Advance(time.Minute)
	s.False(s.c.identity.IsAuthenticated())

	_, err = s.c.transactions.GetTransactions(s.ctx, TransactionFilter{})
	s.ErrorIs(err, common.ErrSessionExpired)
	_, err = s.c.identity.UpdateProfile(s.ctx, ProfileUpdate{FirstName: ptr("A")})
	s.ErrorIs(err, common.ErrSessionExpired)
}

func (s *IdentitySuite) TestRefreshSession() {
	_, err := s.c.identity.RefreshSession(s.ctx)
	s.ErrorIs(err, common.ErrSessionExpired)

	s.register("alice", "")
	res, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	s.w.clock.Advance(30 * time.Minute)
	info, err := s.c.identity.RefreshSession(s.ctx)
	s.Require().NoError(err)
	s.True(info.ExpiresAt.After(res.Session.ExpiresAt))
	s.NotEqual(res.Session.Token, info.Token)

	s.w.clock.Advance(45 * time.Minute)
	s.True(s.c.identity.IsAuthenticated())
}

func (s *IdentitySuite) TestLogout_ClearsCache() {
	s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)
	s.Require().NoError(s.c.identity.SaveAppState(s.ctx, map[string]string{"view": "list"}))

	s.c.identity.Logout(s.ctx)

	s.False(s.c.identity.IsAuthenticated())
	_, ok := s.c.identity.CurrentUser()
	s.False(ok)
	all, err := s.c.repo.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)

	// A second logout is harmless.
	s.c.identity.Logout(s.ctx)
}

func (s *IdentitySuite) TestAppState_RoundTrip() {
	type state struct{ View string }
	s.Require().NoError(s.c.identity.SaveAppState(s.ctx, state{View: "budgets"}))

	var got state
	found, err := s.c.identity.LoadAppState(s.ctx, &got)
	s.Require().NoError(err)
	s.True(found)
	s.Equal("budgets", got.View)
}

func (s *IdentitySuite) TestLoadSession_Restores() {
	s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	restarted := s.w.clientWithCache(s.c.repo)
	s.Require().NoError(restarted.identity.LoadSession(s.ctx))

	s.True(restarted.identity.IsAuthenticated())
	u, ok := restarted.identity.CurrentUser()
	s.Require().True(ok)
	s.Equal("alice", u.Username)
}

func (s *IdentitySuite) TestLoadSession_NothingCached() {
	s.Require().NoError(s.c.identity.LoadSession(s.ctx))
	s.False(s.c.identity.IsAuthenticated())
}

func (s *IdentitySuite) TestLoadSession_Expired() {
	s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	s.w.clock.Advance(2 * time.Hour)
	restarted := s.w.clientWithCache(s.c.repo)
	s.Require().NoError(restarted.identity.LoadSession(s.ctx))

	s.False(restarted.identity.IsAuthenticated())
	v, err := s.c.repo.Get(s.ctx, CacheKeySession)
	s.Require().NoError(err)
	s.Nil(v)
}

func (s *IdentitySuite) TestLoadSession_Corrupt() {
	s.Require().NoError(s.c.repo.Set(s.ctx, CacheKeySession, []byte("garbage")))

	s.Require().NoError(s.c.identity.LoadSession(s.ctx))

	s.False(s.c.identity.IsAuthenticated())
	v, err := s.c.repo.Get(s.ctx, CacheKeySession)
	s.Require().NoError(err)
	s.Nil(v)
}

func (s *IdentitySuite) TestLoadSession_ForgedToken() {
	u := s.register("alice", "")
	forged := models.Session{
		UserID:    u.ID,
		Token:     "not-a-jwt",
		ExpiresAt: s.w.clock.Now().Add(time.Hour),
	}
	s.Require().NoError(s.c.cache.Save(s.ctx, CacheKeySession, forged))

	s.Require().NoError(s.c.identity.LoadSession(s.ctx))
	s.False(s.c.identity.IsAuthenticated())
}

func (s *IdentitySuite) TestLoadSession_UserGone() {
	u := s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)
	s.Require().NoError(s.w.engine.Delete(s.ctx, storage.StoreUsers, u.ID))

	restarted := s.w.clientWithCache(s.c.repo)
	s.Require().NoError(restarted.identity.LoadSession(s.ctx))
	s.False(restarted.identity.IsAuthenticated())
}

func (s *IdentitySuite) TestUpdateProfile() {
	s.register("bob", "bob@example.com")
	s.register("alice", "alice@example.com")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	_, err = s.c.identity.UpdateProfile(s.ctx, ProfileUpdate{Email: ptr("bob@example.com")})
	s.ErrorIs(err, common.ErrConflict)

	prefs := models.DefaultPreferences()
	prefs.Currency = "USD"
	u, err := s.c.identity.UpdateProfile(s.ctx, ProfileUpdate{
		FirstName:   ptr(" Alice "),
		Email:       ptr("alice@example.com"),
		Preferences: &prefs,
	})
	s.Require().NoError(err)
	s.Equal("Alice", u.FirstName)
	s.Equal("USD", u.Preferences.Currency)

	current, ok := s.c.identity.CurrentUser()
	s.Require().True(ok)
	s.Equal("Alice", current.FirstName)

	cached, err := s.c.identity.CachedPreferences(s.ctx)
	s.Require().NoError(err)
	s.Equal("USD", cached.Currency)

	u, err = s.c.identity.UpdateProfile(s.ctx, ProfileUpdate{Email: ptr("")})
	s.Require().NoError(err)
	s.Nil(u.Email)
}

func (s *IdentitySuite) TestCurrentUser_ReturnsCopy() {
	s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	u, _ := s.c.identity.CurrentUser()
	u.Username = "mallory"
	u.Permissions[0] = "all:write"

	again, _ := s.c.identity.CurrentUser()
	s.Equal("alice", again.Username)
	s.NotEqual("all:write", again.Permissions[0])
}

func (s *IdentitySuite) TestChangePassword() {
	s.register("alice", "")
	_, err := s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.Require().NoError(err)

	s.ErrorIs(s.c.identity.ChangePassword(s.ctx, []byte("wrong"), []byte("New1!")), common.ErrAuthentication)
	s.ErrorIs(s.c.identity.ChangePassword(s.ctx, []byte("Password1!"), nil), common.ErrValidation)
	s.Require().NoError(s.c.identity.ChangePassword(s.ctx, []byte("Password1!"), []byte("New1!")))

	s.c.identity.Logout(s.ctx)
	_, err = s.c.identity.Login(s.ctx, "alice", []byte("Password1!"))
	s.ErrorIs(err, common.ErrAuthentication)
	_, err = s.c.identity.Login(s.ctx, "alice", []byte("New1!"))
	s.NoError(err)
}

func (s *IdentitySuite) TestDeleteAccount_RemovesOwnedRecords() {
	bob := s.w.signedIn(s.T(), "bob")
	_, err := bob.transactions.CreateTransaction(s.ctx, NewTransaction{
		Amount: 1000, Type: models.TransactionExpense, Date: day(2025, 1, 10),
		Description: "bob's lunch", CategoryID: bob.category(s.T(), "Food & Dining").ID,
	})
	s.Require().NoError(err)

	alice := s.w.signedIn(s.T(), "alice")
	food := alice.category(s.T(), "Food & Dining")
	_, err = alice.transactions.CreateTransaction(s.ctx, NewTransaction{
		Amount: 2000, Type: models.TransactionExpense, Date: day(2025, 1, 10),
		Description: "lunch", CategoryID: food.ID,
	})
	s.Require().NoError(err)
	_, err = alice.budgets.CreateBudget(s.ctx, NewBudget{
		CategoryID: food.ID, Amount: 10000, StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31),
	})
	s.Require().NoError(err)
	aliceUser, _ := alice.identity.CurrentUser()

	s.ErrorIs(alice.identity.DeleteAccount(s.ctx, []byte("wrong")), common.ErrAuthentication)
	s.Require().NoError(alice.identity.DeleteAccount(s.ctx, []byte("Password1!")))

	s.False(alice.identity.IsAuthenticated())
	for _, store := range storage.OwnedStores {
		s.Zero(s.count(store, &storage.IndexQuery{Index: "userId", Values: []any{aliceUser.ID}}), store)
	}
	found, err := s.w.engine.Get(s.ctx, storage.StoreUsers, aliceUser.ID, &models.UserRecord{})
	s.Require().NoError(err)
	s.False(found)

	s.Equal(1, s.count(storage.StoreUsers, nil))
	s.Equal(1, s.count(storage.StoreTransactions, nil))
	s.Equal(16, s.count(storage.StoreCategories, nil))
}
