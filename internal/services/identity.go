package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/auth"
	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/cryptox"
	"github.com/dmitrijs2005/fintrack/internal/models"
	"github.com/dmitrijs2005/fintrack/internal/repositories/metadata"
	"github.com/dmitrijs2005/fintrack/internal/storage"
)

// Keys of the durable session cache.
const (
	CacheKeySession     = "session"
	CacheKeyPreferences = "preferences"
	CacheKeyAppState    = "app-state"
)

const dataVersion = "1.0"

type RegisterRequest struct {
	Username  string
	Password  []byte
	Email     string
	FirstName string
	LastName  string
	Role      models.Role // personal when empty
}

// ProfileUpdate lists the profile fields a user may change. Nil fields are
// left as they are; an empty Email clears the address.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Preferences *models.Preferences
}

// SessionInfo describes the session handed out by Login and RefreshSession.
type SessionInfo struct {
	Token     string
	ExpiresAt time.Time
}

type LoginResult struct {
	User    *models.User
	Session SessionInfo
}

// IdentityManager owns the account records and the current session.
//
// It moves between two states. Anonymous is the initial state and the state
// after Logout or a failed LoadSession. Authenticated is entered by Login or
// a successful LoadSession and lasts until Logout or session expiry.
type IdentityManager struct {
	engine storage.Engine
	cache  *metadata.SealedStore
	tokens *auth.Tokens
	opts   options

	mu      sync.RWMutex
	user    *models.User
	session *models.Session

	dummyOnce sync.Once
	dummyHash string
}

func NewIdentityManager(engine storage.Engine, cache *metadata.SealedStore, tokens *auth.Tokens, opts ...Option) *IdentityManager {
	return &IdentityManager{
		engine: engine,
		cache:  cache,
		tokens: tokens,
		opts:   buildOptions(opts),
	}
}

// Register creates an account together with its default categories.
func (m *IdentityManager) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(req.Password) == 0 {
		return nil, fmt.Errorf("%w: username and password are required", common.ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = models.RolePersonal
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, role)
	}

	var email *string
	if e := strings.TrimSpace(req.Email); e != "" {
		email = &e
	}

	if taken, err := m.indexTaken(ctx, "username", username, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: username already exists", common.ErrConflict)
	}
	if email != nil {
		if taken, err := m.indexTaken(ctx, "email", *email, ""); err != nil {
			return nil, err
		} else if taken {
			return nil, fmt.Errorf("%w: email already exists", common.ErrConflict)
		}
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, err
	}

	now := m.opts.stamp()
	rec := models.UserRecord{
		User: models.User{
			ID:          newID(),
			Username:    username,
			Email:       email,
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			Role:        role,
			Permissions: role.Permissions(),
			Preferences: models.DefaultPreferences(),
			Security: models.SecuritySettings{
				SessionTimeout: int(DefaultSessionTimeout / time.Minute),
			},
			State: models.UserState{
				IsFirstLogin: true,
				DataVersion:  dataVersion,
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: cryptox.HashPassword(req.Password, salt, m.opts.hash),
		PasswordSalt: salt,
	}

	categories, err := defaultCategories(rec.ID, now)
	if err != nil {
		return nil, err
	}

	err = m.engine.ExecuteTransaction(ctx, []string{storage.StoreUsers, storage.StoreCategories}, storage.ReadWrite,
		func(ctx context.Context, tx storage.Ops) error {
			if err := tx.Add(ctx, storage.StoreUsers, rec); err != nil {
				return err
			}
			for _, c := range categories {
				if err := tx.Add(ctx, storage.StoreCategories, c); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, common.ErrConstraint) {
			return nil, fmt.Errorf("%w: username or email already exists", common.ErrConflict)
		}
		return nil, err
	}

	m.opts.log.Info(ctx, "user registered", "user_id", rec.ID, "role", string(role))
	return cloneUser(&rec.User), nil
}

// Login verifies the credentials and starts a session. Unknown users and
// wrong passwords fail the same way.
func (m *IdentityManager) Login(ctx context.Context, username string, password []byte) (*LoginResult, error) {
	rec, err := m.findByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Burn the same amount of work as a real check.
		_, _ = cryptox.VerifyPassword(password, "", m.dummy())
		return nil, common.ErrAuthentication
	}

	ok, err := cryptox.VerifyPassword(password, rec.PasswordSalt, rec.PasswordHash)
	if err != nil {
		m.opts.log.Warn(ctx, "stored password hash is unreadable", "user_id", rec.ID, "error", err)
		return nil, common.ErrAuthentication
	}
	if !ok {
		return nil, common.ErrAuthentication
	}

	now := m.opts.stamp()
	rec.LastLoginAt = &now
	rec.UpdatedAt = now
	if err := m.engine.Put(ctx, storage.StoreUsers, rec); err != nil {
		return nil, err
	}

	session, err := m.startSession(ctx, &rec.User)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.user = cloneUser(&rec.User)
	m.session = session
	m.mu.Unlock()

	m.opts.log.Info(ctx, "user logged in", "user_id", rec.ID)
	return &LoginResult{
		User:    cloneUser(&rec.User),
		Session: SessionInfo{Token: session.Token, ExpiresAt: session.ExpiresAt},
	}, nil
}

// Logout forgets the current session. It never fails; cache errors are
// logged.
func (m *IdentityManager) Logout(ctx context.Context) {
	m.mu.Lock()
	var userID string
	if m.user != nil {
		userID = m.user.ID
	}
	m.user = nil
	m.session = nil
	m.mu.Unlock()

	if err := m.cache.Remove(ctx, CacheKeySession, CacheKeyPreferences, CacheKeyAppState); err != nil {
		m.opts.log.Warn(ctx, "failed to clear session cache", "error", err)
	}
	if userID != "" {
		m.opts.log.Info(ctx, "user logged out", "user_id", userID)
	}
}

// IsAuthenticated reports whether a user is loaded and the session has not
// expired.
func (m *IdentityManager) IsAuthenticated() bool {
	now := m.opts.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.session.Valid(now)
}

// CurrentUser returns a copy of the loaded user.
func (m *IdentityManager) CurrentUser() (*models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil, false
	}
	return cloneUser(m.user), true
}

// CurrentSession describes the active session, if any.
func (m *IdentityManager) CurrentSession() (*SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, false
	}
	return &SessionInfo{Token: m.session.Token, ExpiresAt: m.session.ExpiresAt}, true
}

func (m *IdentityManager) HasPermission(perm string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.HasPermission(perm)
}

// RefreshSession issues a new token with a full lifetime for the loaded
// user.
func (m *IdentityManager) RefreshSession(ctx context.Context) (*SessionInfo, error) {
	m.mu.RLock()
	user := m.user
	m.mu.RUnlock()
	if user == nil {
		return nil, common.ErrSessionExpired
	}

	session, err := m.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	return &SessionInfo{Token: session.Token, ExpiresAt: session.ExpiresAt}, nil
}

// UpdateProfile applies upd to the current user.
func (m *IdentityManager) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*models.User, error) {
	current, err := requireUser(m)
	if err != nil {
		return nil, err
	}
	rec, err := m.loadRecord(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		rec.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		rec.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Email != nil {
		var email *string
		if e := strings.TrimSpace(*upd.Email); e != "" {
			email = &e
		}
		if email != nil && (rec.Email == nil || *rec.Email != *email) {
			taken, err := m.indexTaken(ctx, "email", *email, rec.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, fmt.Errorf("%w: email already exists", common.ErrConflict)
			}
		}
		rec.Email = email
	}
	if upd.Preferences != nil {
		rec.Preferences = *upd.Preferences
	}
	rec.UpdatedAt = m.opts.stamp()

	if err := m.engine.Put(ctx, storage.StoreUsers, rec); err != nil {
		if errors.Is(err, common.ErrConstraint) {
			return nil, fmt.Errorf("%w: email already exists", common.ErrConflict)
		}
		return nil, err
	}

	m.mu.Lock()
	if m.user != nil && m.user.ID == rec.ID {
		m.user = cloneUser(&rec.User)
	}
	m.mu.Unlock()

	if upd.Preferences != nil {
		if err := m.cache.Save(ctx, CacheKeyPreferences, rec.Preferences); err != nil {
			m.opts.log.Warn(ctx, "failed to cache preferences", "error", err)
		}
	}

	return cloneUser(&rec.User), nil
}

// ChangePassword replaces the current user's password after checking the
// old one.
func (m *IdentityManager) ChangePassword(ctx context.Context, current, next []byte) error {
	user, err := requireUser(m)
	if err != nil {
		return err
	}
	if len(next) == 0 {
		return fmt.Errorf("%w: new password is required", common.ErrValidation)
	}
	rec, err := m.loadRecord(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := verify(rec, current); err != nil {
		return err
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return err
	}
	rec.PasswordSalt = salt
	rec.PasswordHash = cryptox.HashPassword(next, salt, m.opts.hash)
	rec.UpdatedAt = m.opts.stamp()

	if err := m.engine.Put(ctx, storage.StoreUsers, rec); err != nil {
		return err
	}
	m.opts.log.Info(ctx, "password changed", "user_id", rec.ID)
	return nil
}

// DeleteAccount removes the current user and everything they own, then
// logs out.
func (m *IdentityManager) DeleteAccount(ctx context.Context, password []byte) error {
	user, err := requireUser(m)
	if err != nil {
		return err
	}
	rec, err := m.loadRecord(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := verify(rec, password); err != nil {
		return err
	}

	stores := append(slices.Clone(storage.OwnedStores), storage.StoreUsers)
	err = m.engine.ExecuteTransaction(ctx, stores, storage.ReadWrite, func(ctx context.Context, tx storage.Ops) error {
		for _, store := range storage.OwnedStores {
			if err := deleteOwned(ctx, tx, store, rec.ID); err != nil {
				return err
			}
		}
		return tx.Delete(ctx, storage.StoreUsers, rec.ID)
	})
	if err != nil {
		return err
	}

	m.opts.log.Info(ctx, "account deleted", "user_id", rec.ID)
	m.Logout(ctx)
	return nil
}

// LoadSession restores the session cached by an earlier Login. A missing,
// unreadable or stale session leaves the manager anonymous; only storage
// failures are returned.
func (m *IdentityManager) LoadSession(ctx context.Context) error {
	var s models.Session
	found, err := m.cache.Load(ctx, CacheKeySession, &s)
	if errors.Is(err, metadata.ErrCorrupt) {
		m.discardSession(ctx, "cached session is unreadable")
		return nil
	}
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if !s.Valid(m.opts.now()) {
		m.discardSession(ctx, "cached session expired")
		return nil
	}
	if uid, err := m.tokens.Verify(s.Token); err != nil || uid != s.UserID {
		m.discardSession(ctx, "cached session token rejected")
		return nil
	}

	var rec models.UserRecord
	found, err = m.engine.Get(ctx, storage.StoreUsers, s.UserID, &rec)
	if err != nil {
		return err
	}
	if !found {
		m.discardSession(ctx, "session user no longer exists")
		return nil
	}

	m.mu.Lock()
	m.user = cloneUser(&rec.User)
	m.session = &s
	m.mu.Unlock()

	m.opts.log.Debug(ctx, "session restored", "user_id", rec.ID)
	return nil
}

// CachedPreferences returns the preferences cached at login, or nil when
// there are none.
func (m *IdentityManager) CachedPreferences(ctx context.Context) (*models.Preferences, error) {
	var p models.Preferences
	found, err := m.cache.Load(ctx, CacheKeyPreferences, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SaveAppState caches an arbitrary front-end value until logout.
func (m *IdentityManager) SaveAppState(ctx context.Context, v any) error {
	return m.cache.Save(ctx, CacheKeyAppState, v)
}

// LoadAppState decodes the value stored by SaveAppState into dst.
func (m *IdentityManager) LoadAppState(ctx context.Context, dst any) (bool, error) {
	return m.cache.Load(ctx, CacheKeyAppState, dst)
}

func (m *IdentityManager) startSession(ctx context.Context, u *models.User) (*models.Session, error) {
	timeout := time.Duration(u.Security.SessionTimeout) * time.Minute
	if timeout <= 0 {
		timeout = m.opts.sessionTimeout
	}

	now := m.opts.stamp()
	expiresAt := now.Add(timeout)
	token, err := m.tokens.Issue(u.ID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s := &models.Session{UserID: u.ID, Token: token, ExpiresAt: expiresAt, LastActivity: now}
	if err := m.cache.Save(ctx, CacheKeySession, s); err != nil {
		return nil, err
	}
	if err := m.cache.Save(ctx, CacheKeyPreferences, u.Preferences); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *IdentityManager) discardSession(ctx context.Context, reason string) {
	m.mu.Lock()
	m.user = nil
	m.session = nil
	m.mu.Unlock()

	m.opts.log.Warn(ctx, "discarding cached session", "reason", reason)
	if err := m.cache.Remove(ctx, CacheKeySession, CacheKeyPreferences, CacheKeyAppState); err != nil {
		m.opts.log.Warn(ctx, "failed to clear session cache", "error", err)
	}
}

func (m *IdentityManager) findByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	if username == "" {
		return nil, nil
	}
	rows, err := m.engine.QueryByIndex(ctx, storage.StoreUsers, "username", username)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return storage.Decode[models.UserRecord](rows[0])
}

func (m *IdentityManager) loadRecord(ctx context.Context, id string) (*models.UserRecord, error) {
	var rec models.UserRecord
	found, err := m.engine.Get(ctx, storage.StoreUsers, id, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: user %s", common.ErrNotFound, id)
	}
	return &rec, nil
}

// indexTaken reports whether a user other than exceptID holds value on the
// given unique index.
func (m *IdentityManager) indexTaken(ctx context.Context, index, value, exceptID string) (bool, error) {
	rows, err := m.engine.QueryByIndex(ctx, storage.StoreUsers, index, value)
	if err != nil {
		return false, err
	}
	for _, raw := range rows {
		u, err := storage.Decode[models.User](raw)
		if err != nil {
			return false, err
		}
		if u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m *IdentityManager) dummy() string {
	m.dummyOnce.Do(func() {
		m.dummyHash = cryptox.HashPassword([]byte("fintrack"), "fintrack", m.opts.hash)
	})
	return m.dummyHash
}

func verify(rec *models.UserRecord, password []byte) error {
	ok, err := cryptox.VerifyPassword(password, rec.PasswordSalt, rec.PasswordHash)
	if err != nil || !ok {
		return common.ErrAuthentication
	}
	return nil
}

type recordID struct {
	ID string `json:"id"`
}

func deleteOwned(ctx context.Context, tx storage.Ops, store, userID string) error {
	rows, err := tx.QueryByIndex(ctx, store, "userId", userID)
	if err != nil {
		return err
	}
	ids, err := storage.DecodeAll[recordID](rows)
	if err != nil {
		return err
	}
	for _, r := range ids {
		if err := tx.Delete(ctx, store, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// cloneUser returns a deep copy of u so callers cannot mutate shared state.
func cloneUser(u *models.User) *models.User {
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	if u.Email != nil {
		c.Email = ptr(*u.Email)
	}
	if u.LastLoginAt != nil {
		c.LastLoginAt = ptr(*u.LastLoginAt)
	}
	if u.State.LastBackupDate != nil {
		c.State.LastBackupDate = ptr(*u.State.LastBackupDate)
	}
	return &c
}
