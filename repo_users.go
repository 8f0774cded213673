package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Users is the bun backed identity store
type Users interface {
	IdentityStore
	AccountStatusUpdater

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	GetOrCreate(ctx context.Context, record *User) (*User, error)
	SetEnabledTx(ctx context.Context, tx bun.IDB, id int64, enabled bool) (*User, error)
	EnsureSchema(ctx context.Context) error
}

type users struct {
	db  *bun.DB
	now Clock
}

var (
	_ Users         = (*users)(nil)
	_ IdentityStore = (*users)(nil)
)

// UsersOption configures the repository
type UsersOption func(*users)

// WithUsersClock sets the clock used for timestamps
func WithUsersClock(c Clock) UsersOption {
	return func(u *users) {
		u.now = normalizeClock(c)
	}
}

// NewUsersRepository returns a Users store over db
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := &users{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

// EnsureSchema creates the users table when missing
func (a *users) EnsureSchema(ctx context.Context) error {
	_, err := a.db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create users table")
	}
	return nil
}

func (a *users) FindByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, notFound("username", username)
	}

	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err, "username", username)
	}
	return record, nil
}

func (a *users) FindByID(ctx context.Context, id int64) (*User, error) {
	return a.findByIDTx(ctx, a.db, id)
}

func (a *users) findByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapStoreError(err, "id", id)
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record == nil {
		return nil, errors.New("user record is required", errors.CategoryBadInput)
	}
	a.prepareUserDefaults(record)

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create user").
			WithMetadata(map[string]any{"username": record.Username})
	}
	return record, nil
}

func (a *users) GetOrCreate(ctx context.Context, record *User) (*User, error) {
	if record == nil {
		return nil, errors.New("user record is required", errors.CategoryBadInput)
	}

	user, err := a.FindByUsername(ctx, record.Username)
	if err == nil {
		return user, nil
	}

	if !errors.IsNotFound(err) {
		return nil, err
	}

	return a.Create(ctx, record)
}

func (a *users) SetEnabled(ctx context.Context, id int64, enabled bool) (*User, error) {
	return a.SetEnabledTx(ctx, a.db, id, enabled)
}

func (a *users) SetEnabledTx(ctx context.Context, tx bun.IDB, id int64, enabled bool) (*User, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update user status").
			WithMetadata(map[string]any{"id": id})
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, notFound("id", id)
	}

	return a.findByIDTx(ctx, tx, id)
}

func (a *users) prepareUserDefaults(record *User) {
	record.Username = strings.TrimSpace(record.Username)
	if record.Authorities == "" {
		record.SetAuthorities(AuthorityUser)
	}
	now := a.now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

func notFound(field string, value any) *errors.Error {
	return errors.New("user not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithMetadata(map[string]any{field: value})
}

func mapStoreError(err error, field string, value any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(field, value)
	}
	return errors.Wrap(err, errors.CategoryInternal, "identity store lookup failed").
		WithMetadata(map[string]any{field: value})
}
