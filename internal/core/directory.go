package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"budgetcore/pkg/domain"
)

// Directory is the identity provider backing the CLI. It owns the users
// collection and enforces that at most one prime minister exists.
type Directory struct {
	users     *CollectionStore[domain.User]
	validator Validator
	logger    *zap.Logger
}

// NewDirectory constructs a directory over the users store, validating
// registrations with the given limits.
func NewDirectory(users *CollectionStore[domain.User], limits Limits, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{users: users, validator: NewValidator(limits), logger: logger}
}

// Validator returns the validator registrations are checked with.
func (d *Directory) Validator() Validator { return d.validator }

// Register validates and stores a new user, assigning its id.
func (d *Directory) Register(ctx context.Context, user domain.User) (domain.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	user.FullName = strings.TrimSpace(user.FullName)
	if err := d.validator.ValidateNewUser(&user); err != nil {
		return domain.User{}, domain.WithOp("register", err)
	}
	created, err := d.users.CreateIf(ctx, func(existing []domain.User) error {
		for _, other := range existing {
			if strings.EqualFold(other.Username, user.Username) {
				return domain.ValidationError(RuleUser, "username %q is taken", user.Username)
			}
			if user.Role == domain.RolePrimeMinister && other.Role == domain.RolePrimeMinister {
				return domain.ValidationError(RuleSinglePremier, "a prime minister is already registered")
			}
		}
		return nil
	}, func(id int) (domain.User, error) {
		user.ID = id
		return user, nil
	})
	if err != nil {
		return domain.User{}, domain.WithOp("register", err)
	}
	d.logger.Info("user registered",
		zap.Int("user_id", created.ID),
		zap.String("role", string(created.Role)))
	return created, nil
}

// Lookup resolves a user by username, case-insensitively.
func (d *Directory) Lookup(ctx context.Context, username string) (domain.User, error) {
	name := strings.TrimSpace(username)
	for _, user := range d.users.Load(ctx) {
		if strings.EqualFold(user.Username, name) {
			return user, nil
		}
	}
	return domain.User{}, domain.NotFoundError("user %q not found", name)
}

// Get resolves a user by id.
func (d *Directory) Get(ctx context.Context, id int) (domain.User, error) {
	user, ok := d.users.FindByID(ctx, id)
	if !ok {
		return domain.User{}, domain.NotFoundError("user %d not found", id)
	}
	return user, nil
}

// Users returns every registered user.
func (d *Directory) Users(ctx context.Context) []domain.User {
	return d.users.Load(ctx)
}
