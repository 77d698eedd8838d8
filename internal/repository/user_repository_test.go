package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"omega-store/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Property: stored users keep their bcrypt hash
func TestProperty_RegistrationCreatesHashedPasswords(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("passwords are hashed with bcrypt and not stored as plaintext", prop.ForAll(
		func(email string, password string, firstName string, lastName string) bool {
			// Clean up before each test
			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			// Hash the password with bcrypt
			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				t.Logf("Failed to hash password: %v", err)
				return false
			}

			// Create user with hashed password
			user := &domain.User{
				ID:           uuid.New(),
				Email:        email,
				PasswordHash: string(hashedPassword),
				FirstName:    firstName,
				LastName:     lastName,
				Role:         "user",
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}

			// Store the user
			err = repo.Create(ctx, user)
			if err != nil {
				t.Logf("Failed to create user: %v", err)
				return false
			}

			// Retrieve the user
			retrievedUser, err := repo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("Failed to find user: %v", err)
				return false
			}

			// Verify the password is hashed (not equal to plaintext)
			if retrievedUser.PasswordHash == password {
				t.Logf("Password was stored as plaintext!")
				return false
			}

			// Verify the stored hash is a valid bcrypt hash by comparing
			err = bcrypt.CompareHashAndPassword([]byte(retrievedUser.PasswordHash), []byte(password))
			if err != nil {
				t.Logf("Stored password is not a valid bcrypt hash: %v", err)
				return false
			}

			// Clean up after test
			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			return true
		},
		// Generate valid email addresses
		gen.RegexMatch(`[a-z]{5,10}@[a-z]{3,8}\.(com|org|net)`),
		// Generate passwords with at least 8 characters
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
		// Generate first names
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
		// Generate last names
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func newTestUser(email string) *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		FirstName:    "Ana",
		LastName:     "Martin",
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestUser("ana@example.com")))

	err := repo.Create(ctx, newTestUser("ana@example.com"))
	assert.True(t, errors.Is(err, ErrUserAlreadyExists))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUserRepositoryUpdate(t *testing.T) {
	resetTables(t)
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	ana := newTestUser("ana@example.com")
	bob := newTestUser("bob@example.com")
	require.NoError(t, repo.Create(ctx, ana))
	require.NoError(t, repo.Create(ctx, bob))

	ana.LastName = "Durand"
	ana.Email = "ana.durand@example.com"
	require.NoError(t, repo.Update(ctx, ana))

	found, err := repo.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "Durand", found.LastName)
	assert.Equal(t, "ana.durand@example.com", found.Email)

	ana.Email = "bob@example.com"
	assert.ErrorIs(t, repo.Update(ctx, ana), ErrUserAlreadyExists)

	ghost := newTestUser("ghost@example.com")
	assert.ErrorIs(t, repo.Update(ctx, ghost), ErrUserNotFound)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRefreshTokenRepository(t *testing.T) {
	resetTables(t)
	users := NewUserRepository(testDB)
	tokens := NewRefreshTokenRepository(testDB)
	ctx := context.Background()

	user := newTestUser("ana@example.com")
	require.NoError(t, users.Create(ctx, user))

	token := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     "refresh-" + uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, tokens.Create(ctx, token))

	consumed, err := tokens.Consume(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, consumed.UserID)
	assert.True(t, consumed.Revoked)

	_, err = tokens.Consume(ctx, token.Token)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	_, err = tokens.Consume(ctx, "unknown")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)

	assert.ErrorIs(t, tokens.Revoke(ctx, "unknown"), ErrRefreshTokenNotFound)
}

func TestRevokeAllSessionsOfUser(t *testing.T) {
	resetTables(t)
	users := NewUserRepository(testDB)
	tokens := NewRefreshTokenRepository(testDB)
	ctx := context.Background()

	user := newTestUser("leo@example.com")
	other := newTestUser("mia@example.com")
	require.NoError(t, users.Create(ctx, user))
	require.NoError(t, users.Create(ctx, other))

	issue := func(owner uuid.UUID) string {
		value := "refresh-" + uuid.NewString()
		require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{
			ID: uuid.New(), UserID: owner, Token: value,
			ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
		}))
		return value
	}
	first, second, kept := issue(user.ID), issue(user.ID), issue(other.ID)
	require.NoError(t, tokens.Revoke(ctx, second))

	revoked, err := tokens.RevokeAllForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revoked)

	_, err = tokens.Consume(ctx, first)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	_, err = tokens.Consume(ctx, kept)
	assert.NoError(t, err)
}
