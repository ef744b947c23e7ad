// Package identity manages the advisor/rep account directory stored as a
// single JSON document. Every mutation is a full read-modify-write of the
// whole directory, with the revision carried from the read.
package identity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/successcugo/ULAS/internal/cache"
	"github.com/successcugo/ULAS/internal/errs"
)

const (
	RoleRep     = "rep"
	RoleAdvisor = "advisor"
	RoleAdmin   = "admin"
)

const (
	usersPath = "data/users.json"
	usersKey  = "users"
)

// WAT is the campus timezone (UTC+1).
var WAT = time.FixedZone("WAT", 3600)

// User is one advisor or rep account. The master admin is configured
// out of band and never appears here.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
	School       string `json:"school"`
	Department   string `json:"department"`
	Level        string `json:"level,omitempty"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at"`
}

// Service performs account operations through the session cache.
type Service struct {
	cache *cache.Cache
}

// NewService creates a service over the shared document cache.
func NewService(c *cache.Cache) *Service {
	return &Service{cache: c}
}

func (s *Service) users(ctx context.Context) (map[string]User, error) {
	users := map[string]User{}
	if _, err := s.cache.ReadJSON(ctx, usersKey, usersPath, []byte("{}"), &users); err != nil {
		return nil, fmt.Errorf("identity: load users: %w", err)
	}
	return users, nil
}

func (s *Service) saveUsers(ctx context.Context, users map[string]User) error {
	err := s.cache.WriteThrough(ctx, usersKey, usersPath, users, "Update users")
	s.cache.Invalidate(usersKey)
	return err
}

// Invalidate drops the cached user directory so the next read refetches.
func (s *Service) Invalidate() {
	s.cache.Invalidate(usersKey)
}

// Authenticate looks up username and checks role and password. Any mismatch
// returns errs.ErrUnauthorized without distinguishing the cause.
func (s *Service) Authenticate(ctx context.Context, username, password, role string) (User, error) {
	users, err := s.users(ctx)
	if err != nil {
		return User{}, err
	}
	u, ok := users[username]
	if !ok || u.Role != role || !VerifyPassword(password, u.PasswordHash) {
		return User{}, errs.ErrUnauthorized
	}
	return u, nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, username string) (User, error) {
	users, err := s.users(ctx)
	if err != nil {
		return User{}, err
	}
	u, ok := users[username]
	if !ok {
		return User{}, errs.ErrNotFound
	}
	return u, nil
}

// Create inserts a new account. Usernames are unique globally, across all
// roles and departments, not just within one department.
func (s *Service) Create(ctx context.Context, username, password, role, school, department, level, createdBy string) error {
	users, err := s.users(ctx)
	if err != nil {
		return err
	}
	if _, exists := users[username]; exists {
		return fmt.Errorf("username %q: %w", username, errs.ErrAlreadyExists)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	users[username] = User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		School:       school,
		Department:   department,
		Level:        level,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().In(WAT).Format("2006-01-02 15:04:05"),
	}
	return s.saveUsers(ctx, users)
}

// UpdatePassword rehashes and stores a new password for username.
func (s *Service) UpdatePassword(ctx context.Context, username, newPassword string) error {
	users, err := s.users(ctx)
	if err != nil {
		return err
	}
	u, ok := users[username]
	if !ok {
		return fmt.Errorf("user %q: %w", username, errs.ErrNotFound)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	users[username] = u
	return s.saveUsers(ctx, users)
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, username string) error {
	users, err := s.users(ctx)
	if err != nil {
		return err
	}
	if _, ok := users[username]; !ok {
		return fmt.Errorf("user %q: %w", username, errs.ErrNotFound)
	}
	delete(users, username)
	return s.saveUsers(ctx, users)
}

// RepsForDept returns the reps of one department, ordered by level.
func (s *Service) RepsForDept(ctx context.Context, school, department string) ([]User, error) {
	return s.filter(ctx, func(u User) bool {
		return u.Role == RoleRep && u.School == school && u.Department == department
	})
}

// AdvisorsForDept returns the advisors of one department.
func (s *Service) AdvisorsForDept(ctx context.Context, school, department string) ([]User, error) {
	return s.filter(ctx, func(u User) bool {
		return u.Role == RoleAdvisor && u.School == school && u.Department == department
	})
}

// AllAdvisors returns every advisor account.
func (s *Service) AllAdvisors(ctx context.Context) ([]User, error) {
	return s.filter(ctx, func(u User) bool { return u.Role == RoleAdvisor })
}

func (s *Service) filter(ctx context.Context, keep func(User) bool) ([]User, error) {
	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	var out []User
	for _, u := range users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}
