// Package settings manages the singleton settings document: the token
// rotation period and the department abbreviation map used for export
// filenames.
package settings

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/successcugo/ULAS/internal/cache"
)

const (
	path = "data/settings.json"
	key  = "settings"

	// DefaultTokenLifetime is the rotation period in seconds when nothing
	// has been configured yet.
	DefaultTokenLifetime = 7

	MinTokenLifetime = 3
	MaxTokenLifetime = 300
)

// Settings is the stored document.
type Settings struct {
	TokenLifetime     int               `json:"TOKEN_LIFETIME"`
	DeptAbbreviations map[string]string `json:"dept_abbreviations"`
}

// Service reads and writes settings through the session cache.
type Service struct {
	cache *cache.Cache
}

func NewService(c *cache.Cache) *Service {
	return &Service{cache: c}
}

// Get returns the settings with defaults filled in.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	var st Settings
	if _, err := s.cache.ReadJSON(ctx, key, path, []byte("{}"), &st); err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	if st.TokenLifetime <= 0 {
		st.TokenLifetime = DefaultTokenLifetime
	}
	if st.DeptAbbreviations == nil {
		st.DeptAbbreviations = map[string]string{}
	}
	return st, nil
}

// TokenLifetime returns just the configured rotation period in seconds.
func (s *Service) TokenLifetime(ctx context.Context) (int, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return st.TokenLifetime, nil
}

// SetTokenLifetime stores a new rotation period. The [3,300] range is
// enforced here, at the edit boundary.
func (s *Service) SetTokenLifetime(ctx context.Context, seconds int) error {
	if seconds < MinTokenLifetime || seconds > MaxTokenLifetime {
		return fmt.Errorf("settings: token lifetime %d out of range [%d,%d]",
			seconds, MinTokenLifetime, MaxTokenLifetime)
	}
	st, err := s.Get(ctx)
	if err != nil {
		return err
	}
	st.TokenLifetime = seconds
	return s.save(ctx, st)
}

// DeptAbbreviation returns the advisor-set short code for a department, or
// an initialism of the department name (max 3 letters) as a fallback.
func (s *Service) DeptAbbreviation(ctx context.Context, department string) (string, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	if abbr := strings.TrimSpace(st.DeptAbbreviations[department]); abbr != "" {
		return strings.ToUpper(abbr), nil
	}
	return Initialism(department), nil
}

// SetDeptAbbreviation stores the short code for a department.
func (s *Service) SetDeptAbbreviation(ctx context.Context, department, abbreviation string) error {
	st, err := s.Get(ctx)
	if err != nil {
		return err
	}
	st.DeptAbbreviations[department] = strings.ToUpper(strings.TrimSpace(abbreviation))
	return s.save(ctx, st)
}

func (s *Service) save(ctx context.Context, st Settings) error {
	err := s.cache.WriteThrough(ctx, key, path, st, "Update settings")
	s.cache.Invalidate(key)
	return err
}

// Initialism builds the fallback department code: first letter of each word,
// capped at three characters.
func Initialism(department string) string {
	cleaned := strings.NewReplacer("(", "", ")", "").Replace(department)
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(cleaned) {
		if n == 3 {
			break
		}
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(r)
		n++
	}
	return strings.ToUpper(b.String())
}
