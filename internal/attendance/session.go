// Package attendance implements the live attendance session engine: the
// rotating 4-digit verification code, entry admission rules, device
// registration, and the export handoff to the archive repository.
package attendance

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrDuplicateName rejects a second entry with the same normalized
	// surname plus other names.
	ErrDuplicateName = errors.New("a student with this name is already in the attendance")

	// ErrDuplicateMatric rejects a second entry with the same matric number.
	ErrDuplicateMatric = errors.New("this matric number is already in the attendance")

	// ErrEntryNotFound means the sequence number no longer exists, e.g. the
	// entry was deleted concurrently.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrDeviceBound means the submitting device already signed for a
	// different matric number under this course key.
	ErrDeviceBound = errors.New("this device has already been used to sign attendance for this class")
)

// WAT is the campus timezone (UTC+1).
var WAT = time.FixedZone("WAT", 3600)

// titleCase normalizes a name to title case. cases.Caser is stateful and
// not safe for concurrent use, so one is constructed per call; handlers
// run concurrently and this sits on the entry submission path.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(strings.TrimSpace(s)))
}

// Key identifies the single live session slot for a cohort.
type Key struct {
	School     string
	Department string
	Level      string
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "_", " ", "_", "(", "", ")", "").Replace(s)
}

// Path is the document path holding the live session for this key. One
// document per key is what enforces "at most one live session per cohort".
func (k Key) Path() string {
	return fmt.Sprintf("sessions/%s__%s__%s.json", sanitize(k.School), sanitize(k.Department), k.Level)
}

// DevicePath is the document path of the device-to-matric map. The key
// includes the course code but no date, so a reused course code keeps its
// old bindings across days.
func (k Key) DevicePath(courseCode string) string {
	return fmt.Sprintf("devices/%s__%s__%s__%s.json",
		sanitize(k.School), sanitize(k.Department), k.Level, strings.ToUpper(courseCode))
}

// Entry is one student submission.
type Entry struct {
	SN         int    `json:"sn"`
	Surname    string `json:"surname"`
	OtherNames string `json:"other_names"`
	Matric     string `json:"matric"`
	Time       string `json:"time"`
}

// Session is the live attendance document.
type Session struct {
	School           string    `json:"school"`
	Department       string    `json:"department"`
	Level            string    `json:"level"`
	CourseCode       string    `json:"course_code"`
	RepUsername      string    `json:"rep_username"`
	StartedAt        time.Time `json:"started_at"`
	Token            string    `json:"token"`
	TokenGeneratedAt time.Time `json:"token_generated_at"`
	Entries          []Entry   `json:"entries"`
	NextSN           int       `json:"next_sn"`
}

// NewToken draws a 4-digit zero-padded code uniformly from 0000-9999.
// Collision with the previous code is possible and not excluded.
func NewToken() string {
	return fmt.Sprintf("%04d", rand.Intn(10000))
}

// NewSession constructs a fresh session with the sequence counter at 1.
func NewSession(key Key, courseCode, repUsername string) *Session {
	now := time.Now().In(WAT)
	return &Session{
		School:           key.School,
		Department:       key.Department,
		Level:            key.Level,
		CourseCode:       strings.ToUpper(strings.TrimSpace(courseCode)),
		RepUsername:      repUsername,
		StartedAt:        now,
		Token:            NewToken(),
		TokenGeneratedAt: now,
		Entries:          []Entry{},
		NextSN:           1,
	}
}

// RefreshToken rotates the code when its age has reached lifetime seconds.
// It reports whether a rotation happened so the caller knows to persist the
// session; calling again inside the same window does nothing.
func (s *Session) RefreshToken(lifetime int) bool {
	if time.Since(s.TokenGeneratedAt) < time.Duration(lifetime)*time.Second {
		return false
	}
	s.Token = NewToken()
	s.TokenGeneratedAt = time.Now().In(WAT)
	return true
}

// TokenRemaining returns the seconds until the code rotates, floored at
// zero. Display only; carries no authority.
func (s *Session) TokenRemaining(lifetime int) float64 {
	remaining := float64(lifetime) - time.Since(s.TokenGeneratedAt).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ValidateToken accepts code only if the stored token has not aged past
// lifetime AND the trimmed code matches it exactly. The age check matters
// even when the string matches: a client that cached the code just before
// expiry must not submit it after expiry merely because no refresh has been
// persisted yet.
func (s *Session) ValidateToken(code string, lifetime int) bool {
	if time.Since(s.TokenGeneratedAt) >= time.Duration(lifetime)*time.Second {
		return false
	}
	return s.Token == strings.TrimSpace(code)
}

// ValidateMatric requires exactly 11 digits.
func ValidateMatric(matric string) error {
	m := strings.TrimSpace(matric)
	for _, r := range m {
		if r < '0' || r > '9' {
			return errors.New("matric number must contain digits only, no letters or spaces")
		}
	}
	if len(m) != 11 {
		return fmt.Errorf("matric number must be exactly 11 digits (you entered %d)", len(m))
	}
	return nil
}

func (s *Session) nameTaken(surname, otherNames string, excludeSN int) bool {
	surname, otherNames = strings.TrimSpace(surname), strings.TrimSpace(otherNames)
	for _, e := range s.Entries {
		if excludeSN != 0 && e.SN == excludeSN {
			continue
		}
		if strings.EqualFold(e.Surname, surname) && strings.EqualFold(e.OtherNames, otherNames) {
			return true
		}
	}
	return false
}

func (s *Session) matricTaken(matric string, excludeSN int) bool {
	matric = strings.TrimSpace(matric)
	for _, e := range s.Entries {
		if excludeSN != 0 && e.SN == excludeSN {
			continue
		}
		if e.Matric == matric {
			return true
		}
	}
	return false
}

// AddEntry appends a new entry after the duplicate checks, assigning the
// next sequence number. Sequence numbers are never reused, even after
// deletions. The caller persists the mutated session.
func (s *Session) AddEntry(surname, otherNames, matric string) (Entry, error) {
	if s.nameTaken(surname, otherNames, 0) {
		return Entry{}, ErrDuplicateName
	}
	if s.matricTaken(matric, 0) {
		return Entry{}, ErrDuplicateMatric
	}
	e := Entry{
		SN:         s.NextSN,
		Surname:    strings.ToUpper(strings.TrimSpace(surname)),
		OtherNames: titleCase(otherNames),
		Matric:     strings.TrimSpace(matric),
		Time:       time.Now().In(WAT).Format("2006-01-02 15:04:05"),
	}
	s.Entries = append(s.Entries, e)
	s.NextSN++
	return e, nil
}

// EditEntry rewrites the entry with sequence number sn, running the same
// duplicate checks but excluding the entry under edit.
func (s *Session) EditEntry(sn int, surname, otherNames, matric string) error {
	if s.nameTaken(surname, otherNames, sn) {
		return ErrDuplicateName
	}
	if s.matricTaken(matric, sn) {
		return ErrDuplicateMatric
	}
	for i := range s.Entries {
		if s.Entries[i].SN == sn {
			s.Entries[i].Surname = strings.ToUpper(strings.TrimSpace(surname))
			s.Entries[i].OtherNames = titleCase(otherNames)
			s.Entries[i].Matric = strings.TrimSpace(matric)
			return nil
		}
	}
	return ErrEntryNotFound
}

// DeleteEntry removes the entry with sequence number sn. The counter is not
// decremented.
func (s *Session) DeleteEntry(sn int) error {
	for i := range s.Entries {
		if s.Entries[i].SN == sn {
			s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}
