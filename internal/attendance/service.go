package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/successcugo/ULAS/internal/errs"
)

// DocStore is the slice of the versioned document store the engine needs.
type DocStore interface {
	ReadJSON(ctx context.Context, path string, v any) (string, error)
	WriteJSON(ctx context.Context, path string, doc any, message, expectedRev string) (string, error)
	Delete(ctx context.Context, path, message string) error
}

// Archive receives the exported CSVs.
type Archive interface {
	PushFile(ctx context.Context, path string, content []byte, message string) error
}

// Abbrevs resolves the short codes used in export filenames.
type Abbrevs interface {
	SchoolAbbr(ctx context.Context, school string) (string, error)
	DeptAbbreviation(ctx context.Context, department string) (string, error)
}

// Service runs session operations against the document store. It holds no
// session state itself; every mutating path re-reads the document and
// writes back with the revision from that read.
type Service struct {
	store   DocStore
	archive Archive
	abbrevs Abbrevs
}

// NewService creates the engine.
func NewService(store DocStore, archive Archive, abbrevs Abbrevs) *Service {
	return &Service{store: store, archive: archive, abbrevs: abbrevs}
}

// Load fetches the live session for key, or errs.ErrNotFound when none is
// running. The revision is returned for the subsequent write.
func (s *Service) Load(ctx context.Context, key Key) (*Session, string, error) {
	var sess Session
	rev, err := s.store.ReadJSON(ctx, key.Path(), &sess)
	if err != nil {
		return nil, "", err
	}
	return &sess, rev, nil
}

// Start creates a new session for key. A live session already at this path
// is rejected with errs.ErrAlreadyExists unless force is set, in which case
// the stale document is overwritten after an explicit confirmation by the
// caller.
func (s *Service) Start(ctx context.Context, key Key, courseCode, repUsername string, force bool) (*Session, string, error) {
	_, existingRev, err := s.Load(ctx, key)
	switch {
	case err == nil:
		if !force {
			return nil, "", fmt.Errorf("session for %s L%s: %w", key.Department, key.Level, errs.ErrAlreadyExists)
		}
	case errors.Is(err, errs.ErrNotFound):
		existingRev = ""
	default:
		return nil, "", err
	}

	sess := NewSession(key, courseCode, repUsername)
	rev, err := s.Save(ctx, key, sess, existingRev)
	if err != nil {
		return nil, "", err
	}
	return sess, rev, nil
}

// Save persists the session with the given expected revision.
func (s *Service) Save(ctx context.Context, key Key, sess *Session, expectedRev string) (string, error) {
	msg := fmt.Sprintf("Session update: %s %s L%s", sess.CourseCode, key.Department, key.Level)
	return s.store.WriteJSON(ctx, key.Path(), sess, msg, expectedRev)
}

// Delete removes the live session document.
func (s *Service) Delete(ctx context.Context, key Key) error {
	return s.store.Delete(ctx, key.Path(), fmt.Sprintf("End session: %s L%s", key.Department, key.Level))
}

// CheckAndRegisterDevice enforces the advisory anti-cheat rule: one device,
// one matric number, per course key. The map is read fresh (never cached)
// and written back with the revision from that read. An empty device id is
// allowed through; ids are client-supplied and spoofable, so this is a
// deterrent, not an enforcement boundary.
func (s *Service) CheckAndRegisterDevice(ctx context.Context, key Key, courseCode, deviceID, matric string) error {
	if deviceID == "" {
		return nil
	}
	path := key.DevicePath(courseCode)

	devices := map[string]string{}
	rev, err := s.store.ReadJSON(ctx, path, &devices)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	matric = strings.TrimSpace(matric)
	if bound, ok := devices[deviceID]; ok && bound != matric {
		return ErrDeviceBound
	}
	devices[deviceID] = matric

	msg := fmt.Sprintf("Device map: %s %s L%s", courseCode, key.Department, key.Level)
	_, err = s.store.WriteJSON(ctx, path, devices, msg, rev)
	return err
}

// End closes the session: it re-reads the freshest copy (entries may have
// arrived after the rep's last view), pushes the CSV to the archive, and
// deletes the live document only once the push succeeded. On push failure
// the session is left intact so the rep can fall back to a manual export.
func (s *Service) End(ctx context.Context, key Key) (*Session, error) {
	sess, _, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.PushToArchive(ctx, sess); err != nil {
		return sess, err
	}
	if err := s.Delete(ctx, key); err != nil {
		return sess, err
	}
	return sess, nil
}
