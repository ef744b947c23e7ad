package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
)

// CSV renders the session as the archive CSV format.
func CSV(sess *Session) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"S/N", "Surname", "Other Names", "Matric Number", "Time"})
	for _, e := range sess.Entries {
		_ = w.Write([]string{strconv.Itoa(e.SN), e.Surname, e.OtherNames, e.Matric, e.Time})
	}
	w.Flush()
	return buf.Bytes()
}

// Filename builds the export filename:
// {schoolAbbr}{courseCode}{deptAbbr}{level}_{date}.csv
func (s *Service) Filename(ctx context.Context, sess *Session) (string, error) {
	schoolAbbr, err := s.abbrevs.SchoolAbbr(ctx, sess.School)
	if err != nil {
		return "", err
	}
	deptAbbr, err := s.abbrevs.DeptAbbreviation(ctx, sess.Department)
	if err != nil {
		return "", err
	}
	date := sess.StartedAt.Format("2006-01-02")
	return fmt.Sprintf("%s%s%s%s_%s.csv", schoolAbbr, sess.CourseCode, deptAbbr, sess.Level, date), nil
}

// PushToArchive writes the CSV under attendances/{date}/ in the archive
// repository.
func (s *Service) PushToArchive(ctx context.Context, sess *Session) error {
	filename, err := s.Filename(ctx, sess)
	if err != nil {
		return err
	}
	date := sess.StartedAt.Format("2006-01-02")
	path := fmt.Sprintf("attendances/%s/%s", date, filename)
	msg := fmt.Sprintf("Attendance: %s | %s | Level %s | %s", sess.CourseCode, sess.Department, sess.Level, date)
	return s.archive.PushFile(ctx, path, CSV(sess), msg)
}
