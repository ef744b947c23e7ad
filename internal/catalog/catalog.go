// Package catalog provides the school/department/level hierarchy. The
// structure lives in the document store so admins can edit it without a
// deploy; the hardcoded seed only initialises the document on first read.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/successcugo/ULAS/internal/errs"
)

const structurePath = "data/structure.json"

// DocStore is the slice of the document store the catalog needs.
type DocStore interface {
	ReadJSON(ctx context.Context, path string, v any) (string, error)
	WriteJSON(ctx context.Context, path string, doc any, message, expectedRev string) (string, error)
}

// Structure is the stored document: school -> department -> number of
// levels, plus school abbreviations.
type Structure struct {
	Schools       map[string]map[string]int `json:"schools"`
	Abbreviations map[string]string         `json:"abbreviations"`
}

// Provider memoizes the structure for the life of the process.
type Provider struct {
	store DocStore

	mu     sync.Mutex
	cached *Structure
}

func NewProvider(store DocStore) *Provider {
	return &Provider{store: store}
}

func (p *Provider) structure(ctx context.Context) (*Structure, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return p.cached, nil
	}

	var st Structure
	_, err := p.store.ReadJSON(ctx, structurePath, &st)
	switch {
	case err == nil && len(st.Schools) > 0:
		p.cached = &st
	case err == nil || errors.Is(err, errs.ErrNotFound):
		seed := seedStructure()
		if _, werr := p.store.WriteJSON(ctx, structurePath, seed, "Init structure from seed", ""); werr != nil {
			return nil, fmt.Errorf("catalog: seed structure: %w", werr)
		}
		p.cached = seed
	default:
		return nil, fmt.Errorf("catalog: load structure: %w", err)
	}
	return p.cached, nil
}

// Invalidate drops the memoized structure.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Schools returns all school names, sorted.
func (p *Provider) Schools(ctx context.Context) ([]string, error) {
	st, err := p.structure(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.Schools))
	for s := range st.Schools {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// Departments returns the departments of a school, sorted.
func (p *Provider) Departments(ctx context.Context, school string) ([]string, error) {
	st, err := p.structure(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.Schools[school]))
	for d := range st.Schools[school] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// Levels returns "100".."N00" for a department (defaulting to four levels
// when the department is unknown).
func (p *Provider) Levels(ctx context.Context, school, department string) ([]string, error) {
	st, err := p.structure(ctx)
	if err != nil {
		return nil, err
	}
	n := 4
	if v, ok := st.Schools[school][department]; ok && v > 0 {
		n = v
	}
	levels := make([]string, n)
	for i := range levels {
		levels[i] = fmt.Sprintf("%d", (i+1)*100)
	}
	return levels, nil
}

// SchoolAbbr returns the short code for a school. Falls back to the text in
// the trailing parentheses of the name, then to the first four characters.
func (p *Provider) SchoolAbbr(ctx context.Context, school string) (string, error) {
	st, err := p.structure(ctx)
	if err != nil {
		return "", err
	}
	if abbr := st.Abbreviations[school]; abbr != "" {
		return strings.ToUpper(abbr), nil
	}
	if open, close := strings.LastIndex(school, "("), strings.LastIndex(school, ")"); open >= 0 && close > open {
		return strings.ToUpper(school[open+1 : close]), nil
	}
	if len(school) > 4 {
		school = school[:4]
	}
	return strings.ToUpper(school), nil
}

// Full returns the whole structure document.
func (p *Provider) Full(ctx context.Context) (Structure, error) {
	st, err := p.structure(ctx)
	if err != nil {
		return Structure{}, err
	}
	return *st, nil
}

// Save replaces the stored structure. The current revision is fetched fresh
// because the document may have been edited since it was memoized.
func (p *Provider) Save(ctx context.Context, st Structure) error {
	if len(st.Schools) == 0 {
		return fmt.Errorf("catalog: refusing to save empty structure")
	}
	var current Structure
	rev, err := p.store.ReadJSON(ctx, structurePath, &current)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("catalog: save structure: %w", err)
	}
	if _, err := p.store.WriteJSON(ctx, structurePath, st, "Update school/dept structure", rev); err != nil {
		return fmt.Errorf("catalog: save structure: %w", err)
	}
	p.mu.Lock()
	p.cached = &st
	p.mu.Unlock()
	return nil
}
