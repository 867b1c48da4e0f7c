package authz

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Role represents a named, reusable bundle of permission tokens.
type Role struct {
	ID          int64
	Name        string
	Code        string
	Description string
	IsActive    bool
	Permissions PermissionSet
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment grants one role to one user.
type Assignment struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// tokenPattern is the resource:action grammar. Both segments are
// lowercase identifiers.
var tokenPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)

// ValidToken reports whether s matches the resource:action grammar.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// codePattern constrains role codes to stable machine identifiers.
var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidCode reports whether s is a usable role code.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// PermissionSet is a deduplicated set of permission tokens.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from tokens, collapsing duplicates.
// Returns ErrInvalidToken if any token violates the grammar.
func NewPermissionSet(tokens ...string) (PermissionSet, error) {
	set := make(PermissionSet, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if !ValidToken(t) {
			return nil, ErrInvalidToken
		}
		set[t] = struct{}{}
	}
	return set, nil
}

// Has reports membership of a single token.
func (s PermissionSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Union merges other into a new set.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	merged := make(PermissionSet, len(s)+len(other))
	for t := range s {
		merged[t] = struct{}{}
	}
	for t := range other {
		merged[t] = struct{}{}
	}
	return merged
}

// Tokens returns the sorted token list. Sorting keeps stored JSON and
// API responses deterministic.
func (s PermissionSet) Tokens() []string {
	tokens := make([]string, 0, len(s))
	for t := range s {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// NormalizeName trims and NFC-normalizes a role name or code so that
// uniqueness checks compare canonical forms.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
