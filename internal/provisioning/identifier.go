package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kimshangyup/neulbom/pkg/errors"
)

// maxSuffixAttempts bounds collision resolution for generated identifiers.
// Exhausting it is surfaced as ErrIdentifierExhausted, never swallowed.
const maxSuffixAttempts = 50

// emailChecker is the uniqueness lookup identifier generation needs.
type emailChecker interface {
	AccountEmailExists(ctx context.Context, email string) (bool, error)
}

// slugify lower-cases and strips everything outside [a-z0-9]. Non-Latin
// input can collapse to an empty slug, which callers must handle.
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLower(r) && r < 128 || unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// deterministicEmail derives a login email from the student and school
// names, appending an incrementing numeric suffix until the candidate is
// unused both in the store and in the current batch.
func deterministicEmail(ctx context.Context, checker emailChecker, used map[string]bool, name, schoolName, domain string) (string, error) {
	nameSlug := slugify(name)
	schoolSlug := slugify(schoolName)
	if nameSlug == "" {
		nameSlug = "student"
	}
	if schoolSlug == "" {
		schoolSlug = "school"
	}
	base := nameSlug + "." + schoolSlug

	for attempt := 0; attempt <= maxSuffixAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s.%d", base, attempt)
		}
		email := candidate + "@" + domain

		if used[email] {
			continue
		}
		exists, err := checker.AccountEmailExists(ctx, email)
		if err != nil {
			return "", err
		}
		if !exists {
			used[email] = true
			return email, nil
		}
	}
	return "", errors.ErrIdentifierExhausted
}

// opaqueEmail builds a timestamp+random login email, sidestepping
// transliteration of non-Latin names. Collisions are vanishingly rare but
// still resolved by regeneration under the same bounded cap.
func opaqueEmail(ctx context.Context, checker emailChecker, used map[string]bool, now time.Time, domain string) (string, error) {
	for attempt := 0; attempt <= maxSuffixAttempts; attempt++ {
		token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		email := fmt.Sprintf("s%d%s@%s", now.Unix(), token, domain)

		if used[email] {
			continue
		}
		exists, err := checker.AccountEmailExists(ctx, email)
		if err != nil {
			return "", err
		}
		if !exists {
			used[email] = true
			return email, nil
		}
	}
	return "", errors.ErrIdentifierExhausted
}
