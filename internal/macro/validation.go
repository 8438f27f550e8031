package macro

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxSlugLength     = 50
	maxDescriptionLen = 500
	maxSettingsKeys   = 30
	slugPattern       = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

// ValidateMacro checks a macro before it is stored.
//
// Item types must be registered and settings must be well formed. The
// bracket structure is not checked here: a macro may be saved half-edited
// and is only required to be well formed when it is built for a run.
func ValidateMacro(m *Macro, registry *TypeRegistry, maxItems int) error {
	if m == nil {
		return ErrInvalidMacro
	}

	if err := ValidateName(m.Name); err != nil {
		return err
	}

	// Empty slug will be generated
	if m.Slug != "" {
		if err := ValidateSlug(m.Slug); err != nil {
			return err
		}
	}

	if m.Description != nil && len(*m.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidMacro, maxDescriptionLen)
	}

	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if len(m.Items) > maxItems {
		return fmt.Errorf("%w: %d items exceeds %d", ErrTooManyItems, len(m.Items), maxItems)
	}

	for i, it := range m.Items {
		if len(it.Settings) > maxSettingsKeys {
			return fmt.Errorf("item[%d]: %w: settings exceeds %d keys", i+1, ErrInvalidSettings, maxSettingsKeys)
		}
		if err := registry.ValidateItem(it); err != nil {
			return fmt.Errorf("item[%d]: %w", i+1, err)
		}
	}

	return nil
}

// ValidateName checks if a macro name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
// It lowercases, replaces spaces/underscores with hyphens, removes
// non-alphanumeric characters, and trims to maxSlugLength.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a macro or run.
func GenerateID() string {
	return uuid.New().String()
}
