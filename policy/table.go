package policy

import (
	"fmt"
	"strings"
)

// ValidateOptions controls how strictly Validate checks a set of rules.
type ValidateOptions struct {
	// AllowOverlap permits a rating to be listed by more than one rule. The first rule
	// (in configured order) listing a rating wins.
	AllowOverlap bool
}

// Table is a validated, ordered set of rules. Every rating from 0 to 5 resolves to exactly
// one rule. A Table is immutable and safe for concurrent use.
type Table struct {
	rules []*Rule
	index [int(MaxRating) + 1]int
}

// Validate checks rules and returns a Table for them. The rules are copied, so later
// changes to rules do not affect the Table. A nil opts is the same as the zero
// ValidateOptions.
func Validate(rules []*Rule, opts *ValidateOptions) (*Table, error) {

	if opts == nil {
		opts = &ValidateOptions{}
	}

	if len(rules) == 0 {
		return nil, tableError("no rules defined")
	}

	t := &Table{
		rules: make([]*Rule, len(rules)),
	}

	for i := range t.index {
		t.index[i] = -1
	}

	for idx, r := range rules {

		if r == nil {
			return nil, ruleError(idx, "rule is empty")
		}

		err := validateRule(idx, r)

		if err != nil {
			return nil, err
		}

		copy_r := *r
		copy_r.Ratings = make([]Rating, len(r.Ratings))
		copy(copy_r.Ratings, r.Ratings)

		if copy_r.Name == "" {
			copy_r.Name = defaultRuleName(copy_r.Ratings)
		}

		t.rules[idx] = &copy_r

		for _, rating := range copy_r.Ratings {

			prev := t.index[rating]

			if prev == idx {
				continue
			}

			if prev != -1 {

				if !opts.AllowOverlap {
					return nil, ruleError(idx, "rating %d is already matched by rule at offset %d", rating, prev)
				}

				continue
			}

			t.index[rating] = idx
		}
	}

	missing := make([]string, 0)

	for rating, idx := range t.index {

		if idx == -1 {
			missing = append(missing, fmt.Sprintf("%d", rating))
		}
	}

	if len(missing) > 0 {
		return nil, tableError("no rule for rating(s) %s", strings.Join(missing, ", "))
	}

	return t, nil
}

func validateRule(idx int, r *Rule) error {

	if len(r.Ratings) == 0 {
		return ruleError(idx, "rule does not list any ratings")
	}

	for _, rating := range r.Ratings {

		if !rating.Valid() {
			return ruleError(idx, "rating %d is outside %d-%d", rating, MinRating, MaxRating)
		}
	}

	if r.Bypass {
		return nil
	}

	switch r.Resize.Mode {
	case ResizePreserve:
		// pass
	case ResizePercentage:

		if r.Resize.Value <= 0 || r.Resize.Value > 100 {
			return ruleError(idx, "resize percentage must be between 1 and 100, not %d", r.Resize.Value)
		}

	case ResizeMegapixels:

		if r.Resize.Value <= 0 {
			return ruleError(idx, "resize megapixels must be greater than 0, not %d", r.Resize.Value)
		}

	default:
		return ruleError(idx, "unknown resize mode %d", r.Resize.Mode)
	}

	if r.Quality < 1 || r.Quality > 100 {
		return ruleError(idx, "quality must be between 1 and 100, not %d", r.Quality)
	}

	if !r.Format.known() {
		return ruleError(idx, "unknown format '%s'", r.Format)
	}

	// recognised so that older configuration files parse, but there is no encoder
	if r.Format == FormatHEIC {
		return ruleError(idx, "format '%s' can not be written", r.Format)
	}

	return nil
}

// Resolve returns the first rule, in configured order, which lists rating. The returned
// Rule is shared and must not be modified.
func (t *Table) Resolve(rating Rating) (*Rule, error) {

	if !rating.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrRatingOutOfRange, rating)
	}

	return t.rules[t.index[rating]], nil
}

// Rules returns the rules in the table, in configured order.
func (t *Table) Rules() []*Rule {

	rules := make([]*Rule, len(t.rules))
	copy(rules, t.rules)
	return rules
}
