package policy

import (
	"regexp"
	"strconv"
	"strings"
)

// RuleConfig is a policy rule as it appears in a configuration file, for example:
//
//	- rate: [0, 1, 2]
//	  commands:
//	    resize: 36m
//	    quality: 92%
//	    format: jpeg
type RuleConfig struct {
	Name     string            `yaml:"name,omitempty" json:"name,omitempty"`
	Rate     []int             `yaml:"rate" json:"rate"`
	Commands map[string]string `yaml:"commands,omitempty" json:"commands,omitempty"`
	// Older configuration files used "command" rather than "commands".
	Command map[string]string `yaml:"command,omitempty" json:"command,omitempty"`
}

var re_resize = regexp.MustCompile(`^([0-9]+)\s*([%m])$`)

var re_quality = regexp.MustCompile(`^([0-9]+)\s*%?$`)

// ParseRules converts rule definitions read from a configuration file into Rules. The
// rules are not validated; pass them to Validate to build a Table.
func ParseRules(configs []*RuleConfig) ([]*Rule, error) {

	rules := make([]*Rule, len(configs))

	for idx, cfg := range configs {

		if cfg == nil {
			return nil, ruleError(idx, "rule is empty")
		}

		r, err := parseRule(idx, cfg)

		if err != nil {
			return nil, err
		}

		rules[idx] = r
	}

	return rules, nil
}

func parseRule(idx int, cfg *RuleConfig) (*Rule, error) {

	ratings := make([]Rating, len(cfg.Rate))

	for i, v := range cfg.Rate {
		ratings[i] = Rating(v)
	}

	commands := make(map[string]string)

	for k, v := range cfg.Command {
		commands[strings.ToLower(k)] = v
	}

	for k, v := range cfg.Commands {
		commands[strings.ToLower(k)] = v
	}

	r := &Rule{
		Name:    cfg.Name,
		Ratings: ratings,
		Resize:  Resize{Mode: ResizePreserve},
		Format:  FormatPreserve,
	}

	has_quality := false

	for k, v := range commands {

		v = strings.ToLower(strings.TrimSpace(v))

		switch k {
		case "resize":

			rs, err := parseResize(v)

			if err != nil {
				return nil, ruleError(idx, "invalid resize option '%s'", v)
			}

			r.Resize = rs

		case "quality":

			m := re_quality.FindStringSubmatch(v)

			if m == nil {
				return nil, ruleError(idx, "invalid quality option '%s'", v)
			}

			q, err := strconv.Atoi(m[1])

			if err != nil {
				return nil, ruleError(idx, "invalid quality option '%s'", v)
			}

			r.Quality = q
			has_quality = true

		case "format":

			f, err := ParseFormat(v)

			if err != nil {
				return nil, ruleError(idx, "invalid format option '%s'", v)
			}

			r.Format = f

		default:
			return nil, ruleError(idx, "unknown command '%s'", k)
		}
	}

	if r.Resize.Mode == ResizePreserve && r.Format == FormatPreserve && !has_quality {
		r.Bypass = true
		return r, nil
	}

	if !has_quality {
		r.Quality = DefaultQuality
	}

	return r, nil
}

func parseResize(v string) (Resize, error) {

	if v == "" || v == "preserve" {
		return Resize{Mode: ResizePreserve}, nil
	}

	m := re_resize.FindStringSubmatch(v)

	if m == nil {
		return Resize{}, strconv.ErrSyntax
	}

	i, err := strconv.Atoi(m[1])

	if err != nil {
		return Resize{}, err
	}

	if m[2] == "m" {
		return Resize{Mode: ResizeMegapixels, Value: i}, nil
	}

	if i == 100 {
		return Resize{Mode: ResizePreserve}, nil
	}

	return Resize{Mode: ResizePercentage, Value: i}, nil
}
