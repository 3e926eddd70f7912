package policy

import (
	"context"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

// RuleSet is a static, file-backed authorizer.
//
//	name = "crew-rules"
//	deny_authors = ["intern"]
//	deny_kinds = ["veto"]
//
//	[author_tiers]
//	scratch-agent = ["working"]
type RuleSet struct {
	Name        string              `toml:"name"`
	DenyAuthors []string            `toml:"deny_authors"`
	DenyKinds   []string            `toml:"deny_kinds"`
	AuthorTiers map[string][]string `toml:"author_tiers"`
}

// LoadRules decodes a RuleSet from a TOML file.
func LoadRules(path string) (*RuleSet, error) {
	rs := &RuleSet{}
	if _, err := toml.DecodeFile(path, rs); err != nil {
		return nil, fmt.Errorf("decoding policy rules %s: %w", path, err)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("policy rules %s: %w", path, err)
	}
	if rs.Name == "" {
		rs.Name = "rules"
	}
	return rs, nil
}

// Validate checks that every tier named in author_tiers parses.
func (r *RuleSet) Validate() error {
	for author, tiers := range r.AuthorTiers {
		for _, t := range tiers {
			if _, err := entry.ParseTier(t); err != nil {
				return fmt.Errorf("author %q: %w", author, err)
			}
		}
	}
	return nil
}

// Authorize applies the rules in order: denied authors, denied kinds, then
// per-author tier restrictions.
func (r *RuleSet) Authorize(_ context.Context, intent CommitIntent) (Decision, error) {
	by := r.Name
	if by == "" {
		by = "rules"
	}

	if slices.Contains(r.DenyAuthors, intent.Author) {
		return Deny(by, "deny_authors", fmt.Sprintf("author %q may not commit", intent.Author)), nil
	}
	if slices.Contains(r.DenyKinds, string(intent.Kind)) {
		return Deny(by, "deny_kinds", fmt.Sprintf("kind %q may not be committed", intent.Kind)), nil
	}

	if allowed, ok := r.AuthorTiers[intent.Author]; ok {
		permitted := false
		for _, t := range allowed {
			if tier, err := entry.ParseTier(t); err == nil && tier == intent.Tier {
				permitted = true
				break
			}
		}
		if !permitted {
			return Deny(by, "author_tiers", fmt.Sprintf("author %q may not write to the %s tier", intent.Author, intent.Tier)), nil
		}
	}

	return Allow(by), nil
}
