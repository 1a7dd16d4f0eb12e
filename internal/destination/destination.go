// Package destination resolves where recovered files land.
//
// Each collection profile carries an ordered list of regex rules mapping file
// keys to destination buckets; the first matching rule wins. Keys matching an
// excluded suffix are dropped from recovery entirely. Files no rule claims
// fall through to the request's destination override, then to the configured
// default bucket.
package destination

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/frostline/rehydrate/pkg/types"
)

// Resolution is the per-file outcome of destination resolution.
type Resolution struct {
	Bucket   string
	Excluded bool
	Tier     types.LatencyClass
}

type compiledRule struct {
	pattern *regexp.Regexp
	bucket  string
}

type compiledProfile struct {
	tier     types.LatencyClass
	excluded []string
	rules    []compiledRule
}

// Resolver maps file keys to destination buckets through collection profiles.
type Resolver struct {
	defaultBucket string
	profiles      map[string]*compiledProfile
}

// NewResolver compiles and validates the destination configuration.
func NewResolver(cfg *types.DestinationConfig) (*Resolver, error) {
	if cfg == nil || cfg.DefaultBucket == "" {
		return nil, fmt.Errorf("destination default bucket is required")
	}

	r := &Resolver{
		defaultBucket: cfg.DefaultBucket,
		profiles:      make(map[string]*compiledProfile),
	}
	for _, profile := range cfg.Profiles {
		if profile.Name == "" {
			return nil, fmt.Errorf("profile name is required")
		}
		if _, exists := r.profiles[profile.Name]; exists {
			return nil, fmt.Errorf("duplicate profile %q", profile.Name)
		}
		compiled, err := compileProfile(profile)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", profile.Name, err)
		}
		r.profiles[profile.Name] = compiled
	}
	return r, nil
}

func compileProfile(profile types.CollectionProfile) (*compiledProfile, error) {
	cp := &compiledProfile{
		tier:     profile.Tier,
		excluded: profile.ExcludedTypes,
	}
	for i, rule := range profile.Rules {
		if rule.Bucket == "" {
			return nil, fmt.Errorf("rule %d: bucket is required", i)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		cp.rules = append(cp.rules, compiledRule{pattern: pattern, bucket: rule.Bucket})
	}
	return cp, nil
}

// Resolve maps a file key to its destination. An empty profile name applies
// no rules or exclusions, only the override and default fallbacks.
func (r *Resolver) Resolve(profileName, fileKey, override string) (Resolution, error) {
	fallback := r.defaultBucket
	if override != "" {
		fallback = override
	}

	if profileName == "" {
		return Resolution{Bucket: fallback}, nil
	}
	profile, ok := r.profiles[profileName]
	if !ok {
		return Resolution{}, fmt.Errorf("profile %q not found", profileName)
	}

	res := Resolution{Bucket: fallback, Tier: profile.tier}
	for _, suffix := range profile.excluded {
		if strings.HasSuffix(fileKey, suffix) {
			res.Excluded = true
			return res, nil
		}
	}
	for _, rule := range profile.rules {
		if rule.pattern.MatchString(fileKey) {
			res.Bucket = rule.bucket
			break
		}
	}
	return res, nil
}

// Profiles returns the names of all registered profiles.
func (r *Resolver) Profiles() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
