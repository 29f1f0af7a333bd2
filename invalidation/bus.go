/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package invalidation removes cached read results made stale by successful mutations.
package invalidation

import (
	"sort"
	"sync"

	"github.com/acronis/go-apiorch/log"
)

// Tag describes what a successful mutation affects.
type Tag struct {
	Resource string
	Tenant   string
	Kind     string
}

// Entry is the scope of a cached read result.
type Entry struct {
	Kind     string
	Resource string
	Tenant   string
}

// Rule decides whether a cached entry is stale after the mutation described by tag.
type Rule func(tag Tag, entry Entry) bool

// DefaultRule matches entries of the same resource within the same tenant.
// An empty tenant on either side matches any tenant.
func DefaultRule(tag Tag, entry Entry) bool {
	if entry.Resource != tag.Resource {
		return false
	}
	return tag.Tenant == "" || entry.Tenant == "" || tag.Tenant == entry.Tenant
}

// Store is the cache the bus removes entries from.
type Store interface {
	// RemoveMatching removes all entries for which match returns true and returns their number.
	RemoveMatching(match func(Entry) bool) int
}

// BusOpts represents options for Bus.
type BusOpts struct {
	Logger log.FieldLogger
}

// Bus applies per-resource invalidation rules to a Store.
type Bus struct {
	store  Store
	logger log.FieldLogger

	mu    sync.RWMutex
	rules map[string]Rule
	links map[string][]string
}

// NewBus creates a Bus working on store.
func NewBus(store Store, opts BusOpts) *Bus {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &Bus{
		store:  store,
		logger: opts.Logger,
		rules:  make(map[string]Rule),
		links:  make(map[string][]string),
	}
}

// Register sets the rule used for mutations of resource, replacing DefaultRule.
// A nil rule restores DefaultRule.
func (b *Bus) Register(resource string, rule Rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rule == nil {
		delete(b.rules, resource)
		return
	}
	b.rules[resource] = rule
}

// Link declares that cached entries of dependents become stale whenever resource is mutated.
// Links are transitive.
func (b *Bus) Link(resource string, dependents ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dep := range dependents {
		if dep == resource || containsString(b.links[resource], dep) {
			continue
		}
		b.links[resource] = append(b.links[resource], dep)
	}
}

// OnMutation removes every cached entry made stale by the mutation and returns the number of removed entries.
func (b *Bus) OnMutation(tag Tag) int {
	checks := b.collectChecks(tag)
	removed := b.store.RemoveMatching(matchAny(checks))

	resources := make([]string, 0, len(checks))
	for _, c := range checks {
		resources = append(resources, c.tag.Resource)
	}
	b.logger.Debug("cache invalidated",
		log.String("resource", tag.Resource),
		log.String("tenant", tag.Tenant),
		log.String("kind", tag.Kind),
		log.Strings("affected_resources", resources),
		log.Int("removed", removed),
	)
	return removed
}

// Matcher returns the predicate OnMutation applies to cached entries for the mutation described by tag,
// linked resources included.
func (b *Bus) Matcher(tag Tag) func(Entry) bool {
	return matchAny(b.collectChecks(tag))
}

type check struct {
	tag  Tag
	rule Rule
}

func (b *Bus) collectChecks(tag Tag) []check {
	b.mu.RLock()
	defer b.mu.RUnlock()

	visited := map[string]bool{tag.Resource: true}
	queue := []string{tag.Resource}
	for i := 0; i < len(queue); i++ {
		for _, dep := range b.links[queue[i]] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	sort.Strings(queue[1:])

	checks := make([]check, 0, len(queue))
	for _, resource := range queue {
		rule, ok := b.rules[resource]
		if !ok {
			rule = DefaultRule
		}
		checks = append(checks, check{tag: Tag{Resource: resource, Tenant: tag.Tenant, Kind: tag.Kind}, rule: rule})
	}
	return checks
}

func matchAny(checks []check) func(Entry) bool {
	return func(entry Entry) bool {
		for _, c := range checks {
			if c.rule(c.tag, entry) {
				return true
			}
		}
		return false
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
