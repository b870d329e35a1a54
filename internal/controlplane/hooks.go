// Package controlplane implements contracts.ControlPlaneHooks — the
// optional component-ownership and blast-radius query hooks consumed when a
// run's LockMode is "derived" (§4.9). Adapted from the teacher's
// internal/context package: both deriving a task's write scope and
// propagating blast radius are "project an entity through a read-only
// index, return a bounded report" problems, the same shape as assembling
// and bounding an LLM context window.
package controlplane

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/taskforge/orchestrator/contracts"
)

// ComponentIndex maps a component (resource) name to the repo-relative
// paths it owns — the resolved form of the `resources[]` config option.
type ComponentIndex map[string][]string

// ComponentGraph maps a component to the components that depend on it, used
// to walk outward from a set of changed components to their blast radius.
type ComponentGraph map[string][]string

// Hooks implements contracts.ControlPlaneHooks.
type Hooks struct {
	cache            *ownershipCache
	graph            ComponentGraph
	surfacePatterns  map[string][]string // component -> glob patterns, from config.surfacePatterns
	resourcePrefix   string
	fallbackResource string
	maxBlastRadius   int // 0 = unbounded
}

// Deps bundles Hooks' construction inputs, mirroring the
// `control_plane{...}` config block (§6.4).
type Deps struct {
	Source           ComponentSource
	Graph            ComponentGraph
	SurfacePatterns  map[string][]string
	ResourcePrefix   string
	FallbackResource string
	MaxBlastRadius   int
}

// New returns a ControlPlaneHooks implementation.
func New(d Deps) *Hooks {
	return &Hooks{
		cache:            newOwnershipCache(d.Source),
		graph:            d.Graph,
		surfacePatterns:  d.SurfacePatterns,
		resourcePrefix:   d.ResourcePrefix,
		fallbackResource: d.FallbackResource,
		maxBlastRadius:   d.MaxBlastRadius,
	}
}

// DeriveTaskWriteScopeReport implements the ScopeReportBuilder role
// (adapted from context_builder.go's Build): it resolves a task's manifest
// name against the component index (optionally under resourcePrefix), then
// widens the match using surfacePatterns against the manifest's declared
// read hints — the surface-lock overlay, which per the decided Open
// Question only ever runs here, in derived mode, never layered on top of a
// manifest's own declared locks.
func (h *Hooks) DeriveTaskWriteScopeReport(ctx context.Context, manifest *contracts.TaskManifest, model string) (contracts.ScopeReport, error) {
	if manifest == nil {
		return contracts.ScopeReport{}, contracts.ErrInvalidInput
	}

	matched := make(map[string]struct{})
	var notes []string

	if name := h.resourcePrefix + manifest.Name; name != "" {
		if _, ok := h.cache.OwnedPaths(name); ok {
			matched[name] = struct{}{}
			notes = append(notes, fmt.Sprintf("matched component %q by task name", name))
		}
	}

	for component, patterns := range h.surfacePatterns {
		if h.hintsMatchAny(manifest, patterns) {
			matched[component] = struct{}{}
			notes = append(notes, fmt.Sprintf("matched component %q by surface pattern", component))
		}
	}

	var resources []string
	var paths []string
	for component := range matched {
		resources = append(resources, component)
		if owned, ok := h.cache.OwnedPaths(component); ok {
			paths = append(paths, owned...)
		}
	}
	sort.Strings(resources)
	sort.Strings(paths)

	confidence := 1.0
	if len(resources) == 0 {
		if h.fallbackResource == "" {
			return contracts.ScopeReport{}, fmt.Errorf("no component matched task %s and no fallback_resource configured", manifest.ID)
		}
		resources = []string{h.fallbackResource}
		if owned, ok := h.cache.OwnedPaths(h.fallbackResource); ok {
			paths = owned
		}
		confidence = 0.0
		notes = append(notes, fmt.Sprintf("no component matched; used fallback resource %q", h.fallbackResource))
	}

	locks := contracts.NormalizeLocks(contracts.RawLocks{Reads: paths, Writes: paths})

	return contracts.ScopeReport{
		DerivedWriteResources: resources,
		DerivedWritePaths:     paths,
		DerivedLocks:          locks,
		Confidence:            confidence,
		Notes:                 notes,
	}, nil
}

// hintsMatchAny reports whether any of a task's declared read hints or test
// paths match one of a component's surface glob patterns.
func (h *Hooks) hintsMatchAny(manifest *contracts.TaskManifest, patterns []string) bool {
	hints := make([]string, 0, len(manifest.Locks.Reads)+len(manifest.TestPaths))
	hints = append(hints, manifest.Locks.Reads...)
	hints = append(hints, manifest.TestPaths...)

	for _, hint := range hints {
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, hint); ok {
				return true
			}
		}
	}
	return false
}

// BlastRadius implements the BlastRadiusPropagator role (adapted from
// context_router.go's Route): given a set of changed components, it walks
// the dependency edges of the component graph outward (BFS) to produce the
// informational blast-radius set, excluding the originating components
// themselves, then bounds it via the BlastRadiusTruncator role (adapted
// from context_compactor.go's keep_last_n strategy).
func (h *Hooks) BlastRadius(ctx context.Context, changedComponents []string) ([]string, error) {
	if h.graph == nil {
		return nil, nil
	}

	seed := make(map[string]struct{}, len(changedComponents))
	for _, c := range changedComponents {
		seed[c] = struct{}{}
	}

	visited := make(map[string]struct{})
	queue := append([]string(nil), changedComponents...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range h.graph[current] {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			queue = append(queue, dependent)
		}
	}

	radius := make([]string, 0, len(visited))
	for c := range visited {
		if _, isSeed := seed[c]; isSeed {
			continue
		}
		radius = append(radius, c)
	}
	sort.Strings(radius)

	return h.truncateBlastRadius(radius), nil
}

// truncateBlastRadius bounds the blast-radius list to maxBlastRadius
// entries, the same growth-without-limit problem context_compactor.go's
// keep_last_n strategy solves for context messages.
func (h *Hooks) truncateBlastRadius(radius []string) []string {
	if h.maxBlastRadius <= 0 || len(radius) <= h.maxBlastRadius {
		return radius
	}
	return radius[:h.maxBlastRadius]
}

var _ contracts.ControlPlaneHooks = (*Hooks)(nil)
