// Package variables resolves the configuration layers a process instance sees
// into a single binding set.
//
// Four optional layers contribute, lowest precedence first: workflow defaults,
// project configuration, a named profile's overrides, and request-supplied
// arguments. Nested maps merge key-by-key; scalars and sequences are replaced
// wholesale by the higher-precedence layer.
package variables

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProfile is returned when a submission names a profile that the
// project configuration does not define. This fails the submission
// synchronously.
var ErrUnknownProfile = errors.New("unknown profile")

// EventPayloadKey is the reserved variable key under which a resume event's
// payload is attached before the instance re-enters execution.
const EventPayloadKey = "eventPayload"

// Merge deep-merges layers in increasing precedence. Inputs are never
// mutated; the result is a fresh map. Values are JSON-shaped: scalars,
// []any sequences, and map[string]any mappings.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		mergeInto(out, layer)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		cur, ok := dst[k].(map[string]any)
		if !ok {
			// Replacing a scalar/sequence with a map, or first sighting.
			cur = make(map[string]any, len(sub))
			dst[k] = cur
		}
		mergeInto(cur, sub)
	}
}

// Resolve merges defaults < project < profile < args. profileName selects a
// layer from profiles; an empty name skips the profile layer. A non-empty
// name that is absent from profiles is a configuration error.
func Resolve(defaults, project map[string]any, profiles map[string]map[string]any, profileName string, args map[string]any) (map[string]any, error) {
	var profile map[string]any
	if profileName != "" {
		p, ok := profiles[profileName]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profileName)
		}
		profile = p
	}
	return Merge(defaults, project, profile, args), nil
}

// ExtractOut copies the declared out variable paths from vars. Paths are
// dotted (e.g. "result.status"); paths absent after execution are silently
// omitted rather than erroring.
func ExtractOut(vars map[string]any, declared []string) map[string]any {
	if len(declared) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, path := range declared {
		v, ok := Lookup(vars, path)
		if !ok {
			continue
		}
		out[path] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Lookup resolves a dotted key path against a nested map.
func Lookup(vars map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(vars)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
