// Package directive extracts inline package references from script source.
//
// Scripts declare NuGet dependencies in comment directives:
//
//	// #nuget: Newtonsoft.Json@13.0.3
//	// #package: Humanizer
//
// The keyword is case-insensitive and the version is optional. Local
// assembly references use the load form:
//
//	// #load: ./libs/Helpers.dll
package directive

import (
	"regexp"
	"strings"
)

// Ref is a package reference parsed from a directive. Version is empty when
// the directive named only a package id; the resolver binds it to the latest
// published version before resolution.
type Ref struct {
	ID      string
	Version string
}

// String renders the ref back to directive argument form: "id" or "id@version".
func (r Ref) String() string {
	if r.Version == "" {
		return r.ID
	}
	return r.ID + "@" + r.Version
}

var (
	packageRE = regexp.MustCompile(`(?im)^\s*//\s*#(?:nuget|package):\s*([^\s@]+)(?:@(\S+))?`)
	loadRE    = regexp.MustCompile(`(?im)^\s*//\s*#load:\s*(\S+)`)
)

// Parse returns the package refs declared in src, deduplicated, in first-seen
// order. Id and version tokens are not validated; the registry rejects
// malformed names. Empty input yields nil.
func Parse(src string) []Ref {
	var refs []Ref
	seen := make(map[string]bool)
	for _, m := range packageRE.FindAllStringSubmatch(src, -1) {
		ref := Ref{ID: m[1], Version: m[2]}
		key := strings.ToLower(ref.String())
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, ref)
	}
	return refs
}

// ParseLoads returns local assembly paths declared with #load directives,
// deduplicated, in first-seen order.
func ParseLoads(src string) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, m := range loadRE.FindAllStringSubmatch(src, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		paths = append(paths, m[1])
	}
	return paths
}
