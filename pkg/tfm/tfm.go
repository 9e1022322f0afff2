// Package tfm implements target framework moniker (TFM) normalization,
// priority ordering, and compatibility checks between package frameworks
// and a resolution target.
//
// Monikers fall into three families:
//   - netstandard (portable API surface, e.g. "netstandard2.0")
//   - netcoreapp / netN.M (the modern runtime, e.g. "netcoreapp3.1", "net8.0")
//   - net framework (the legacy runtime, e.g. "net45", "net48")
//
// Family membership follows the moniker's spelling: a dotless "net"
// moniker longer than five characters, such as "net461", is grouped with
// the modern runtime.
//
// Each known moniker maps to an integer priority used to pick the best
// matching assemblies when a package ships binaries for several frameworks.
package tfm

import (
	"regexp"
	"strings"
)

// ExactMatchBonus is added to a score when the package framework string
// equals the target verbatim, so an exact folder match always beats a
// merely compatible one.
const ExactMatchBonus = 10_000

// priorities orders known monikers from oldest netstandard (lowest) to the
// latest unified net release (highest). Unknown monikers score zero and are
// compatible only with an identical moniker.
var priorities = map[string]int{
	"netstandard1.0": 10,
	"netstandard1.1": 11,
	"netstandard1.2": 12,
	"netstandard1.3": 13,
	"netstandard1.4": 14,
	"netstandard1.5": 15,
	"netstandard1.6": 16,
	"netstandard2.0": 20,
	"netstandard2.1": 21,

	"net45":  30,
	"net451": 31,
	"net452": 32,
	"net46":  33,
	"net461": 34,
	"net462": 35,
	"net47":  36,
	"net471": 37,
	"net472": 38,
	"net48":  39,
	"net481": 40,

	"netcoreapp2.0": 50,
	"netcoreapp2.1": 51,
	"netcoreapp2.2": 52,
	"netcoreapp3.0": 53,
	"netcoreapp3.1": 54,

	"net5.0": 70,
	"net6.0": 71,
	"net7.0": 72,
	"net8.0": 73,
	"net9.0": 74,
}

// unifiedShortRE matches dotless five-char unified monikers like "net50"
// that some packages use as lib/ folder names instead of "net5.0".
var unifiedShortRE = regexp.MustCompile(`^net([5-9])(\d)$`)

// Normalize converts a raw framework string to canonical form: lowercased,
// trimmed, with dotless unified monikers ("net80") expanded to their dotted
// spelling ("net8.0"). Other forms pass through unchanged.
func Normalize(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	if m := unifiedShortRE.FindStringSubmatch(id); m != nil {
		return "net" + m[1] + "." + m[2]
	}
	return id
}

// Priority returns the ordering score for a normalized moniker, or 0 if the
// moniker is unknown.
func Priority(id string) int {
	return priorities[id]
}

// Known reports whether the normalized moniker appears in the priority table.
func Known(id string) bool {
	_, ok := priorities[id]
	return ok
}

// family buckets a normalized moniker. A bare "net" moniker containing a dot
// or longer than five characters is the unified runtime; shorter dotless
// forms are the legacy framework.
func family(id string) string {
	switch {
	case strings.HasPrefix(id, "netstandard"):
		return "standard"
	case strings.HasPrefix(id, "netcoreapp"):
		return "core"
	case strings.HasPrefix(id, "net"):
		if strings.Contains(id, ".") || len(id) > 5 {
			return "core"
		}
		return "framework"
	}
	return ""
}

// Compatible reports whether assemblies built for pkg can be loaded by a
// runtime targeting target. Both arguments are raw moniker strings.
//
// netstandard packages cross over to modern and framework targets at the
// documented support thresholds: netstandard2.0 requires at least
// netcoreapp2.0 or net461, netstandard2.1 requires at least netcoreapp3.0.
// Otherwise compatibility requires the same family and a package priority
// no greater than the target's.
func Compatible(pkg, target string) bool {
	if pkg == "" || target == "" {
		return false
	}

	p, t := Normalize(pkg), Normalize(target)
	if p == t {
		return true
	}

	pp, pok := priorities[p]
	tp, tok := priorities[t]
	if !pok || !tok {
		return false
	}

	pf, tf := family(p), family(t)
	if pf == "standard" && tf != "standard" && strings.HasPrefix(t, "net") {
		switch p {
		case "netstandard2.0":
			return tp >= priorities["netcoreapp2.0"] || tp >= priorities["net461"]
		case "netstandard2.1":
			return tp >= priorities["netcoreapp3.0"]
		}
		return false
	}

	return pp <= tp && pf == tf
}

// Score ranks a package framework against a target for assembly selection.
// The base score is the package moniker's priority; an exact raw string
// match adds ExactMatchBonus.
func Score(pkg, target string) int {
	score := Priority(Normalize(pkg))
	if pkg == target {
		score += ExactMatchBonus
	}
	return score
}
