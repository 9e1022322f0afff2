package nuget

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugo-cli/nugo/pkg/tfm"
)

// Dependency is a package dependency declared in a .nuspec manifest.
// Framework records which target framework group the declaration came from;
// dependencies declared outside any group carry the resolution target.
// Version is empty when the manifest omitted the attribute; the resolver
// binds it to the latest published version.
type Dependency struct {
	ID        string
	Version   string
	Framework string
}

// nuspec mirrors the manifest XML. The document declares a default
// namespace on the root element; encoding/xml matches local names, which
// inherits it for all child lookups.
type nuspec struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		ID           string `xml:"id"`
		Version      string `xml:"version"`
		Dependencies struct {
			Groups []struct {
				TargetFramework string       `xml:"targetFramework,attr"`
				Dependencies    []dependency `xml:"dependency"`
			} `xml:"group"`
			Direct []dependency `xml:"dependency"`
		} `xml:"dependencies"`
	} `xml:"metadata"`
}

type dependency struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// Dependencies extracts the dependencies of a package archive that apply to
// the given target framework.
//
// When the manifest groups dependencies by framework, only groups whose
// targetFramework is compatible with target contribute, and each dependency
// inherits its group's framework. Ungrouped dependencies apply
// unconditionally and are tagged with the target itself. Dependencies
// without an id attribute are dropped.
func Dependencies(archive []byte, target string) ([]Dependency, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".nuspec") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open manifest %s: %w", f.Name, err)
		}
		defer rc.Close()
		return parseNuspec(rc, target)
	}
	return nil, fmt.Errorf("archive has no .nuspec manifest")
}

// DependenciesFromDir reads the manifest of an extracted package directory.
// The manifest is the single .nuspec file at the directory root.
func DependenciesFromDir(dir, target string) ([]Dependency, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.nuspec"))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no .nuspec manifest in %s", dir)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return parseNuspec(f, target)
}

func parseNuspec(r io.Reader, target string) ([]Dependency, error) {
	var doc nuspec
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	var deps []Dependency
	groups := doc.Metadata.Dependencies.Groups
	if len(groups) > 0 {
		for _, g := range groups {
			if !tfm.Compatible(g.TargetFramework, target) {
				continue
			}
			for _, d := range g.Dependencies {
				if d.ID == "" {
					continue
				}
				deps = append(deps, Dependency{ID: d.ID, Version: d.Version, Framework: g.TargetFramework})
			}
		}
		return deps, nil
	}

	for _, d := range doc.Metadata.Dependencies.Direct {
		if d.ID == "" {
			continue
		}
		deps = append(deps, Dependency{ID: d.ID, Version: d.Version, Framework: target})
	}
	return deps, nil
}
