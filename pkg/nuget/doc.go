// Package nuget provides access to the NuGet v3 registry API and the
// .nuspec manifest format.
//
// The package has two concerns:
//
//   - Client talks to the registry over HTTPS: latest-version lookups via
//     the search service with a flat-container fallback, and .nupkg archive
//     downloads. The client deliberately performs no caching and no
//     retries; the on-disk package store owns cache policy, and a single
//     failed lookup falls through to the next resolution strategy.
//
//   - Dependencies / DependenciesFromDir read the XML manifest inside an
//     archive (or extracted package directory) and return the dependencies
//     applying to a target framework, honoring framework-conditional
//     dependency groups.
//
// All identifiers and versions are lowercased on the wire, following the
// flat-container URL convention.
package nuget
