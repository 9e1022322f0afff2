package resolve

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nugo-cli/nugo/pkg/directive"
	"github.com/nugo-cli/nugo/pkg/nuget"
	"github.com/nugo-cli/nugo/pkg/pkgcache"
)

// testPkg describes one package served by the fake registry.
type testPkg struct {
	nuspec string            // manifest XML
	files  map[string]string // archive entries beyond the manifest
}

// fakeRegistry serves the NuGet v3 endpoints the client uses: search,
// flat-container version index, and archive download.
type fakeRegistry struct {
	server   *httptest.Server
	packages map[string]testPkg // "id@version", lowercase
	latest   map[string]string  // id -> version, lowercase
	requests atomic.Int64
	searches atomic.Int64
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		packages: make(map[string]testPkg),
		latest:   make(map[string]string),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRegistry) add(id, version string, pkg testPkg) {
	id = strings.ToLower(id)
	f.packages[id+"@"+strings.ToLower(version)] = pkg
	f.latest[id] = version
}

func (f *fakeRegistry) client() *nuget.Client {
	return nuget.NewClientWithURLs(f.server.URL+"/query", f.server.URL+"/v3-flatcontainer")
}

func (f *fakeRegistry) handle(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/query"):
		f.searches.Add(1)
		id := strings.TrimPrefix(r.URL.Query().Get("q"), "packageid:")
		v, ok := f.latest[strings.ToLower(id)]
		if !ok {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		fmt.Fprintf(w, `{"data":[{"version":%q}]}`, v)

	case strings.HasSuffix(path, "/index.json"):
		parts := strings.Split(strings.Trim(path, "/"), "/")
		id := parts[len(parts)-2]
		v, ok := f.latest[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"versions":[%q]}`, v)

	case strings.HasSuffix(path, ".nupkg"):
		parts := strings.Split(strings.Trim(path, "/"), "/")
		id, version := parts[len(parts)-3], parts[len(parts)-2]
		pkg, ok := f.packages[id+"@"+version]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(buildNupkg(id, pkg))

	default:
		http.NotFound(w, r)
	}
}

func buildNupkg(id string, pkg testPkg) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	mw, _ := zw.Create(id + ".nuspec")
	mw.Write([]byte(pkg.nuspec))
	for name, content := range pkg.files {
		fw, _ := zw.Create(name)
		fw.Write([]byte(content))
	}
	zw.Close()
	return buf.Bytes()
}

// manifest renders a nuspec with the real default namespace and the given
// dependencies block.
func manifest(id, version, depsXML string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>%s</id>
    <version>%s</version>
    %s
  </metadata>
</package>`, id, version, depsXML)
}

func newTestResolver(t *testing.T, f *fakeRegistry, target string) *Resolver {
	t.Helper()
	store, err := pkgcache.NewStore(t.TempDir(), t.Logf)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewResolver(f.client(), store, Options{Target: target, Logger: t.Logf})
}

func TestResolveSinglePackage(t *testing.T) {
	f := newFakeRegistry(t)
	f.add("J", "13.0.3", testPkg{
		nuspec: manifest("J", "13.0.3", ""),
		files:  map[string]string{"lib/netstandard2.0/J.dll": "bin"},
	})
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), []directive.Ref{{ID: "J", Version: "13.0.3"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], filepath.FromSlash("lib/netstandard2.0/J.dll")) {
		t.Fatalf("paths = %v, want one path ending in lib/netstandard2.0/J.dll", paths)
	}

	// The cache entry carries the hash sentinel.
	dir := filepath.Dir(filepath.Dir(filepath.Dir(paths[0])))
	if _, err := os.Stat(filepath.Join(dir, pkgcache.HashSentinel)); err != nil {
		t.Errorf("hash sentinel missing: %v", err)
	}

	// A second resolution is answered from memory: no further requests.
	before := f.requests.Load()
	again, err := r.Resolve(context.Background(), []directive.Ref{{ID: "J", Version: "13.0.3"}})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if f.requests.Load() != before {
		t.Errorf("second Resolve issued %d network requests, want 0", f.requests.Load()-before)
	}
	if len(again) != 1 || again[0] != paths[0] {
		t.Errorf("second Resolve = %v, want %v", again, paths)
	}
}

func TestResolveBindsLatestVersion(t *testing.T) {
	f := newFakeRegistry(t)
	f.add("J", "13.0.3", testPkg{
		nuspec: manifest("J", "13.0.3", ""),
		files:  map[string]string{"lib/netstandard2.0/J.dll": "bin"},
	})
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), []directive.Ref{{ID: "J"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %v, want 1", paths)
	}
	if f.searches.Load() != 1 {
		t.Errorf("latest-version lookups = %d, want exactly 1", f.searches.Load())
	}

	// An explicit ref to the bound version lands on the same artifact.
	explicit, err := r.Resolve(context.Background(), []directive.Ref{{ID: "J", Version: "13.0.3"}})
	if err != nil {
		t.Fatalf("explicit Resolve: %v", err)
	}
	if len(explicit) != 1 || explicit[0] != paths[0] {
		t.Errorf("explicit = %v, want %v", explicit, paths)
	}
}

func TestResolveTransitiveDependency(t *testing.T) {
	f := newFakeRegistry(t)
	f.add("A", "1.0.0", testPkg{
		nuspec: manifest("A", "1.0.0", `<dependencies>
      <group targetFramework="net8.0">
        <dependency id="B" version="2.0.0" />
      </group>
    </dependencies>`),
		files: map[string]string{"lib/net8.0/A.dll": "bin"},
	})
	f.add("B", "2.0.0", testPkg{
		nuspec: manifest("B", "2.0.0", ""),
		files:  map[string]string{"lib/netstandard2.0/B.dll": "bin"},
	})
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), []directive.Ref{{ID: "A"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want A and B assemblies", paths)
	}
	if !strings.HasSuffix(paths[0], "A.dll") || !strings.HasSuffix(paths[1], "B.dll") {
		t.Errorf("discovery order not preserved: %v", paths)
	}
}

func TestResolveFrameworkConditionalGroups(t *testing.T) {
	f := newFakeRegistry(t)
	f.add("A", "1.0.0", testPkg{
		nuspec: manifest("A", "1.0.0", `<dependencies>
      <group targetFramework="netstandard2.0">
        <dependency id="B" version="1.0.0" />
      </group>
      <group targetFramework="net48">
        <dependency id="C" version="1.0.0" />
      </group>
    </dependencies>`),
		files: map[string]string{"lib/netstandard2.0/A.dll": "bin"},
	})
	f.add("B", "1.0.0", testPkg{
		nuspec: manifest("B", "1.0.0", ""),
		files:  map[string]string{"lib/netstandard2.0/B.dll": "bin"},
	})
	f.add("C", "1.0.0", testPkg{
		nuspec: manifest("C", "1.0.0", ""),
		files:  map[string]string{"lib/net48/C.dll": "bin"},
	})
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), []directive.Ref{{ID: "A", Version: "1.0.0"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	joined := strings.Join(paths, " ")
	if !strings.Contains(joined, "B.dll") {
		t.Errorf("netstandard2.0 group dependency should resolve: %v", paths)
	}
	if strings.Contains(joined, "C.dll") {
		t.Errorf("net48 group dependency should not resolve for net8.0: %v", paths)
	}
}

func TestResolvePrioritySelection(t *testing.T) {
	f := newFakeRegistry(t)
	f.add("X", "1.0.0", testPkg{
		nuspec: manifest("X", "1.0.0", ""),
		files: map[string]string{
			"lib/netstandard2.0/X.dll": "old",
			"lib/netcoreapp3.1/X.dll":  "new",
		},
	})
	r := newTestResolver(t, f, "netcoreapp3.1")

	paths, err := r.Resolve(context.Background(), []directive.Ref{{ID: "X", Version: "1.0.0"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(paths) != 1 || !strings.Contains(paths[0], "netcoreapp3.1") {
		t.Errorf("paths = %v, want exactly the netcoreapp3.1 copy", paths)
	}
}

func TestResolveDiamondVisitedOnce(t *testing.T) {
	shared := `<dependencies>
      <group targetFramework="netstandard2.0">
        <dependency id="C" version="1.0.0" />
      </group>
    </dependencies>`
	f := newFakeRegistry(t)
	f.add("A", "1.0.0", testPkg{
		nuspec: manifest("A", "1.0.0", shared),
		files:  map[string]string{"lib/netstandard2.0/A.dll": "bin"},
	})
	f.add("B", "1.0.0", testPkg{
		nuspec: manifest("B", "1.0.0", shared),
		files:  map[string]string{"lib/netstandard2.0/B.dll": "bin"},
	})
	f.add("C", "1.0.0", testPkg{
		nuspec: manifest("C", "1.0.0", ""),
		files:  map[string]string{"lib/netstandard2.0/C.dll": "bin"},
	})
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), []directive.Ref{
		{ID: "A", Version: "1.0.0"},
		{ID: "B", Version: "1.0.0"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths = %v, want 3 distinct assemblies", paths)
	}

	// Explicit versions mean every request is an archive download; C must
	// have been fetched once despite two parents.
	if got := f.requests.Load(); got != 3 {
		t.Errorf("network requests = %d, want 3", got)
	}
}

func TestResolveFailedPackageSkipped(t *testing.T) {
	f := newFakeRegistry(t)
	f.add("Good", "1.0.0", testPkg{
		nuspec: manifest("Good", "1.0.0", ""),
		files:  map[string]string{"lib/netstandard2.0/Good.dll": "bin"},
	})
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), []directive.Ref{
		{ID: "Good", Version: "1.0.0"},
		{ID: "Missing", Version: "9.9.9"},
	})
	if err != nil {
		t.Fatalf("Resolve should recover per-package failures: %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "Good.dll") {
		t.Errorf("paths = %v, want only Good.dll", paths)
	}
}

func TestResolveEmptyRefs(t *testing.T) {
	f := newFakeRegistry(t)
	r := newTestResolver(t, f, "net8.0")

	paths, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Resolve(nil): %v", err)
	}
	if paths != nil {
		t.Errorf("paths = %v, want nil", paths)
	}
}
