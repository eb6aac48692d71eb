package functional

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/zerobrew/zerobrew/internal/platform"
)

// fixtureServer serves formula metadata and bottle archives for
// functional scenarios, standing in for the real formulae.brew.sh
// endpoint. Each AddFormula call builds a tiny bottle archive on the
// fly and registers both the metadata and bottle routes.
type fixtureServer struct {
	mu       sync.Mutex
	formulas map[string]formulaFixture
	srv      *httptest.Server
}

type formulaFixture struct {
	version string
	deps    []string
	digest  string
	archive []byte
}

func newFixtureServer() *fixtureServer {
	fs := &fixtureServer{formulas: map[string]formulaFixture{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/", fs.handle)
	fs.srv = httptest.NewServer(mux)
	return fs
}

func (fs *fixtureServer) URL() string { return fs.srv.URL }

func (fs *fixtureServer) Close() { fs.srv.Close() }

// AddFormula registers name@version, depending on deps, with a bottle
// containing a single executable at <name>/<version>/bin/<name>.
func (fs *fixtureServer) AddFormula(name, version string, deps []string) {
	archive := buildBottleArchive(name, version)
	sum := sha256.Sum256(archive)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.formulas[name] = formulaFixture{
		version: version,
		deps:    deps,
		digest:  hex.EncodeToString(sum[:]),
		archive: archive,
	}
}

func (fs *fixtureServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for name, fixture := range fs.formulas {
		if r.URL.Path == "/"+name+".json" {
			tag, err := platform.DetectTag()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"name":         name,
				"versions":     map[string]string{"stable": fixture.version},
				"dependencies": fixture.deps,
				"bottle": map[string]any{
					"stable": map[string]any{
						"files": map[string]any{
							tag: map[string]string{
								"url":    fs.srv.URL + "/bottles/" + name + ".tar.gz",
								"sha256": fixture.digest,
							},
						},
					},
				},
			})
			return
		}
		if r.URL.Path == "/bottles/"+name+".tar.gz" {
			w.Write(fixture.archive)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

// buildBottleArchive builds a tar.gz with a <name>/<version>/bin/<name>
// executable, mirroring the nested layout real Homebrew bottles use.
func buildBottleArchive(name, version string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	contents := []byte("#!/bin/sh\necho " + name + " " + version + "\n")
	tw.WriteHeader(&tar.Header{
		Name:     name + "/" + version + "/bin/" + name,
		Typeflag: tar.TypeReg,
		Mode:     0755,
		Size:     int64(len(contents)),
	})
	tw.Write(contents)

	tw.Close()
	gz.Close()
	return buf.Bytes()
}
