package installer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/zerobrew/zerobrew/internal/blob"
	"github.com/zerobrew/zerobrew/internal/cellar"
	"github.com/zerobrew/zerobrew/internal/db"
	"github.com/zerobrew/zerobrew/internal/linker"
	"github.com/zerobrew/zerobrew/internal/paralleldownload"
	"github.com/zerobrew/zerobrew/internal/store"
	"github.com/zerobrew/zerobrew/internal/version"
)

// InstalledRecord mirrors a single installed-formula row, exposed to
// callers without coupling them to the internal/db package directly.
type InstalledRecord struct {
	Name        string
	Version     string
	StoreKey    string
	InstalledAt time.Time
}

// ExecuteResult summarizes an Execute call.
type ExecuteResult struct {
	Installed []string
	Skipped   []string
}

// Installer orchestrates the full install/uninstall/GC lifecycle over
// the lower-level components.
type Installer struct {
	resolver   *Resolver
	downloader *paralleldownload.Downloader
	blobs      *blob.Cache
	store      *store.Store
	cellar     *cellar.Cellar
	linker     *linker.Linker
	database   *db.DB
}

// New wires an Installer from its already-constructed dependencies.
func New(resolver *Resolver, downloader *paralleldownload.Downloader, blobs *blob.Cache, st *store.Store, c *cellar.Cellar, lk *linker.Linker, database *db.DB) *Installer {
	return &Installer{
		resolver:   resolver,
		downloader: downloader,
		blobs:      blobs,
		store:      st,
		cellar:     c,
		linker:     lk,
		database:   database,
	}
}

// Plan resolves name's transitive dependency graph.
func (in *Installer) Plan(ctx context.Context, name string) (*Plan, error) {
	return in.resolver.Plan(ctx, name)
}

// Execute installs every formula in plan not already present at its
// planned version, optionally linking each into the prefix.
func (in *Installer) Execute(ctx context.Context, plan *Plan, doLink bool, progress ProgressFunc) (*ExecuteResult, error) {
	sink := newProgressSink(progress)
	result := &ExecuteResult{}

	pending := make([]ResolvedFormula, 0, len(plan.Formulas))
	for _, f := range plan.Formulas {
		if rec, err := in.database.Get(f.Name); err == nil && rec.Version == f.Version {
			result.Skipped = append(result.Skipped, f.Name)
			continue
		}
		pending = append(pending, f)
	}

	if len(pending) == 0 {
		return result, nil
	}

	requests := make([]paralleldownload.Request, len(pending))
	for i, f := range pending {
		name := f.Name
		requests[i] = paralleldownload.Request{
			URL:    f.BottleURL,
			Digest: f.BottleSHA256,
			OnProgress: func(downloaded int64, total *int64) {
				sink.publish(DownloadProgress{Name: name, Downloaded: downloaded, TotalBytes: total})
			},
		}
		sink.publish(DownloadStarted{Name: f.Name})
	}

	paths, err := in.downloader.DownloadAll(ctx, requests)
	if err != nil {
		return nil, err
	}

	for i, f := range pending {
		sink.publish(DownloadCompleted{Name: f.Name})

		if err := in.materializeAndLink(ctx, f, paths[i], doLink, sink); err != nil {
			return nil, err
		}

		result.Installed = append(result.Installed, f.Name)
	}

	return result, nil
}

func (in *Installer) materializeAndLink(ctx context.Context, f ResolvedFormula, blobPath string, doLink bool, sink *progressSink) error {
	sink.publish(UnpackStarted{Name: f.Name})

	storeEntry, err := in.store.Intern(blobPath, f.BottleSHA256)
	if err != nil {
		return err
	}

	payloadRoot, err := payloadRoot(storeEntry, f.Name, f.Version)
	if err != nil {
		return err
	}

	if _, err := in.cellar.Materialize(f.Name, f.Version, payloadRoot); err != nil {
		return err
	}
	sink.publish(UnpackCompleted{Name: f.Name})

	if doLink {
		sink.publish(LinkStarted{Name: f.Name})
		if _, err := in.linker.LinkKeg(f.Name, f.Version); err != nil {
			return err
		}
		sink.publish(LinkCompleted{Name: f.Name})
	}

	if err := in.database.Insert(db.Record{
		Name:        f.Name,
		Version:     f.Version,
		StoreKey:    f.BottleSHA256,
		InstalledAt: time.Now(),
	}); err != nil {
		return err
	}
	sink.publish(InstallCompleted{Name: f.Name})

	return nil
}

// IsInstalled reports whether name has an installed record.
func (in *Installer) IsInstalled(name string) (bool, error) {
	return in.database.IsInstalled(name)
}

// GetInstalled returns the installed record for name.
func (in *Installer) GetInstalled(name string) (*InstalledRecord, error) {
	rec, err := in.database.Get(name)
	if err != nil {
		return nil, err
	}
	return &InstalledRecord{Name: rec.Name, Version: rec.Version, StoreKey: rec.StoreKey, InstalledAt: rec.InstalledAt}, nil
}

// ListInstalled returns every installed record.
func (in *Installer) ListInstalled() ([]InstalledRecord, error) {
	recs, err := in.database.List()
	if err != nil {
		return nil, err
	}
	out := make([]InstalledRecord, len(recs))
	for i, rec := range recs {
		out[i] = InstalledRecord{Name: rec.Name, Version: rec.Version, StoreKey: rec.StoreKey, InstalledAt: rec.InstalledAt}
	}
	return out, nil
}

// Uninstall unlinks, removes the keg, and deletes name's installed
// row. The store entry is left in place for GC to reclaim.
func (in *Installer) Uninstall(name string) error {
	rec, err := in.database.Get(name)
	if err != nil {
		return err
	}

	if err := in.linker.UnlinkKeg(rec.Name, rec.Version); err != nil {
		return err
	}
	if err := in.cellar.RemoveKeg(rec.Name, rec.Version); err != nil {
		return err
	}
	return in.database.Remove(rec.Name)
}

// GC deletes every store and blob-cache digest not referenced by the
// installed table, returning the digests removed. A store entry and
// its source blob share a key, so both are deleted together.
func (in *Installer) GC() ([]string, error) {
	installed, err := in.database.List()
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool, len(installed))
	for _, rec := range installed {
		referenced[rec.StoreKey] = true
	}

	storeDigests, err := in.store.ListDigests()
	if err != nil {
		return nil, err
	}
	blobDigests, err := in.blobs.ListDigests()
	if err != nil {
		return nil, err
	}

	unreferenced := make(map[string]bool)
	for _, digest := range storeDigests {
		if !referenced[digest] {
			unreferenced[digest] = true
		}
	}
	for _, digest := range blobDigests {
		if !referenced[digest] {
			unreferenced[digest] = true
		}
	}

	var removed []string
	for digest := range unreferenced {
		if err := in.store.Delete(digest); err != nil {
			return removed, err
		}
		if err := in.blobs.Delete(digest); err != nil {
			return removed, err
		}
		removed = append(removed, digest)
	}

	return removed, nil
}

// OutdatedRecord pairs an installed formula with the latest version
// the API currently advertises for it.
type OutdatedRecord struct {
	Name             string
	InstalledVersion string
	LatestVersion    string
}

// Outdated reports every installed formula whose latest available
// version is newer than what's installed. version.Compare handles the
// comparison so formulae with non-semver version strings (e.g. a
// date-stamped release) still fall back to a sane ordering instead of
// erroring out.
func (in *Installer) Outdated(ctx context.Context) ([]OutdatedRecord, error) {
	installed, err := in.database.List()
	if err != nil {
		return nil, err
	}

	var outdated []OutdatedRecord
	for _, rec := range installed {
		latest, err := in.resolver.FetchLatestVersion(ctx, rec.Name)
		if err != nil {
			return nil, err
		}
		if version.Compare(rec.Version, latest) < 0 {
			outdated = append(outdated, OutdatedRecord{
				Name:             rec.Name,
				InstalledVersion: rec.Version,
				LatestVersion:    latest,
			})
		}
	}
	return outdated, nil
}

// KegPath returns the path a (name, version) keg lives at.
func (in *Installer) KegPath(name, version string) string {
	return in.cellar.KegPath(name, version)
}

// payloadRoot locates the extracted archive's payload directory. A
// bottle's top-level tar entry typically nests <name>/<version>/…;
// when that layout is present it is used as the materialize source,
// otherwise the store entry's root is used as-is.
func payloadRoot(storeEntry, name, version string) (string, error) {
	nested := filepath.Join(storeEntry, name, version)
	if info, err := os.Stat(nested); err == nil && info.IsDir() {
		return nested, nil
	}
	return storeEntry, nil
}
