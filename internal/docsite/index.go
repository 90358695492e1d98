package docsite

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// VersionEntry is one released version directory of the docs branch.
type VersionEntry struct {
	Name    string
	ModTime int64
}

// ListVersions returns the version directories under versions/, most
// recently modified first. Equal timestamps fall back to reverse name
// order so regeneration stays deterministic.
func ListVersions(docsRoot string) ([]VersionEntry, error) {
	versionsDir := filepath.Join(docsRoot, "versions")
	entries, err := ioutil.ReadDir(versionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []VersionEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		versions = append(versions, VersionEntry{
			Name:    entry.Name(),
			ModTime: entry.ModTime().UnixNano(),
		})
	}

	sort.Slice(versions, func(i, j int) bool {
		if versions[i].ModTime != versions[j].ModTime {
			return versions[i].ModTime > versions[j].ModTime
		}
		return versions[i].Name > versions[j].Name
	})
	return versions, nil
}

// RegenerateIndexes rebuilds the two index pages from the accumulated
// version directory set: the master version index under versions/ and the
// site root index pointing at the newest release.
func RegenerateIndexes(docsRoot, packageName string) error {
	versions, err := ListVersions(docsRoot)
	if err != nil {
		return err
	}

	var list strings.Builder
	for _, version := range versions {
		fmt.Fprintf(&list, "- [%s](./%s/)\n", version.Name, version.Name)
	}

	versionIndex := fmt.Sprintf("# %s versions\n\n%s", packageName, list.String())
	if err := os.MkdirAll(filepath.Join(docsRoot, "versions"), 0755); err != nil {
		return err
	}
	if err := ioutil.WriteFile(filepath.Join(docsRoot, "versions", "index.md"), []byte(versionIndex), 0644); err != nil {
		return err
	}

	latest := "none"
	if len(versions) > 0 {
		latest = fmt.Sprintf("[%s](./versions/%s/)", versions[0].Name, versions[0].Name)
	}
	rootIndex := fmt.Sprintf("# %s\n\nLatest release: %s\n\n[All versions](./versions/)\n", packageName, latest)
	return ioutil.WriteFile(filepath.Join(docsRoot, "index.md"), []byte(rootIndex), 0644)
}
