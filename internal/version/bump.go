package version

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
)

// The tag flows into two fixed locations of the checkout: the setup script
// and the plain version file. Nothing is committed back; the rewrite only
// affects the tree the dists are built from.

var setupVersionPattern = regexp.MustCompile(`(?m)^(\s*version\s*=\s*)(?:['"][^'"]*['"]|os\.environ\[[^\]]+\])`)

// Bump rewrites the embedded version string in both version-bearing files
// to equal the tag.
func Bump(checkoutDir, setupFile, versionFile, tag string) error {
	if err := rewriteSetup(filepath.Join(checkoutDir, setupFile), tag); err != nil {
		return err
	}
	return rewriteVersionFile(filepath.Join(checkoutDir, versionFile), tag)
}

// rewriteSetup replaces the version= value of a setuptools setup script,
// whether it is a literal or an os.environ lookup.
func rewriteSetup(path, tag string) error {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	if !setupVersionPattern.Match(content) {
		return fmt.Errorf("no version assignment found in %s", path)
	}

	updated := setupVersionPattern.ReplaceAll(content, []byte(`${1}"`+tag+`"`))

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, updated, info.Mode())
}

// rewriteVersionFile overwrites the plain version file with the tag.
func rewriteVersionFile(path, tag string) error {
	return ioutil.WriteFile(path, []byte(tag+"\n"), 0644)
}
