package docsite

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// Placeholder tokens substituted when rendering pages. The documentation
// sources in the package repository carry these verbatim; the same tag
// always renders to byte-identical output.
const (
	VersionToken = "__VERSION__"
	PackageToken = "__PACKAGE__"
)

const landingTemplate = `# __PACKAGE__ __VERSION__

Documentation for the __VERSION__ release.

- [README](./README.md)
- [Changelog](./CHANGELOG.md)
`

// Page is one rendered Markdown page of a version's page set.
type Page struct {
	Name    string
	Content string
}

// RenderPage substitutes the placeholder tokens of a page template.
func RenderPage(template, packageName, tag string) string {
	rendered := strings.ReplaceAll(template, VersionToken, tag)
	return strings.ReplaceAll(rendered, PackageToken, packageName)
}

// BuildVersionPages renders the three pages of one version from the
// template-bearing files shipped inside the build artifact bundle.
func BuildVersionPages(bundleDir, readmeFile, changelogFile, packageName, tag string) ([]Page, error) {
	readme, err := ioutil.ReadFile(filepath.Join(bundleDir, readmeFile))
	if err != nil {
		return nil, fmt.Errorf("bundle is missing %s: %w", readmeFile, err)
	}
	changelog, err := ioutil.ReadFile(filepath.Join(bundleDir, changelogFile))
	if err != nil {
		return nil, fmt.Errorf("bundle is missing %s: %w", changelogFile, err)
	}

	return []Page{
		{Name: "index.md", Content: RenderPage(landingTemplate, packageName, tag)},
		{Name: "README.md", Content: RenderPage(string(readme), packageName, tag)},
		{Name: "CHANGELOG.md", Content: RenderPage(string(changelog), packageName, tag)},
	}, nil
}

// WriteVersionPages writes a version's page set under versions/<tag>/ of
// the docs checkout.
func WriteVersionPages(docsRoot, tag string, pages []Page) error {
	versionDir := filepath.Join(docsRoot, "versions", tag)
	if err := os.MkdirAll(versionDir, 0755); err != nil {
		return err
	}
	for _, page := range pages {
		if err := ioutil.WriteFile(filepath.Join(versionDir, page.Name), []byte(page.Content), 0644); err != nil {
			return err
		}
	}
	return nil
}
