package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
redis: redis://localhost:6379
chief:
  address: http://localhost:8080
  workdir: /var/lib/rilis/chief
builder:
  workdir: /var/lib/rilis/builder
  legs:
    - os: ubuntu-20.04
      python: "3.8"
      command: python3 -m build
      primary: true
    - os: ubuntu-20.04
      python: "3.9"
      command: python3 -m compileall src
publisher:
  workdir: /var/lib/rilis/publisher
docs:
  workdir: /var/lib/rilis/docs
  repo_url: https://github.com/rok4/pytools.git
  branch: gh-pages
  bot_name: rilis-bot
  bot_email: rilis-bot@blankonlinux.or.id
project:
  package_name: rok4tools
  repo_owner: rok4
  repo_name: pytools
  repo_url: https://github.com/rok4/pytools.git
  changelog_file: CHANGELOG.md
  readme_file: README.md
  setup_file: setup.py
  version_file: VERSION
  images_dir: docs/images
forge:
  api_url: https://api.github.com
index:
  upload_url: https://upload.pypi.org/legacy/
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	os.Setenv("RILIS_CONFIG_PATH", writeTestConfig(t, testConfig))
	defer os.Unsetenv("RILIS_CONFIG_PATH")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Chief.Address)
	assert.Equal(t, 24, cfg.Chief.ArtifactRetentionHours)
	assert.Len(t, cfg.Builder.Legs, 2)
	assert.Equal(t, "gh-pages", cfg.Docs.Branch)
	assert.Equal(t, "rok4tools", cfg.Project.PackageName)
}

func TestLoadConfigTokenOverride(t *testing.T) {
	os.Setenv("RILIS_CONFIG_PATH", writeTestConfig(t, testConfig))
	os.Setenv("RILIS_FORGE_TOKEN", "forge-secret")
	os.Setenv("RILIS_INDEX_TOKEN", "index-secret")
	defer func() {
		os.Unsetenv("RILIS_CONFIG_PATH")
		os.Unsetenv("RILIS_FORGE_TOKEN")
		os.Unsetenv("RILIS_INDEX_TOKEN")
	}()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "forge-secret", cfg.Forge.Token)
	assert.Equal(t, "index-secret", cfg.Index.Token)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	// docs section dropped entirely
	broken := `
redis: redis://localhost:6379
chief:
  address: http://localhost:8080
  workdir: /var/lib/rilis/chief
`
	os.Setenv("RILIS_CONFIG_PATH", writeTestConfig(t, broken))
	defer os.Unsetenv("RILIS_CONFIG_PATH")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigMarksFirstLegPrimary(t *testing.T) {
	noPrimary := strings.Replace(testConfig, "      primary: true\n", "", 1)
	os.Setenv("RILIS_CONFIG_PATH", writeTestConfig(t, noPrimary))
	defer os.Unsetenv("RILIS_CONFIG_PATH")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Builder.Legs[0].Primary)
	assert.True(t, cfg.Builder.PrimaryLeg().Primary)
}

func TestLoadConfigRejectsTwoPrimaryLegs(t *testing.T) {
	twoPrimary := strings.Replace(
		testConfig,
		"      command: python3 -m compileall src\n",
		"      command: python3 -m compileall src\n      primary: true\n",
		1,
	)
	os.Setenv("RILIS_CONFIG_PATH", writeTestConfig(t, twoPrimary))
	defer os.Unsetenv("RILIS_CONFIG_PATH")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestNormalizeLegs(t *testing.T) {
	cfg := BuilderConfig{
		Legs: []MatrixLeg{
			{OS: "ubuntu-20.04", Python: "3.8", Command: "true"},
			{OS: "ubuntu-20.04", Python: "3.9", Command: "true"},
		},
	}
	require.NoError(t, cfg.NormalizeLegs())
	assert.True(t, cfg.Legs[0].Primary)
	assert.False(t, cfg.Legs[1].Primary)

	cfg.Legs[1].Primary = true
	assert.Error(t, cfg.NormalizeLegs())
}

func TestPrimaryLeg(t *testing.T) {
	cfg := BuilderConfig{
		Legs: []MatrixLeg{
			{OS: "ubuntu-20.04", Python: "3.8", Command: "true"},
			{OS: "ubuntu-20.04", Python: "3.9", Command: "true", Primary: true},
		},
	}
	assert.Equal(t, "3.9", cfg.PrimaryLeg().Python)

	cfg.Legs[1].Primary = false
	assert.Equal(t, "3.8", cfg.PrimaryLeg().Python)
}
