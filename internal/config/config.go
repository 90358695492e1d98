package config

import (
	"errors"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	validator "gopkg.in/go-playground/validator.v9"
)

type RilisConfig struct {
	Redis        string             `json:"redis"`
	Chief        ChiefConfig        `json:"chief"`
	Builder      BuilderConfig      `json:"builder"`
	Publisher    PublisherConfig    `json:"publisher"`
	Docs         DocsConfig         `json:"docs"`
	Project      ProjectConfig      `json:"project"`
	Forge        ForgeConfig        `json:"forge"`
	Index        IndexConfig        `json:"index"`
	Monitoring   MonitoringConfig   `json:"monitoring"`
	Notification NotificationConfig `json:"notification"`
	IsTest       bool               `json:"is_test"`
	IsDev        bool               `json:"is_dev"`
}

type ChiefConfig struct {
	Address string `json:"address" validate:"required"`
	Workdir string `json:"workdir" validate:"required"`
	// Shared build artifacts are discarded after this many hours (default 24)
	ArtifactRetentionHours int `json:"artifact_retention_hours"`
}

type BuilderConfig struct {
	Workdir string      `json:"workdir" validate:"required"`
	Legs    []MatrixLeg `json:"legs" validate:"required,min=1,dive"`
}

// MatrixLeg is one OS/interpreter combination of the build matrix. Exactly
// one leg must be primary: it produces the dist files, bundles the
// documentation assets and uploads the shared artifact.
type MatrixLeg struct {
	OS      string `json:"os" validate:"required"`      // ubuntu-20.04
	Python  string `json:"python" validate:"required"`  // 3.8
	Command string `json:"command" validate:"required"` // python3 -m build
	Primary bool   `json:"primary"`
}

type PublisherConfig struct {
	Workdir string `json:"workdir" validate:"required"`
}

type DocsConfig struct {
	Workdir  string `json:"workdir" validate:"required"`
	RepoURL  string `json:"repo_url" validate:"required"` // https://github.com/rok4/pytools.git
	Branch   string `json:"branch" validate:"required"`   // gh-pages
	BotName  string `json:"bot_name" validate:"required"` // rilis-bot
	BotEmail string `json:"bot_email" validate:"required"`
}

type ProjectConfig struct {
	PackageName   string `json:"package_name" validate:"required"`   // rok4tools
	RepoOwner     string `json:"repo_owner" validate:"required"`     // rok4
	RepoName      string `json:"repo_name" validate:"required"`      // pytools
	RepoURL       string `json:"repo_url" validate:"required"`       // https://github.com/rok4/pytools.git
	ChangelogFile string `json:"changelog_file" validate:"required"` // CHANGELOG.md
	ReadmeFile    string `json:"readme_file" validate:"required"`    // README.md
	SetupFile     string `json:"setup_file" validate:"required"`     // setup.py
	VersionFile   string `json:"version_file" validate:"required"`   // VERSION
	ImagesDir     string `json:"images_dir"`                         // docs/images
}

type ForgeConfig struct {
	APIURL string `json:"api_url" validate:"required"` // https://api.github.com
	Token  string `json:"token"`
}

type IndexConfig struct {
	UploadURL string `json:"upload_url" validate:"required"` // https://upload.pypi.org/legacy/
	Token     string `json:"token"`
}

type MonitoringConfig struct {
	Enabled           bool   `json:"enabled"`
	DBPath            string `json:"db_path"`
	HeartbeatInterval int    `json:"heartbeat_interval"` // seconds
	InstanceTimeout   int    `json:"instance_timeout"`   // seconds
	CleanupInterval   int    `json:"cleanup_interval"`   // seconds
	MaxReleases       int    `json:"max_releases"`
}

type NotificationConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// LoadConfig load rilis config from file
func LoadConfig() (config RilisConfig, err error) {
	configPaths := []string{
		"/etc/rilis/config.yml",
		"../../utils/config.yml",
		"./utils/config.yml",
	}
	configPath := os.Getenv("RILIS_CONFIG_PATH")
	isDev := os.Getenv("DEV") == "1"
	yamlFile, err := ioutil.ReadFile(configPath)
	if err != nil {
		// load from predefined configPaths when no RILIS_CONFIG_PATH set
		for _, config := range configPaths {
			yamlFile, err = ioutil.ReadFile(config)
			if err == nil {
				log.Println("load config from : ", config)
				break
			}
		}
		if err != nil {
			return
		}
	}
	if isDev {
		yamlFile, err = ioutil.ReadFile("./utils/config.yml")
		if err != nil {
			return
		}
	}

	err = yaml.Unmarshal(yamlFile, &config)
	if err != nil {
		return
	}

	if isDev {
		// Since it's in dev env, let's move some path to ./tmp
		cwd, _ := os.Getwd()
		tmpDir := cwd + "/tmp/"
		if _, err := os.Stat(tmpDir); os.IsNotExist(err) {
			os.Mkdir(tmpDir, 0755)
		}
		config.Chief.Workdir = strings.ReplaceAll(config.Chief.Workdir, "/var/lib/", tmpDir)
		config.Builder.Workdir = strings.ReplaceAll(config.Builder.Workdir, "/var/lib/", tmpDir)
		config.Publisher.Workdir = strings.ReplaceAll(config.Publisher.Workdir, "/var/lib/", tmpDir)
		config.Docs.Workdir = strings.ReplaceAll(config.Docs.Workdir, "/var/lib/", tmpDir)
	}
	config.IsDev = isDev

	// Secrets may live outside the config file
	if token := os.Getenv("RILIS_FORGE_TOKEN"); token != "" {
		config.Forge.Token = token
	}
	if token := os.Getenv("RILIS_INDEX_TOKEN"); token != "" {
		config.Index.Token = token
	}

	if config.Chief.ArtifactRetentionHours <= 0 {
		config.Chief.ArtifactRetentionHours = 24
	}

	validate := validator.New()
	err = validate.Struct(config)
	if err != nil {
		return
	}

	err = config.Builder.NormalizeLegs()

	return
}

// NormalizeLegs enforces the single-primary invariant on the build matrix.
// When no leg is marked, the first leg becomes the primary one; more than
// one marked leg is a configuration error.
func (c *BuilderConfig) NormalizeLegs() error {
	primaries := 0
	for _, leg := range c.Legs {
		if leg.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return errors.New("builder.legs: more than one leg is marked primary")
	}
	if primaries == 0 && len(c.Legs) > 0 {
		c.Legs[0].Primary = true
	}
	return nil
}

// PrimaryLeg returns the matrix leg responsible for producing the shared
// artifact. The first leg marked primary wins; when none is marked, the
// first leg is the primary one.
func (c BuilderConfig) PrimaryLeg() MatrixLeg {
	for _, leg := range c.Legs {
		if leg.Primary {
			return leg
		}
	}
	return c.Legs[0]
}
