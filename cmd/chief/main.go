package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	machinery "github.com/RichardKnop/machinery/v1"
	machineryConfig "github.com/RichardKnop/machinery/v1/config"
	"github.com/urfave/cli"

	"github.com/blankon/rilis-go/internal/config"
	"github.com/blankon/rilis-go/internal/forge"
	"github.com/blankon/rilis-go/internal/monitoring"
	"github.com/blankon/rilis-go/internal/storage"

	artifactEndpoint "github.com/blankon/rilis-go/internal/artifact/endpoint"
	artifactRepo "github.com/blankon/rilis-go/internal/artifact/repo"
	artifactService "github.com/blankon/rilis-go/internal/artifact/service"
	chiefrepository "github.com/blankon/rilis-go/internal/chief/repository"
	chiefusecase "github.com/blankon/rilis-go/internal/chief/usecase"
)

var (
	app     *cli.App
	server  *machinery.Server
	version string

	rilisConfig config.RilisConfig

	chiefService         *chiefusecase.ChiefUsecase
	artifactHTTPEndpoint *artifactEndpoint.ArtifactHTTPEndpoint
	monitoringRegistry   *monitoring.Registry
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var err error
	rilisConfig, err = config.LoadConfig()
	if err != nil {
		log.Fatalln(err)
	}

	// Prepare workdir
	err = os.MkdirAll(rilisConfig.Chief.Workdir, 0755)
	if err != nil {
		log.Fatalln(err)
	}
	log.Println(rilisConfig.Chief.Workdir)

	artifacts := artifactService.NewArtifactService(
		artifactRepo.NewFileRepo(rilisConfig.Chief.Workdir))
	// chiefService is wired later in the cli action, the checker only runs
	// once the server is accepting uploads
	artifactHTTPEndpoint = artifactEndpoint.NewArtifactHTTPEndpoint(artifacts,
		func(pipelineID string) error {
			return chiefService.VerifyUploadedBundle(pipelineID)
		})

	// Initialize monitoring registry if enabled
	if rilisConfig.Monitoring.Enabled {
		var db *storage.DB
		if rilisConfig.Monitoring.DBPath != "" {
			db, err = storage.NewDB(rilisConfig.Monitoring.DBPath)
			if err != nil {
				log.Printf("Failed to open release database: %v\n", err)
			}
		}

		ttl := time.Duration(rilisConfig.Monitoring.InstanceTimeout) * time.Second
		monitoringRegistry, err = monitoring.NewRegistry(rilisConfig.Redis, ttl, db, rilisConfig.Monitoring.MaxReleases)
		if err != nil {
			log.Printf("Failed to initialize monitoring registry: %v\n", err)
			log.Println("Continuing without monitoring...")
			rilisConfig.Monitoring.Enabled = false
		} else {
			log.Println("Monitoring registry initialized successfully")
		}
	}

	app = cli.NewApp()
	app.Name = "rilis-go"
	app.Usage = "rilis-go release pipeline"
	app.Author = "BlankOn Developer"
	app.Email = "blankon-dev@googlegroups.com"
	app.Version = version

	app.Action = func(c *cli.Context) error {
		server, err = machinery.NewServer(
			&machineryConfig.Config{
				Broker:        rilisConfig.Redis,
				ResultBackend: rilisConfig.Redis,
				DefaultQueue:  "rilis",
			},
		)
		if err != nil {
			fmt.Println("Could not create server : " + err.Error())
		}

		chiefService = chiefusecase.NewChiefUsecase(
			rilisConfig,
			server,
			monitoringRegistry,
			chiefrepository.NewStorage(rilisConfig.Chief.Workdir),
			artifacts,
			forge.NewClient(rilisConfig.Forge.APIURL, rilisConfig.Forge.Token),
			version,
		)

		// The dispatch and rollback tasks run on the chief itself
		server.RegisterTask("dispatch", Dispatch)
		server.RegisterTask("rollback", Rollback)
		go func() {
			worker := server.NewWorker("chief", 2)
			if err := worker.Launch(); err != nil {
				fmt.Println("Could not launch worker : " + err.Error())
			}
		}()

		serve()

		return nil
	}
	app.Run(os.Args)
}

func serve() {
	// APIs
	http.HandleFunc("/api/v1/artifacts", artifactHTTPEndpoint.GetArtifactListHandler)
	http.HandleFunc("/api/v1/release", ReleaseSubmitHandler)
	http.HandleFunc("/api/v1/hook", TagHookHandler)
	http.HandleFunc("/api/v1/status", ReleaseStatusHandler)
	http.HandleFunc("/api/v1/artifact-upload", artifactHTTPEndpoint.UploadBundleHandler)
	http.HandleFunc("/api/v1/log-upload", logUploadHandler())
	http.HandleFunc("/api/v1/version", VersionHandler)

	// Index handler (catch-all, must be registered last)
	http.HandleFunc("/", indexHandler)
	// Static file routes
	artifactFs := http.FileServer(http.Dir(rilisConfig.Chief.Workdir + "/artifacts"))
	http.Handle("/artifacts/", http.StripPrefix("/artifacts/", artifactFs))
	logFs := http.FileServer(http.Dir(rilisConfig.Chief.Workdir + "/logs"))
	http.Handle("/logs/", http.StripPrefix("/logs/", logFs))

	if rilisConfig.Monitoring.Enabled && monitoringRegistry != nil {
		go startInstanceCleanup()
	}
	go startArtifactCleanup()

	port := os.Getenv("PORT")
	if len(port) < 1 {
		port = "8080"
	}
	log.Println("rilis-go chief now live on port " + port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

// startInstanceCleanup runs a background job to cleanup stale instances
func startInstanceCleanup() {
	interval := time.Duration(rilisConfig.Monitoring.CleanupInterval) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Instance cleanup job started (interval: %v)\n", interval)

	for range ticker.C {
		if err := monitoringRegistry.CleanupStaleInstances(); err != nil {
			log.Printf("Failed to cleanup stale instances: %v\n", err)
		}
	}
}

// startArtifactCleanup drops shared build bundles past the retention window
func startArtifactCleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	log.Printf("Artifact cleanup job started (retention: %dh)\n", rilisConfig.Chief.ArtifactRetentionHours)

	for range ticker.C {
		chiefService.CleanupExpiredArtifacts()
	}
}
