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
	"github.com/blankon/rilis-go/internal/monitoring"
)

var (
	app     *cli.App
	server  *machinery.Server
	version string

	rilisConfig = config.RilisConfig{}

	activeTasks int = 0
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var err error
	rilisConfig, err = config.LoadConfig()
	if err != nil {
		log.Fatalln("couldn't load config : ", err)
	}
	err = os.MkdirAll(rilisConfig.Publisher.Workdir, 0755)
	if err != nil {
		log.Fatalln(err)
	}

	app = cli.NewApp()
	app.Name = "rilis-go"
	app.Usage = "rilis-go release pipeline"
	app.Author = "BlankOn Developer"
	app.Email = "blankon-dev@googlegroups.com"
	app.Version = version

	app.Action = func(c *cli.Context) error {

		go serve()

		if rilisConfig.Monitoring.Enabled {
			go startMonitoringHeartbeat()
		}

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

		server.RegisterTask("publish", PublishWithMonitoring)

		// One worker for synchronous uploads
		worker := server.NewWorker("publisher", 1)
		err = worker.Launch()
		if err != nil {
			fmt.Println("Could not launch worker : " + err.Error())
		}

		return nil

	}
	app.Run(os.Args)
}

// PublishWithMonitoring wraps the Publish function with active task tracking
func PublishWithMonitoring(payload string) (string, error) {
	activeTasks++
	defer func() { activeTasks-- }()

	return Publish(payload)
}

func startMonitoringHeartbeat() {
	ttl := time.Duration(rilisConfig.Monitoring.InstanceTimeout) * time.Second
	registry, err := monitoring.NewRegistry(rilisConfig.Redis, ttl, nil, 0)
	if err != nil {
		log.Printf("Failed to create monitoring registry: %v\n", err)
		return
	}
	defer registry.Close()

	instanceID := monitoring.GenerateInstanceID(monitoring.InstanceTypePublisher)
	startTime := time.Now()

	interval := time.Duration(rilisConfig.Monitoring.HeartbeatInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Monitoring heartbeat started (instance: %s, interval: %v)\n", instanceID, interval)

	sendHeartbeat(registry, instanceID, startTime)

	for range ticker.C {
		sendHeartbeat(registry, instanceID, startTime)
	}
}

func sendHeartbeat(registry *monitoring.Registry, instanceID string, startTime time.Time) {
	metrics := monitoring.CollectMetrics(rilisConfig.Publisher.Workdir)

	instance := monitoring.InstanceInfo{
		InstanceID:    instanceID,
		InstanceType:  monitoring.InstanceTypePublisher,
		Hostname:      monitoring.GetHostname(),
		PID:           os.Getpid(),
		StartTime:     startTime,
		LastHeartbeat: time.Now(),
		Status:        monitoring.StatusOnline,
		Concurrency:   1,
		ActiveTasks:   activeTasks,
		CPUUsage:      metrics.CPUUsage,
		MemoryUsage:   metrics.MemoryUsage,
		MemoryTotal:   metrics.MemoryTotal,
		DiskUsage:     metrics.DiskUsage,
		DiskTotal:     metrics.DiskTotal,
		Version:       version,
	}

	if err := registry.UpdateInstance(instance); err != nil {
		log.Printf("Failed to send heartbeat: %v\n", err)
	}
}

func IndexHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "rilis-publisher "+version)
}

func serve() {
	http.HandleFunc("/", IndexHandler)
	port := os.Getenv("PORT")
	if len(port) < 1 {
		port = "8082"
	}
	log.Println("rilis-go publisher now live on port " + port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}
