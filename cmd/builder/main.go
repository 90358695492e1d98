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

	// Monitoring
	activeTasks int = 0
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var err error
	rilisConfig, err = config.LoadConfig()
	if err != nil {
		log.Fatalln("couldn't load config : ", err)
	}
	// Prepare workdir
	err = os.MkdirAll(rilisConfig.Builder.Workdir, 0755)
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

		// Wrap Build task with monitoring
		server.RegisterTask("build", BuildWithMonitoring)

		// Two matrix legs may land on the same builder
		worker := server.NewWorker("builder", 2)
		err = worker.Launch()
		if err != nil {
			fmt.Println("Could not launch worker : " + err.Error())
		}

		return nil

	}
	app.Run(os.Args)
}

// BuildWithMonitoring wraps the Build function with active task tracking
func BuildWithMonitoring(payload string) (string, error) {
	activeTasks++
	defer func() { activeTasks-- }()

	return Build(payload)
}

// startMonitoringHeartbeat sends periodic heartbeats to Redis
func startMonitoringHeartbeat() {
	ttl := time.Duration(rilisConfig.Monitoring.InstanceTimeout) * time.Second
	registry, err := monitoring.NewRegistry(rilisConfig.Redis, ttl, nil, 0)
	if err != nil {
		log.Printf("Failed to create monitoring registry: %v\n", err)
		return
	}
	defer registry.Close()

	instanceID := monitoring.GenerateInstanceID(monitoring.InstanceTypeBuilder)
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
	metrics := monitoring.CollectMetrics(rilisConfig.Builder.Workdir)

	instance := monitoring.InstanceInfo{
		InstanceID:    instanceID,
		InstanceType:  monitoring.InstanceTypeBuilder,
		Hostname:      monitoring.GetHostname(),
		PID:           os.Getpid(),
		StartTime:     startTime,
		LastHeartbeat: time.Now(),
		Status:        monitoring.StatusOnline,
		Concurrency:   2, // matches the NewWorker call
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

func serve() {
	port := os.Getenv("PORT")
	if len(port) < 1 {
		port = "8081"
	}
	fs := http.FileServer(http.Dir(rilisConfig.Builder.Workdir))
	http.Handle("/", fs)
	log.Println("rilis-go builder now live on port " + port + ", serving path : " + rilisConfig.Builder.Workdir)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}
