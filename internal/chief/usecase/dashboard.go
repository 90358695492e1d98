package usecase

import (
	"fmt"
	"log"
	"time"

	"github.com/blankon/rilis-go/internal/monitoring"
	"github.com/blankon/rilis-go/internal/storage"
)

// RenderIndexHTML renders the chief dashboard: worker instances plus the
// recent release pipelines
func (s *ChiefUsecase) RenderIndexHTML() (string, error) {
	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta http-equiv="refresh" content="10">
    <title>Rilis Chief</title>
    <style>
        body {
            font-family: monospace;
            margin: 20px;
            background-color: #f5f5f5;
        }
        .header {
            background: #333;
            color: #fff;
            padding: 15px;
            margin-bottom: 20px;
        }
        .summary {
            background: #fff;
            padding: 15px;
            margin-bottom: 20px;
            border-left: 4px solid #4CAF50;
            display: inline-block;
        }
        .summary-item {
            display: inline-block;
            margin-right: 30px;
            font-size: 14px;
            vertical-align: top;
        }
        .summary-number {
            font-size: 24px;
            font-weight: bold;
            color: #4CAF50;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: #fff;
            box-shadow: 0 1px 3px rgba(0,0,0,0.1);
        }
        th {
            background: #333;
            color: #fff;
            padding: 12px;
            text-align: left;
            font-size: 12px;
        }
        td {
            padding: 10px 12px;
            border-bottom: 1px solid #ddd;
            font-size: 11px;
        }
        tr:hover {
            background-color: #f9f9f9;
        }
        .status-online {
            color: #4CAF50;
            font-weight: bold;
        }
        .status-offline {
            color: #f44336;
            font-weight: bold;
        }
        .status-warning {
            color: #ff9800;
            font-weight: bold;
        }
        .badge {
            display: inline-block;
            padding: 3px 8px;
            border-radius: 3px;
            font-size: 10px;
            font-weight: bold;
            background: #2196F3;
            color: white;
        }
        .badge-publisher {
            background: #FF9800;
        }
        .badge-docs {
            background: #9C27B0;
        }
        .badge-chief {
            background: #607D8B;
        }
        .metric {
            font-size: 11px;
            color: #666;
        }
        .section-title {
            font-size: 16px;
            font-weight: bold;
            margin: 20px 0 10px 0;
            color: #333;
        }
        .refresh-info {
            color: #666;
            font-size: 11px;
            margin-top: 20px;
        }
        .empty-state {
            background: #fff;
            padding: 40px;
            text-align: center;
            color: #999;
        }
    </style>
</head>
<body>
    <div class="header">
        <div>rilis-chief ` + s.Version + `</div>
    </div>
`

	if s.Config.Monitoring.Enabled && s.MonitoringRegistry != nil {
		html += s.renderWorkersSection()
		html += s.renderReleasesSection()
	} else {
		html += `<div class="empty-state">Monitoring is disabled</div>`
	}

	html += `
    <div class="refresh-info">
        Page auto-refreshes every 10 seconds
    </div>
</body>
</html>
`

	return html, nil
}

func (s *ChiefUsecase) renderWorkersSection() string {
	instances, err := s.MonitoringRegistry.ListInstances("", "")
	if err != nil {
		log.Printf("Failed to list instances: %v\n", err)
		return ""
	}

	summary, err := s.MonitoringRegistry.GetSummary()
	if err != nil {
		log.Printf("Failed to get summary: %v\n", err)
	}

	html := `<div class="section-title">Workers</div>`

	html += fmt.Sprintf(`
    <div class="summary">
        <div class="summary-item">
            <div class="summary-number">%d</div>
            <div>Total Instances</div>
        </div>
        <div class="summary-item">
            <div class="summary-number" style="color: #4CAF50;">%d</div>
            <div>Online</div>
        </div>
        <div class="summary-item">
            <div class="summary-number" style="color: #f44336;">%d</div>
            <div>Offline</div>
        </div>
    </div>
`, summary.Total, summary.Online, summary.Offline)

	if len(instances) == 0 {
		return html + `<div class="empty-state">No worker instances found</div>`
	}

	html += `
    <table>
        <thead>
            <tr>
                <th>Type</th>
                <th>Hostname</th>
                <th>Status</th>
                <th>Uptime</th>
                <th>Tasks</th>
                <th>CPU</th>
                <th>Memory</th>
                <th>Disk</th>
            </tr>
        </thead>
        <tbody>`

	for _, instance := range instances {
		badgeClass := "badge"
		switch instance.InstanceType {
		case monitoring.InstanceTypePublisher:
			badgeClass = "badge badge-publisher"
		case monitoring.InstanceTypeDocs:
			badgeClass = "badge badge-docs"
		case monitoring.InstanceTypeChief:
			badgeClass = "badge badge-chief"
		}

		statusClass := "status-offline"
		if instance.Status == monitoring.StatusOnline {
			statusClass = "status-online"
		}

		memStr := monitoring.FormatBytes(instance.MemoryUsage)
		if instance.MemoryTotal > 0 {
			memStr += " / " + monitoring.FormatBytes(instance.MemoryTotal)
		}

		diskStr := monitoring.FormatBytes(instance.DiskUsage)
		if instance.DiskTotal > 0 {
			diskStr += " / " + monitoring.FormatBytes(instance.DiskTotal)
		}

		html += fmt.Sprintf(`
            <tr>
                <td><span class="%s">%s</span></td>
                <td>%s</td>
                <td><span class="%s">%s</span></td>
                <td>%s</td>
                <td>%d / %d</td>
                <td class="metric">%.1f / 100</td>
                <td class="metric">%s</td>
                <td class="metric">%s</td>
            </tr>`,
			badgeClass,
			instance.InstanceType,
			instance.Hostname,
			statusClass,
			instance.Status,
			formatDuration(time.Since(instance.StartTime)),
			instance.ActiveTasks,
			instance.Concurrency,
			instance.CPUUsage,
			memStr,
			diskStr,
		)
	}

	html += `
        </tbody>
    </table>
`

	return html
}

func (s *ChiefUsecase) renderReleasesSection() string {
	store := s.releaseStore()
	if store == nil {
		return ""
	}

	releases, err := store.GetRecentReleases(50)
	if err != nil {
		log.Printf("Failed to list releases: %v\n", err)
		return ""
	}
	if len(releases) == 0 {
		return ""
	}

	html := `<div class="section-title">Recent Releases</div>`
	html += `
	<table>
		<thead>
			<tr>
				<th>Timestamp</th>
				<th>Package</th>
				<th>Tag</th>
				<th>Stage</th>
				<th>Status</th>
				<th>Logs</th>
				<th>Pipeline</th>
			</tr>
		</thead>
		<tbody>`

	legCount := len(s.Config.Builder.Legs)
	for _, release := range releases {
		state := release.State
		currentStage := release.CurrentStage
		if !storage.IsTerminalState(state) {
			stages := monitoring.GetReleaseStagesFromMachinery(s.Server.GetBackend(), release.PipelineID, legCount)
			rollbackState := s.taskState("rollback", release.PipelineID+"_rollback")
			state = deriveReleaseState(stages, rollbackState)
			currentStage = stages.CurrentStage
			if state == "ROLLED_BACK" || state == "FAILED" {
				currentStage = "rollback"
			}
		}

		statusClass := ""
		statusText := state
		switch state {
		case "PUBLISHED":
			statusClass = "status-online"
		case "FAILED", "ROLLED_BACK":
			statusClass = "status-offline"
		case "STARTED":
			statusClass = "status-warning"
			statusText = "STARTED (" + currentStage + ")"
		case "PENDING":
			if time.Since(release.SubmittedAt) > 24*time.Hour {
				statusClass = "status-offline"
				statusText = "STALLED"
			}
		}

		timeStr := fmt.Sprintf("%s<br><span style=\"color: #666; font-size: 0.9em;\">(%s)</span>",
			release.SubmittedAt.Format("2006-01-02 15:04:05 MST"),
			formatRelativeTime(release.SubmittedAt))

		logLinks := ""
		for i := 0; i < legCount; i++ {
			logLinks += fmt.Sprintf(`<a href="/logs/%s.build%d.log" target="_blank">build%d.log</a> | `,
				release.PipelineID, i, i)
		}
		logLinks += fmt.Sprintf(`<a href="/logs/%s.publish.log" target="_blank">publish.log</a> | `, release.PipelineID)
		logLinks += fmt.Sprintf(`<a href="/logs/%s.docs.log" target="_blank">docs.log</a>`, release.PipelineID)

		html += fmt.Sprintf(`
			<tr>
				<td>%s</td>
				<td>%s</td>
				<td>%s</td>
				<td>%s</td>
				<td><span class="%s">%s</span></td>
				<td>%s</td>
				<td style="font-family: monospace; font-size: 0.85em;">%s</td>
			</tr>`,
			timeStr,
			release.PackageName,
			release.Tag,
			currentStage,
			statusClass,
			statusText,
			logLinks,
			release.PipelineID,
		)
	}

	html += `
		</tbody>
	</table>
	`

	return html
}
