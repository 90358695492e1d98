package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// ReleaseInfo contains metadata about one release pipeline run
type ReleaseInfo struct {
	PipelineID   string    `json:"pipeline_id"`
	Tag          string    `json:"tag"`
	PackageName  string    `json:"package_name"`
	RepoOwner    string    `json:"repo_owner"`
	RepoName     string    `json:"repo_name"`
	ReleaseID    int64     `json:"release_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
	State        string    `json:"state"`         // PENDING, STARTED, PUBLISHED, FAILED, ROLLED_BACK
	CurrentStage string    `json:"current_stage"` // build, publish, docs, rollback, completed
	BuildState   string    `json:"build_state"`
	PublishState string    `json:"publish_state"`
	DocsState    string    `json:"docs_state"`
}

// ReleaseStore handles release pipeline persistence in SQLite
type ReleaseStore struct {
	db          *DB
	maxReleases int
}

// NewReleaseStore creates a new release store
func NewReleaseStore(db *DB, maxReleases int) *ReleaseStore {
	if maxReleases <= 0 {
		maxReleases = 1000 // Default maximum kept pipelines
	}
	return &ReleaseStore{
		db:          db,
		maxReleases: maxReleases,
	}
}

// RecordRelease stores release pipeline metadata in SQLite
func (s *ReleaseStore) RecordRelease(release ReleaseInfo) error {
	query := `
		INSERT INTO releases (
			pipeline_id, tag, package_name, repo_owner, repo_name, release_id,
			submitted_at, state, current_stage, build_state, publish_state, docs_state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pipeline_id) DO UPDATE SET
			tag = excluded.tag,
			package_name = excluded.package_name,
			repo_owner = excluded.repo_owner,
			repo_name = excluded.repo_name,
			release_id = excluded.release_id,
			state = excluded.state,
			current_stage = excluded.current_stage,
			build_state = excluded.build_state,
			publish_state = excluded.publish_state,
			docs_state = excluded.docs_state,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.Exec(query,
		release.PipelineID, release.Tag, release.PackageName, release.RepoOwner,
		release.RepoName, release.ReleaseID, release.SubmittedAt, release.State,
		release.CurrentStage, release.BuildState, release.PublishState, release.DocsState,
	)
	if err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}

	// Cleanup old pipelines if exceeding max
	if err := s.cleanupOldReleases(); err != nil {
		// Log but don't fail
		fmt.Printf("Warning: failed to cleanup old releases: %v\n", err)
	}

	return nil
}

// GetRelease retrieves a release pipeline by ID
func (s *ReleaseStore) GetRelease(pipelineID string) (*ReleaseInfo, error) {
	query := `
		SELECT pipeline_id, tag, package_name, repo_owner, repo_name, release_id,
			   submitted_at, state, current_stage, build_state, publish_state, docs_state
		FROM releases
		WHERE pipeline_id = ?
	`

	var release ReleaseInfo
	err := s.db.QueryRow(query, pipelineID).Scan(
		&release.PipelineID, &release.Tag, &release.PackageName, &release.RepoOwner,
		&release.RepoName, &release.ReleaseID, &release.SubmittedAt, &release.State,
		&release.CurrentStage, &release.BuildState, &release.PublishState, &release.DocsState,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("release not found: %s", pipelineID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}

	return &release, nil
}

// GetReleaseByTag retrieves the most recent pipeline for a tag
func (s *ReleaseStore) GetReleaseByTag(tag string) (*ReleaseInfo, error) {
	query := `
		SELECT pipeline_id, tag, package_name, repo_owner, repo_name, release_id,
			   submitted_at, state, current_stage, build_state, publish_state, docs_state
		FROM releases
		WHERE tag = ?
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	var release ReleaseInfo
	err := s.db.QueryRow(query, tag).Scan(
		&release.PipelineID, &release.Tag, &release.PackageName, &release.RepoOwner,
		&release.RepoName, &release.ReleaseID, &release.SubmittedAt, &release.State,
		&release.CurrentStage, &release.BuildState, &release.PublishState, &release.DocsState,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release: %w", err)
	}

	return &release, nil
}

// GetRecentReleases retrieves the N most recent release pipelines
func (s *ReleaseStore) GetRecentReleases(limit int) ([]*ReleaseInfo, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT pipeline_id, tag, package_name, repo_owner, repo_name, release_id,
			   submitted_at, state, current_stage, build_state, publish_state, docs_state
		FROM releases
		ORDER BY submitted_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	defer rows.Close()

	var releases []*ReleaseInfo
	for rows.Next() {
		var release ReleaseInfo
		err := rows.Scan(
			&release.PipelineID, &release.Tag, &release.PackageName, &release.RepoOwner,
			&release.RepoName, &release.ReleaseID, &release.SubmittedAt, &release.State,
			&release.CurrentStage, &release.BuildState, &release.PublishState, &release.DocsState,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		releases = append(releases, &release)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating releases: %w", err)
	}

	return releases, nil
}

// IsTerminalState returns true if the state is a final state that should not be overwritten.
func IsTerminalState(state string) bool {
	switch state {
	case "PUBLISHED", "FAILED", "ROLLED_BACK":
		return true
	}
	return false
}

// UpdateReleaseState updates the state of a release pipeline. Terminal
// states are kept, with one exception: FAILED may still become ROLLED_BACK,
// since a status poll can land between a leg failure and the rollback task
// finishing.
func (s *ReleaseStore) UpdateReleaseState(pipelineID, state string) error {
	query := `
		UPDATE releases
		SET state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE pipeline_id = ?
		AND (state NOT IN ('PUBLISHED', 'FAILED', 'ROLLED_BACK')
			OR (state = 'FAILED' AND ? = 'ROLLED_BACK'))
	`

	result, err := s.db.Exec(query, state, pipelineID, state)
	if err != nil {
		return fmt.Errorf("failed to update release state: %w", err)
	}

	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	// Release not found or already terminal, both acceptable
	return nil
}

// UpdateStageStates refreshes the cached per-stage states of a pipeline
func (s *ReleaseStore) UpdateStageStates(pipelineID, buildState, publishState, docsState, currentStage string) error {
	query := `
		UPDATE releases
		SET build_state = ?, publish_state = ?, docs_state = ?, current_stage = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE pipeline_id = ?
	`
	if _, err := s.db.Exec(query, buildState, publishState, docsState, currentStage, pipelineID); err != nil {
		return fmt.Errorf("failed to update stage states: %w", err)
	}
	return nil
}

// cleanupOldReleases drops the oldest rows beyond the configured maximum
func (s *ReleaseStore) cleanupOldReleases() error {
	query := `
		DELETE FROM releases
		WHERE pipeline_id NOT IN (
			SELECT pipeline_id FROM releases
			ORDER BY submitted_at DESC
			LIMIT ?
		)
	`
	_, err := s.db.Exec(query, s.maxReleases)
	return err
}
