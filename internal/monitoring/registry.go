package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/blankon/rilis-go/internal/storage"
)

const (
	// Redis key prefixes
	instanceKeyPrefix = "rilis:instances:"
	instanceIndexKey  = "rilis:instances:index"

	// Default timeout to mark instance as offline (90 seconds)
	defaultInstanceTTL = 90 * time.Second

	// Keep instance records in Redis for 24 hours before removing
	redisStorageTTL = 24 * time.Hour

	// Remove instances after 24 hours of no heartbeat
	instanceRemovalTimeout = 24 * time.Hour
)

// Registry manages worker instances in Redis and the release history in SQLite
type Registry struct {
	client       *redis.Client
	instanceTTL  time.Duration // Timeout to mark as offline
	ctx          context.Context
	releaseStore *storage.ReleaseStore
}

// NewRegistry creates a new instance registry with Redis for instances and
// SQLite for the release history
func NewRegistry(redisURL string, ttl time.Duration, db *storage.DB, maxReleases int) (*Registry, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl == 0 {
		ttl = defaultInstanceTTL
	}

	var releaseStore *storage.ReleaseStore
	if db != nil {
		releaseStore = storage.NewReleaseStore(db, maxReleases)
	}

	return &Registry{
		client:       client,
		instanceTTL:  ttl,
		ctx:          ctx,
		releaseStore: releaseStore,
	}, nil
}

// GetReleaseStore returns the release store for direct access if needed
func (r *Registry) GetReleaseStore() *storage.ReleaseStore {
	return r.releaseStore
}

// UpdateInstance updates or creates an instance record
func (r *Registry) UpdateInstance(info InstanceInfo) error {
	info.LastHeartbeat = time.Now()
	info.Status = StatusOnline

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal instance info: %w", err)
	}

	instanceKey := instanceKeyPrefix + info.InstanceID
	typeIndexKey := instanceKeyPrefix + string(info.InstanceType) + ":index"

	pipe := r.client.Pipeline()

	// Instance data expires after 24 hours, indices persist
	pipe.Set(r.ctx, instanceKey, data, redisStorageTTL)
	pipe.SAdd(r.ctx, instanceIndexKey, info.InstanceID)
	pipe.SAdd(r.ctx, typeIndexKey, info.InstanceID)

	_, err = pipe.Exec(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	return nil
}

// GetInstance retrieves an instance by ID
func (r *Registry) GetInstance(instanceID string) (*InstanceInfo, error) {
	instanceKey := instanceKeyPrefix + instanceID

	data, err := r.client.Get(r.ctx, instanceKey).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var info InstanceInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance info: %w", err)
	}

	if time.Since(info.LastHeartbeat) > r.instanceTTL {
		info.Status = StatusOffline
	}

	return &info, nil
}

// ListInstances retrieves all instances, optionally filtered by type and status
func (r *Registry) ListInstances(instanceType InstanceType, status InstanceStatus) ([]*InstanceInfo, error) {
	var indexKey string
	if instanceType != "" {
		indexKey = instanceKeyPrefix + string(instanceType) + ":index"
	} else {
		indexKey = instanceIndexKey
	}

	instanceIDs, err := r.client.SMembers(r.ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*InstanceInfo, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		info, err := r.GetInstance(id)
		if err != nil {
			// Instance key has expired, nothing to show
			continue
		}

		if status != "" && info.Status != status {
			continue
		}

		instances = append(instances, info)
	}

	return instances, nil
}

// CleanupStaleInstances removes instances that haven't sent heartbeats in 24 hours
func (r *Registry) CleanupStaleInstances() error {
	instanceIDs, err := r.client.SMembers(r.ctx, instanceIndexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list instances for cleanup: %w", err)
	}

	removedCount := 0
	expiredKeyCount := 0
	for _, id := range instanceIDs {
		instanceKey := instanceKeyPrefix + id

		data, err := r.client.Get(r.ctx, instanceKey).Result()
		if err == redis.Nil {
			// Instance key already expired, drop the dangling index entry
			expiredKeyCount++
			r.removeFromIndices(id)
			continue
		}
		if err != nil {
			continue
		}

		var info InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}

		if time.Since(info.LastHeartbeat) > instanceRemovalTimeout {
			r.client.Del(r.ctx, instanceKey)
			r.removeFromIndices(id)
			removedCount++
		}
	}

	if removedCount > 0 || expiredKeyCount > 0 {
		fmt.Printf("Cleanup: Removed %d stale instances (%d expired, %d timeout)\n",
			removedCount+expiredKeyCount, expiredKeyCount, removedCount)
	}

	return nil
}

// removeFromIndices removes an instance ID from all indices
func (r *Registry) removeFromIndices(instanceID string) {
	r.client.SRem(r.ctx, instanceIndexKey, instanceID)

	// Instance IDs have the form hostname-type
	parts := strings.Split(instanceID, "-")
	if len(parts) >= 2 {
		instanceType := parts[len(parts)-1]
		typeIndexKey := instanceKeyPrefix + instanceType + ":index"
		r.client.SRem(r.ctx, typeIndexKey, instanceID)
	}
}

// GetSummary returns aggregate statistics about instances
func (r *Registry) GetSummary() (InstanceSummary, error) {
	instances, err := r.ListInstances("", "")
	if err != nil {
		return InstanceSummary{}, err
	}

	summary := InstanceSummary{
		Total:  len(instances),
		ByType: make(map[string]int),
	}

	for _, instance := range instances {
		if instance.Status == StatusOnline {
			summary.Online++
		} else {
			summary.Offline++
		}
		summary.ByType[string(instance.InstanceType)]++
	}

	return summary, nil
}

// GetOrCreateStartTime retrieves the start time for an instance or creates a new one
func (r *Registry) GetOrCreateStartTime(instanceID string) time.Time {
	info, err := r.GetInstance(instanceID)
	if err == nil && !info.StartTime.IsZero() {
		return info.StartTime
	}
	return time.Now()
}

// Close closes the Redis connection
func (r *Registry) Close() error {
	return r.client.Close()
}
