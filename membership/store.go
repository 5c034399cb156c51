package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("membership store unavailable")

// Status is the lifecycle state of a membership.
type Status string

const (
	// StatusActive memberships grant access to the workspace.
	StatusActive Status = "active"
	// StatusInvited memberships are pending and grant nothing.
	StatusInvited Status = "invited"
)

// Workspace is one membership record.
type Workspace struct {
	UID    string `json:"uid"`
	ID     string `json:"id"`
	Role   string `json:"role,omitempty"`
	Status Status `json:"status"`
}

// Store lists the workspaces an identity may act in.
type Store interface {
	ActiveWorkspaces(ctx context.Context, userCrUID string) ([]Workspace, error)
}

// Find returns the active workspace with the given UID from list.
func Find(list []Workspace, workspaceUID string) (Workspace, bool) {
	for _, ws := range list {
		if ws.UID == workspaceUID && ws.Status == StatusActive {
			return ws, true
		}
	}
	return Workspace{}, false
}

// RedisStore is a Redis-backed [Store].
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisStore creates a store under the given key prefix. Each call is
// bounded by timeout when it is positive.
func NewRedisStore(rdb redis.UniversalClient, prefix string, timeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "deskauth"
	}
	return &RedisStore{
		redis:   rdb,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (s *RedisStore) key(userCrUID string) string {
	return s.prefix + ":members:" + userCrUID
}

func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// Put creates or replaces a membership record.
func (s *RedisStore) Put(ctx context.Context, userCrUID string, ws Workspace) error {
	if userCrUID == "" || ws.UID == "" || ws.ID == "" {
		return errors.New("membership requires user, workspace uid and workspace id")
	}
	switch ws.Status {
	case StatusActive, StatusInvited:
	default:
		return fmt.Errorf("unknown membership status %q", ws.Status)
	}

	data, err := json.Marshal(ws)
	if err != nil {
		return err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.redis.HSet(ctx, s.key(userCrUID), ws.UID, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Remove deletes a membership record. Removing a missing record is not an error.
func (s *RedisStore) Remove(ctx context.Context, userCrUID, workspaceUID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.redis.HDel(ctx, s.key(userCrUID), workspaceUID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ActiveWorkspaces returns the active memberships of userCrUID ordered by
// workspace UID. Records that fail to decode are skipped.
func (s *RedisStore) ActiveWorkspaces(ctx context.Context, userCrUID string) ([]Workspace, error) {
	if userCrUID == "" {
		return nil, nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	fields, err := s.redis.HGetAll(ctx, s.key(userCrUID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Workspace, 0, len(fields))
	for uid, raw := range fields {
		var ws Workspace
		if err := json.Unmarshal([]byte(raw), &ws); err != nil {
			continue
		}
		if ws.UID != uid || ws.Status != StatusActive {
			continue
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// Ping reports Redis availability and round-trip latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
