package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/silent-echo/signaling/config"
	"github.com/silent-echo/signaling/internal/core"
)

// ErrNotFound reports a session id with no record in the mirror.
var ErrNotFound = errors.New("session not found")

const opTimeout = 2 * time.Second

// SessionRecord is the mirrored metadata for one session. No message
// content is ever stored, only lifecycle facts.
type SessionRecord struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
	EndedAt     time.Time `json:"endedAt,omitzero"`
}

// Store mirrors session metadata into Redis so the REST surface (or a
// sibling process) can answer lookups. The in-memory core stays
// authoritative: mirror failures are logged and never reach the core.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func New(cfg config.RedisConfig, ttl time.Duration, log *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Store{rdb: rdb, ttl: ttl, log: log}, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func sessionKey(id string) string { return "session:" + id }
func membersKey(id string) string { return "session:" + id + ":members" }

// SessionStarted mirrors a fresh session record and its member set.
func (s *Store) SessionStarted(info core.SessionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rec := SessionRecord{
		ID:          info.ID,
		State:       string(info.State),
		CreatedAt:   info.CreatedAt,
		MemberCount: len(info.Members),
	}
	if err := s.writeRecord(ctx, rec); err != nil {
		s.log.Warn("session mirror write failed", "session_id", info.ID, "error", err)
		return
	}
	for _, m := range info.Members {
		if err := s.rdb.SAdd(ctx, membersKey(info.ID), m.ID).Err(); err != nil {
			s.log.Warn("member mirror write failed", "session_id", info.ID, "error", err)
		}
	}
	s.rdb.Expire(ctx, membersKey(info.ID), s.ttl)
}

// MemberJoined adds a member to the mirrored set and bumps the count.
func (s *Store) MemberJoined(sessionID string, p core.Participant) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.SAdd(ctx, membersKey(sessionID), p.ID).Err(); err != nil {
		s.log.Warn("member mirror write failed", "session_id", sessionID, "error", err)
		return
	}
	s.rdb.Expire(ctx, membersKey(sessionID), s.ttl)
	s.refreshCount(ctx, sessionID)
}

// MemberLeft removes a member from the mirrored set.
func (s *Store) MemberLeft(sessionID, participantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.SRem(ctx, membersKey(sessionID), participantID).Err(); err != nil {
		s.log.Warn("member mirror remove failed", "session_id", sessionID, "error", err)
		return
	}
	s.refreshCount(ctx, sessionID)
}

// SessionEnded marks the mirrored record ended. The record is kept until
// its TTL runs out so lookups can still report the terminal state.
func (s *Store) SessionEnded(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rec, err := s.getRecord(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("session mirror read failed", "session_id", sessionID, "error", err)
		}
		return
	}
	rec.State = string(core.StateEnded)
	rec.EndedAt = time.Now()
	if err := s.writeRecord(ctx, rec); err != nil {
		s.log.Warn("session mirror write failed", "session_id", sessionID, "error", err)
	}
	s.rdb.Del(ctx, membersKey(sessionID))
}

// GetSession returns the mirrored record for a session id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	rec, err := s.getRecord(ctx, sessionID)
	if err != nil {
		return SessionRecord{}, err
	}
	if rec.State != string(core.StateEnded) {
		count, err := s.rdb.SCard(ctx, membersKey(sessionID)).Result()
		if err == nil {
			rec.MemberCount = int(count)
		}
	}
	return rec, nil
}

func (s *Store) getRecord(ctx context.Context, sessionID string) (SessionRecord, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *Store) writeRecord(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(rec.ID), data, s.ttl).Err()
}

func (s *Store) refreshCount(ctx context.Context, sessionID string) {
	count, err := s.rdb.SCard(ctx, membersKey(sessionID)).Result()
	if err != nil {
		return
	}
	rec, err := s.getRecord(ctx, sessionID)
	if err != nil {
		return
	}
	rec.MemberCount = int(count)
	if err := s.writeRecord(ctx, rec); err != nil {
		s.log.Warn("session mirror write failed", "session_id", sessionID, "error", err)
	}
}
