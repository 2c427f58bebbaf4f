package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/pkg/errors"
)

const keyPrefix = "neulbom:upload:"

// Store keeps upload sessions in Redis between the preview and confirm
// steps, mirroring the stateless-per-request model: nothing about an
// upload lives in process memory.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Create persists a new session and returns it with a generated ID.
func (s *Store) Create(ctx context.Context, instructorID int64, rows []model.RosterRow) (*model.UploadSession, error) {
	session := &model.UploadSession{
		ID:           uuid.NewString(),
		InstructorID: instructorID,
		Rows:         rows,
		CreatedAt:    time.Now(),
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.UploadSession, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session model.UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Update rewrites the session, refreshing its TTL.
func (s *Store) Update(ctx context.Context, session *model.UploadSession) error {
	return s.save(ctx, session)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}

func (s *Store) save(ctx context.Context, session *model.UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+session.ID, data, s.ttl).Err()
}
