package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"dm-chat-service/internal/models"
	"dm-chat-service/internal/repositories"
	"dm-chat-service/pkg/logger"
)

var ErrUserNotFound = repositories.ErrUserNotFound

const directoryWriteTimeout = 5 * time.Second

// UserStore is the user directory table
type UserStore interface {
	InsertIfAbsent(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListExcept(ctx context.Context, excludeID string) ([]models.User, error)
}

// PresenceReader reports which users currently hold a socket
type PresenceReader interface {
	OnlineUsers(ctx context.Context) (map[string]bool, error)
}

// DirectoryService keeps the user directory in step with authenticated
// sessions and serves it to the HTTP API.
//
// Upserts from the socket path go through a bounded queue so a slow
// database never stalls the handshake.
type DirectoryService struct {
	users    UserStore
	presence PresenceReader
	logger   *logger.Logger

	queue   chan models.User
	stopped chan struct{}
	once    sync.Once

	mu      sync.RWMutex
	closing bool
}

func NewDirectoryService(users UserStore, presence PresenceReader, queueSize int, log *logger.Logger) *DirectoryService {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &DirectoryService{
		users:    users,
		presence: presence,
		logger:   log,
		queue:    make(chan models.User, queueSize),
		stopped:  make(chan struct{}),
	}
}

// Start launches the worker that drains the upsert queue
func (s *DirectoryService) Start() {
	go s.run()
}

func (s *DirectoryService) run() {
	defer close(s.stopped)
	for user := range s.queue {
		s.upsert(user)
	}
}

func (s *DirectoryService) upsert(user models.User) {
	ctx, cancel := context.WithTimeout(context.Background(), directoryWriteTimeout)
	defer cancel()

	if err := s.users.InsertIfAbsent(ctx, &user); err != nil {
		s.logger.Error("Failed to upsert directory entry", "userID", user.ID, "error", err)
		return
	}
	s.logger.Debug("Directory entry synced", "userID", user.ID)
}

// Enqueue schedules an insert-if-absent of the identity. It never blocks:
// when the queue is full or the service is stopping the entry is dropped.
func (s *DirectoryService) Enqueue(id, email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closing {
		return false
	}

	select {
	case s.queue <- models.User{ID: id, Email: email}:
		return true
	default:
		s.logger.Warn("Directory queue full, dropping upsert", "userID", id)
		return false
	}
}

// Stop refuses new entries and waits until the queue is drained or ctx ends
func (s *DirectoryService) Stop(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		close(s.queue)
		s.mu.Unlock()
	})

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListUsers returns every user except callerID ordered by email. The
// online flag is set only when presence is available.
func (s *DirectoryService) ListUsers(ctx context.Context, callerID string) ([]models.UserResponse, error) {
	users, err := s.users.ListExcept(ctx, callerID)
	if err != nil {
		return nil, &StorageError{Op: "list users", Err: err}
	}

	var online map[string]bool
	if s.presence != nil {
		online, err = s.presence.OnlineUsers(ctx)
		if err != nil {
			s.logger.Warn("Presence unavailable, listing users without status", "error", err)
			online = nil
		}
	}

	result := make([]models.UserResponse, 0, len(users))
	for i := range users {
		resp := users[i].ToResponse()
		if online != nil {
			isOnline := online[users[i].ID]
			resp.Online = &isOnline
		}
		result = append(result, resp)
	}
	return result, nil
}

// Profile returns the directory entry of userID
func (s *DirectoryService) Profile(ctx context.Context, userID string) (*models.UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, &StorageError{Op: "find user", Err: err}
	}
	resp := user.ToResponse()
	return &resp, nil
}
