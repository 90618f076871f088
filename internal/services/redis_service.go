package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dm-chat-service/internal/database"
	"dm-chat-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey    = "online_users"
	roomChannelPrefix = "room:"
)

// RedisService carries presence and the cross-instance room relay
type RedisService struct {
	client *database.RedisClient
	logger *logger.Logger
}

func NewRedisService(client *database.RedisClient, log *logger.Logger) *RedisService {
	return &RedisService{
		client: client,
		logger: log,
	}
}

func connectionsKey(userID string) string {
	return fmt.Sprintf("user:%s:connections", userID)
}

// =============================================================================
// Presence
// =============================================================================

// SetUserOnline counts one more socket for userID. A user with several
// devices stays online until the last socket goes away.
func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	rdb := r.client.GetClient()

	count, err := rdb.Incr(ctx, connectionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to count connection: %w", err)
	}
	if count == 1 {
		if err := rdb.SAdd(ctx, onlineUsersKey, userID).Err(); err != nil {
			return fmt.Errorf("failed to set user online: %w", err)
		}
	}

	r.logger.Debug("User connection counted", "userID", userID, "connections", count)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	rdb := r.client.GetClient()

	count, err := rdb.Decr(ctx, connectionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to uncount connection: %w", err)
	}
	if count > 0 {
		return nil
	}

	pipe := rdb.TxPipeline()
	pipe.Del(ctx, connectionsKey(userID))
	pipe.SRem(ctx, onlineUsersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}

	r.logger.Debug("User set to offline", "userID", userID)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

func (r *RedisService) OnlineUsers(ctx context.Context) (map[string]bool, error) {
	members, err := r.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, err
	}
	online := make(map[string]bool, len(members))
	for _, id := range members {
		online[id] = true
	}
	return online, nil
}

// =============================================================================
// Room relay
// =============================================================================

func (r *RedisService) PublishRoomMessage(ctx context.Context, roomID string, payload []byte) error {
	if err := r.client.GetClient().Publish(ctx, roomChannelPrefix+roomID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish room message: %w", err)
	}
	return nil
}

// SubscribeRooms listens to every room channel. The subscription is
// confirmed before returning so no message published afterwards is lost.
func (r *RedisService) SubscribeRooms(ctx context.Context) (*redis.PubSub, error) {
	pubsub := r.client.GetClient().PSubscribe(ctx, roomChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to rooms: %w", err)
	}
	r.logger.Debug("Pattern subscribed to rooms", "pattern", roomChannelPrefix+"*")
	return pubsub, nil
}

// RoomFromChannel extracts the room id from a relay channel name
func RoomFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, roomChannelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, roomChannelPrefix), true
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit on key and reports whether the sliding
// window still has room for it.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(limit), nil
}
