package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/utils"
)

const sessionKeyPrefix = "session:"

// RedisSession maps opaque session tokens to authenticated user ids.
// Tokens expire server-side; nothing survives a Redis flush.
type RedisSession struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisSession(redisClient *redis.Client, cfg *config.Config) *RedisSession {
	return &RedisSession{redis: redisClient, cfg: cfg}
}

// Create stores a fresh unguessable token for userID and returns it.
func (s *RedisSession) Create(ctx context.Context, userID int64) (token string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("Session.Create start", slog.String("rqID", rqID))

	token = uuid.NewString()

	_, err = s.redis.Set(ctx, sessionKeyPrefix+token, userID, s.cfg.SessionExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return "", err
	}

	slog.Debug("Session.Create completed", slog.String("rqID", rqID))

	return token, nil
}

// Resolve returns the user id bound to token, or ErrNotFound.
func (s *RedisSession) Resolve(ctx context.Context, token string) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("Session.Resolve start", slog.String("rqID", rqID))

	res, err := s.redis.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return 0, err
	}

	userID, err = strconv.ParseInt(res, 10, 64)
	if err != nil {
		slog.Error("can't parse userID from session value", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("resultFromRedis", res))
		return 0, errors.New("can't parse session value")
	}

	slog.Debug("Session.Resolve completed", slog.String("rqID", rqID))

	return userID, nil
}

// Delete drops the token. Deleting an unknown token is not an error.
func (s *RedisSession) Delete(ctx context.Context, token string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("Session.Delete start", slog.String("rqID", rqID))

	_, err := s.redis.Del(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("Session.Delete completed", slog.String("rqID", rqID))

	return nil
}
