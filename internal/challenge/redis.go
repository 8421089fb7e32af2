package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisGate хранит ожидаемые ответы в Redis.
type RedisGate struct {
	client *redis.Client
	puzzle *Puzzle
	prefix string
	ttl    time.Duration
}

// NewRedisGate подключается к Redis по URL и проверяет соединение.
func NewRedisGate(redisURL string, ttl time.Duration) (*RedisGate, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisGateWithClient(client, ttl), nil
}

// NewRedisGateWithClient создаёт gate поверх существующего клиента.
func NewRedisGateWithClient(client *redis.Client, ttl time.Duration) *RedisGate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGate{
		client: client,
		puzzle: NewPuzzle(),
		prefix: "captcha:",
		ttl:    ttl,
	}
}

func (g *RedisGate) key(k string) string {
	return g.prefix + k
}

func (g *RedisGate) Issue(ctx context.Context) (Challenge, error) {
	question, answer := g.puzzle.Generate()
	key := uuid.NewString()
	if err := g.client.Set(ctx, g.key(key), answer, g.ttl).Err(); err != nil {
		return Challenge{}, fmt.Errorf("save challenge: %w", err)
	}
	return Challenge{Key: key, Question: question}, nil
}

// Consume использует GETDEL: проверка и удаление - одна операция,
// поэтому два параллельных запроса с одним ключом не пройдут оба.
func (g *RedisGate) Consume(ctx context.Context, key, response string) error {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(response) == "" {
		return ErrRequired()
	}

	expected, err := g.client.GetDel(ctx, g.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalid()
	}
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if !matches(expected, response) {
		return ErrInvalid()
	}
	return nil
}

// Close закрывает соединение с Redis.
func (g *RedisGate) Close() error {
	return g.client.Close()
}

// Ping проверяет доступность Redis.
func (g *RedisGate) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
