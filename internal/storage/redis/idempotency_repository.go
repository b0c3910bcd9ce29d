// Package redis хранит ключи идемпотентности в Redis. Истечение ключей
// обеспечивает сам Redis (PEXPIREAT), поэтому cleanup-воркер здесь не нужен.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// DefaultKeyPrefix — префикс ключей идемпотентности в общем keyspace.
const DefaultKeyPrefix = "bookstore:idempotency:"

const (
	fieldRequestHash  = "request_hash"
	fieldStatus       = "status"
	fieldStatusCode   = "status_code"
	fieldResponseBody = "response_body"
	fieldTTLAt        = "ttl_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// createProcessingScript атомарно занимает ключ.
// Возвращает "" при успехе или request_hash уже существующей записи.
var createProcessingScript = goredis.NewScript(`
local existing = redis.call('HGET', KEYS[1], 'request_hash')
if existing then
	return existing
end

redis.call('HSET', KEYS[1],
	'request_hash', ARGV[1],
	'status', ARGV[2],
	'ttl_at', ARGV[3],
	'created_at', ARGV[4],
	'updated_at', ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
return ''
`)

// finishScript обновляет статус существующей записи, не трогая её TTL.
var finishScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end

redis.call('HSET', KEYS[1],
	'status', ARGV[1],
	'status_code', ARGV[2],
	'response_body', ARGV[3],
	'updated_at', ARGV[4])
return 1
`)

// releaseScript удаляет запись, только пока она в статусе processing.
var releaseScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
	return 0
end
return redis.call('DEL', KEYS[1])
`)

// IdempotencyRepository реализует domain.IdempotencyRepository поверх Redis hash.
type IdempotencyRepository struct {
	client goredis.Cmdable
	prefix string
	now    func() time.Time
}

// Option настраивает IdempotencyRepository.
type Option func(*IdempotencyRepository)

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) Option {
	return func(r *IdempotencyRepository) {
		if strings.TrimSpace(prefix) != "" {
			r.prefix = prefix
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *IdempotencyRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewIdempotencyRepository создаёт Redis-реализацию IdempotencyRepository.
func NewIdempotencyRepository(client goredis.Cmdable, options ...Option) *IdempotencyRepository {
	repo := &IdempotencyRepository{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(repo)
	}
	return repo
}

func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}

	existingHash, err := createProcessingScript.Run(ctx, r.client, []string{r.redisKey(key)},
		requestHash,
		string(domain.IdempotencyStatusProcessing),
		formatTime(ttlAt),
		formatTime(now),
		ttlAt.UnixMilli(),
	).Text()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}

	if existingHash != "" {
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existingHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	fields, err := r.client.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	if len(fields) == 0 {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return decodeRecord(key, fields)
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, statusCode)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, statusCode)
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	released, err := releaseScript.Run(ctx, r.client, []string{r.redisKey(key)},
		string(domain.IdempotencyStatusProcessing),
	).Int()
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	if released == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired ничего не делает: Redis удаляет ключи сам по PEXPIREAT.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping проверяет доступность Redis.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *IdempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, statusCode int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	updated, err := finishScript.Run(ctx, r.client, []string{r.redisKey(key)},
		string(status),
		statusCode,
		responseBody,
		formatTime(r.now()),
	).Int()
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *IdempotencyRepository) redisKey(key string) string {
	return r.prefix + key
}

func decodeRecord(key string, fields map[string]string) (domain.IdempotencyRecord, error) {
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: fields[fieldRequestHash],
		Status:      domain.IdempotencyStatus(fields[fieldStatus]),
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", fields[fieldStatus], key)
	}
	if body, ok := fields[fieldResponseBody]; ok && body != "" {
		record.ResponseBody = []byte(body)
	}
	if raw, ok := fields[fieldStatusCode]; ok && raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("parse idempotency status code for key %s: %w", key, err)
		}
		record.StatusCode = code
	}

	var err error
	if record.TTLAt, err = parseTime(fields, fieldTTLAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if record.CreatedAt, err = parseTime(fields, fieldCreatedAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if record.UpdatedAt, err = parseTime(fields, fieldUpdatedAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(fields map[string]string, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok {
		return time.Time{}, errors.New("idempotency record is missing " + name)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return t, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
