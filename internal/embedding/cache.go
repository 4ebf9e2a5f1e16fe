package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/pkg/logger"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
)

const cacheKeyPrefix = "supportdesk:embedding:"

// Cache memoises another provider's vectors in Redis. Redis failures are
// logged and fall through to the wrapped provider.
type Cache struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewCache wraps next with a Redis cache. A zero ttl keeps entries forever.
func NewCache(next Provider, client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{next: next, client: client, ttl: ttl, logger: log}
}

// Embed implements Provider.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vec, ok := decodeVector(data, c.next.Dimensions()); ok {
			metrics.RecordCacheLookup(true)
			return vec, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("embedding cache read failed", logger.Err(err)...)
	}
	metrics.RecordCacheLookup(false)

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", append(logger.Err(err), zap.String("model", c.next.Model()))...)
	}
	return vec, nil
}

// Dimensions implements Provider.
func (c *Cache) Dimensions() int {
	return c.next.Dimensions()
}

// Model implements Provider.
func (c *Cache) Model() string {
	return c.next.Model()
}

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(c.next.Model() + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte, dimensions int) ([]float32, bool) {
	if len(data) != 4*dimensions {
		return nil, false
	}
	vec := make([]float32, dimensions)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, true
}
