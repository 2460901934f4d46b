package embedfall

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// The optional Redis tier shares computed embeddings between processes
// working against the same model. Keys hash the text so arbitrary input
// stays out of the keyspace; values are comma-joined floats, small enough
// at 384 dimensions not to warrant a binary codec.

func (e *Engine) redisKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedfall:%s:%x", e.cfg.ModelID, sum[:12])
}

func (e *Engine) redisGet(ctx context.Context, text string) ([]float32, bool) {
	client := e.redisClient()
	if client == nil {
		return nil, false
	}

	data, err := client.Get(ctx, e.redisKey(text)).Result()
	if err != nil {
		return nil, false
	}

	parts := strings.Split(data, ",")
	if len(parts) != e.cfg.Dimensions {
		e.logger.Warn("discarding cached embedding with wrong dimensions",
			zap.Int("got", len(parts)), zap.Int("want", e.cfg.Dimensions))
		return nil, false
	}
	vec := make([]float32, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return nil, false
		}
		vec[i] = float32(val)
	}
	return vec, true
}

// redisPut writes through asynchronously; a slow or failing Redis must not
// delay the embedding path. The client is captured before the goroutine
// launches so a concurrent Close cannot pull it out from under the write;
// writing to an already-closed client is just a logged error.
func (e *Engine) redisPut(text string, vec []float32) {
	client := e.redisClient()
	if client == nil {
		return
	}

	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	key := e.redisKey(text)
	value := strings.Join(parts, ",")

	go func() {
		if err := client.Set(context.Background(), key, value, e.cfg.CacheTTL).Err(); err != nil {
			e.logger.Debug("redis cache write failed", zap.Error(err))
		}
	}()
}
