package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/sqlscope/internal/catalog"
)

const defaultColumnTTL = 10 * time.Minute

// ColumnCache keeps metadata RPC column results in Valkey under the keys
// built by catalog.ColumnCacheKey.
type ColumnCache struct {
	client valkey.Client
	ttl    time.Duration
}

// NewColumnCache creates a cache with the given entry TTL. A non-positive
// ttl uses ten minutes.
func NewColumnCache(client valkey.Client, ttl time.Duration) *ColumnCache {
	if ttl <= 0 {
		ttl = defaultColumnTTL
	}
	return &ColumnCache{client: client, ttl: ttl}
}

// GetColumns returns the cached columns, or nil with no error on a miss.
func (c *ColumnCache) GetColumns(ctx context.Context, key string) ([]catalog.Column, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get columns %s: %w", key, err)
	}

	var cols []catalog.Column
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, fmt.Errorf("decode columns %s: %w", key, err)
	}
	return cols, nil
}

// SetColumns stores cols under key with the cache TTL.
func (c *ColumnCache) SetColumns(ctx context.Context, key string, cols []catalog.Column) error {
	data, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	resp := c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(data)).Ex(c.ttl).Build())
	if err := resp.Error(); err != nil {
		return fmt.Errorf("set columns %s: %w", key, err)
	}
	return nil
}
