package distress

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
	r "gopkg.in/redis.v5"
)

const cachePrefix = "_SARTHI_DISTRESS_"

// nullMatch is stored for texts whose index query came back empty.
var nullMatch = []byte("null")

// RedisCache keeps nearest matches in redis. Errors degrade to cache misses.
type RedisCache struct {
	client *r.Client
	ttl    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := r.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: r.NewClient(opts), ttl: ttl}, nil
}

func (c *RedisCache) Get(key string) (*Match, bool) {
	b, err := c.client.Get(cachePrefix + key).Bytes()
	if err != nil {
		if err != r.Nil {
			log.WithError(err).Debug("distress cache get failed")
		}
		return nil, false
	}
	if string(b) == string(nullMatch) {
		return nil, true
	}
	var m Match
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false
	}
	return &m, true
}

func (c *RedisCache) Set(key string, m *Match) {
	b := nullMatch
	if m != nil {
		var err error
		if b, err = json.Marshal(m); err != nil {
			return
		}
	}
	if err := c.client.Set(cachePrefix+key, b, c.ttl).Err(); err != nil {
		log.WithError(err).Debug("distress cache set failed")
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
