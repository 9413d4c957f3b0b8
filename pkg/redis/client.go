package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// heartbeatTTL is how long a hub counts as online after its last ping.
const heartbeatTTL = 90 * time.Second

// Client wraps the Redis connection.
type Client struct {
	rdb *goredis.Client
	log *zap.SugaredLogger
}

// NewClient connects to Redis with retry.
func NewClient(addr string, log *zap.SugaredLogger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err == nil {
			cancel()
			log.Info("connected to redis")
			return &Client{rdb: rdb, log: log}, nil
		}
		cancel()
		log.Infof("waiting for redis... (%d/20)", i+1)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("redis: failed to connect after 20 attempts")
}

// SetDriverLocation stores a driver's position in a Redis GEO set.
func (c *Client) SetDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return c.rdb.GeoAdd(ctx, "driver:locations", &goredis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// NearbyDrivers returns driver IDs within radiusKm of (lat,lng).
func (c *Client) NearbyDrivers(ctx context.Context, lat, lng, radiusKm float64, count int) ([]string, error) {
	return c.rdb.GeoSearch(ctx, "driver:locations", &goredis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Count:      count,
		Sort:       "ASC",
	}).Result()
}

// RemoveDriverLocation removes a driver from the GEO set.
func (c *Client) RemoveDriverLocation(ctx context.Context, driverID string) error {
	return c.rdb.ZRem(ctx, "driver:locations", driverID).Err()
}

// TouchHubHeartbeat records a heartbeat ping from a diagnostic hub. The key
// expires on its own, so a silent hub drops to offline without cleanup.
func (c *Client) TouchHubHeartbeat(ctx context.Context, hubID string) error {
	return c.rdb.Set(ctx, "hub:heartbeat:"+hubID, time.Now().UTC().Format(time.RFC3339), heartbeatTTL).Err()
}

// HubOnline reports whether the hub has pinged within the heartbeat window.
func (c *Client) HubOnline(ctx context.Context, hubID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, "hub:heartbeat:"+hubID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close tears down the Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }
