package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrkyc/sqlite-stddev-extension/internal/model"
)

const recentKeep = 999

// SampleStore caches the latest sample and a trimmed recent list per
// series in redis.
type SampleStore struct {
	client *redis.Client
}

func NewSampleStore(addr, password string, db int) *SampleStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &SampleStore{client: client}
}

func (s *SampleStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SampleStore) Stop() error {
	return s.client.Close()
}

func (s *SampleStore) Save(ctx context.Context, m model.Sample) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, "samples:latest:"+m.SeriesID, payload, time.Hour)
	pipe.LPush(ctx, "samples:recent:"+m.SeriesID, payload)
	pipe.LTrim(ctx, "samples:recent:"+m.SeriesID, 0, recentKeep)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}

	return nil
}

func (s *SampleStore) FetchLatest(ctx context.Context, seriesID string) (*model.Sample, error) {
	data, err := s.client.Get(ctx, "samples:latest:"+seriesID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var m model.Sample
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal sample: %w", err)
	}

	return &m, nil
}
