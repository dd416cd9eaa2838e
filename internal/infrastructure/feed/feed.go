package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const ActivityFoundingMember = "founding_member"

// Activity is one entry of the public activity feed.
type Activity struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	MemberNumber string    `json:"member_number,omitempty"`
	Badge        string    `json:"badge,omitempty"`
	At           time.Time `json:"at"`
}

// RedisFeed keeps the newest entries in a capped Redis list.
type RedisFeed struct {
	client *redis.Client
	key    string
	maxLen int64
}

func NewRedisFeed(client *redis.Client, key string, maxLen int64) *RedisFeed {
	if maxLen <= 0 {
		maxLen = 200
	}
	return &RedisFeed{client: client, key: key, maxLen: maxLen}
}

func (f *RedisFeed) Append(ctx context.Context, a Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, f.key, data)
		pipe.LTrim(ctx, f.key, 0, f.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (f *RedisFeed) Recent(ctx context.Context, n int64) ([]Activity, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := f.client.LRange(ctx, f.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read activity feed: %w", err)
	}
	out := make([]Activity, 0, len(raw))
	for _, r := range raw {
		var a Activity
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
