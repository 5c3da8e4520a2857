// redis.go

package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// Redis 键名
const (
	MatchEndedChannel = "match:ended"
	RecentMatchesKey  = "matches:recent"
	RoomListKey       = "rooms:list"

	// RecentMatchesLimit 最近对局列表长度
	RecentMatchesLimit = 50
	// RoomListTTL 房间列表缓存时间
	RoomListTTL = 5 * time.Minute
)

// Publisher 通过Redis发布对局结束事件并缓存房间列表
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布器
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// RecordMatch 发布对局概要并写入最近对局列表
func (p *Publisher) RecordMatch(ctx context.Context, rec *models.MatchRecord) error {
	data, err := json.Marshal(Summarize(rec))
	if err != nil {
		return fmt.Errorf("序列化对局概要失败: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, MatchEndedChannel, data)
	pipe.LPush(ctx, RecentMatchesKey, data)
	pipe.LTrim(ctx, RecentMatchesKey, 0, RecentMatchesLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("发布对局结束事件失败: %w", err)
	}
	return nil
}

// RecentMatches 读取最近结束的对局概要
func (p *Publisher) RecentMatches(ctx context.Context, limit int) ([]MatchSummary, error) {
	if limit <= 0 || limit > RecentMatchesLimit {
		limit = RecentMatchesLimit
	}
	items, err := p.client.LRange(ctx, RecentMatchesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取最近对局失败: %w", err)
	}

	out := make([]MatchSummary, 0, len(items))
	for _, item := range items {
		var ms MatchSummary
		if err := json.Unmarshal([]byte(item), &ms); err != nil {
			continue
		}
		out = append(out, ms)
	}
	return out, nil
}

// StoreRooms 缓存当前房间列表
func (p *Publisher) StoreRooms(ctx context.Context, rooms []models.RoomSummary) error {
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("序列化房间列表失败: %w", err)
	}
	return p.client.Set(ctx, RoomListKey, data, RoomListTTL).Err()
}

// CachedRooms 读取缓存的房间列表，未缓存时返回空列表
func (p *Publisher) CachedRooms(ctx context.Context) ([]models.RoomSummary, error) {
	data, err := p.client.Get(ctx, RoomListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.RoomSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取房间列表缓存失败: %w", err)
	}

	rooms := make([]models.RoomSummary, 0)
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("解析房间列表缓存失败: %w", err)
	}
	return rooms, nil
}

// Subscribe 订阅对局结束事件，ctx 结束时关闭订阅
func (p *Publisher) Subscribe(ctx context.Context, handle func(MatchSummary)) error {
	sub := p.client.Subscribe(ctx, MatchEndedChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("订阅失败: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ms MatchSummary
			if err := json.Unmarshal([]byte(msg.Payload), &ms); err != nil {
				continue
			}
			handle(ms)
		}
	}
}
