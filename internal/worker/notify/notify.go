// Package notify announces finished metatiles on a Redis channel so tile
// caches can expire their copies.
package notify

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/protocol"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "metatile:done"

// TypeMetatileDone is the message type of completion events.
const TypeMetatileDone = "metatile_done"

// Event describes one published metatile.
type Event struct {
	RequestID  string
	Layer      string
	X, Y, Z    int
	ObjectKey  string
	RenderTime int
}

// Fields returns the event in wire form.
func (e Event) Fields() map[string]string {
	return map[string]string{
		protocol.FieldType:       TypeMetatileDone,
		protocol.FieldID:         e.RequestID,
		protocol.FieldMap:        e.Layer,
		protocol.FieldX:          strconv.Itoa(e.X),
		protocol.FieldY:          strconv.Itoa(e.Y),
		protocol.FieldZ:          strconv.Itoa(e.Z),
		"path":                   e.ObjectKey,
		protocol.FieldRenderTime: strconv.Itoa(e.RenderTime),
	}
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events with PUBLISH, encoded like protocol messages.
type RedisNotifier struct {
	rdb     publisher
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return newNotifier(rdb, channel)
}

func newNotifier(rdb publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel}
}

// Notify publishes e and returns the number of subscribers that received it.
func (n *RedisNotifier) Notify(ctx context.Context, e Event) (int64, error) {
	receivers, err := n.rdb.Publish(ctx, n.channel, protocol.Encode(e.Fields())).Result()
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "notify.publish", n.channel)
	}
	return receivers, nil
}
