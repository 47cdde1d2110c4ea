package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is the canonical append-only audit record. It captures every
// authentication-relevant outcome, success and failure alike, and is never
// read back by the auth logic itself.
type Entry struct {
	Timestamp     time.Time         `json:"timestamp"`
	Action        string            `json:"action"`
	UserID        string            `json:"user_id,omitempty"`
	IP            string            `json:"ip,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// Sink receives emitted audit entries. Implementations must tolerate
// concurrent calls and must never panic: audit is best-effort by contract.
type Sink interface {
	Emit(ctx context.Context, entry Entry)
}

// NoOpSink drops audit entries.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Entry) {}

// ChannelSink writes audit entries into a buffered channel. Used by tests
// and by callers that want to fan entries out themselves.
type ChannelSink struct {
	entries chan Entry
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		entries: make(chan Entry, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, entry Entry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Entries() <-chan Entry {
	return s.entries
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, entry Entry) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// RedisListSink persists entries to a capped Redis list, newest first. It is
// the durable audit log: LPUSH then LTRIM keeps at most maxEntries records.
// Write failures are swallowed; a logging failure must never abort the
// operation being audited.
type RedisListSink struct {
	redis      redis.UniversalClient
	key        string
	maxEntries int64
}

func NewRedisListSink(redisClient redis.UniversalClient, key string, maxEntries int64) *RedisListSink {
	if key == "" {
		key = "mu:audit"
	}
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &RedisListSink{
		redis:      redisClient,
		key:        key,
		maxEntries: maxEntries,
	}
}

func (s *RedisListSink) Emit(ctx context.Context, entry Entry) {
	if s == nil || s.redis == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxEntries-1)
	_, _ = pipe.Exec(ctx)
}

// Recent returns up to n of the newest entries, for operational inspection.
func (s *RedisListSink) Recent(ctx context.Context, n int64) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	raw, err := s.redis.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
