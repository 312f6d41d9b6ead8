package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const streamKeyPrefix = "chat:stream:"

// Fast log entry field names.
const (
	fieldSentBy    = "sentBy"
	fieldMessage   = "message"
	fieldSeen      = "seen"
	fieldTimestamp = "timestamp"
)

var (
	// ErrInvalidStreamID is returned for cursors that are not "<ms>-<seq>" ids or sentinels.
	ErrInvalidStreamID = errors.New("invalid stream id")

	errEmptyRange = errors.New("empty range")
)

// Cursor is a position in a fast log. Exclusive cursors skip the entry they name.
type Cursor struct {
	ID        string
	Exclusive bool
}

var (
	// CursorStart addresses the oldest retained entry.
	CursorStart = Cursor{ID: "-"}
	// CursorEnd addresses the newest entry.
	CursorEnd = Cursor{ID: "+"}
)

// After returns an exclusive cursor positioned at id.
func After(id string) Cursor {
	return Cursor{ID: id, Exclusive: true}
}

// StreamEntry is a single record of a chat's fast log.
type StreamEntry struct {
	ID        string
	SentBy    string
	Message   string
	Seen      bool
	Timestamp int64
}

// StreamRepository is the append-only, length-capped fast log of chat messages.
type StreamRepository interface {
	Append(ctx context.Context, chatID string, entry StreamEntry) (string, error)
	AppendWithID(ctx context.Context, chatID, id string, entry StreamEntry) error
	RangeForward(ctx context.Context, chatID string, from, to Cursor, limit int64) ([]StreamEntry, error)
	RangeBackward(ctx context.Context, chatID string, from, to Cursor, limit int64) ([]StreamEntry, error)
	LastID(ctx context.Context, chatID string) (string, error)
	Len(ctx context.Context, chatID string) (int64, error)
}

type streamRepository struct {
	client *redis.Client
	maxLen int64
}

// NewStreamRepository constructs a fast log backed by Redis streams capped at
// roughly maxLen entries per chat.
func NewStreamRepository(client *redis.Client, maxLen int64) StreamRepository {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &streamRepository{client: client, maxLen: maxLen}
}

// StreamKey returns the Redis key holding the fast log of chatID.
func StreamKey(chatID string) string {
	return streamKeyPrefix + chatID
}

func (r *streamRepository) Append(ctx context.Context, chatID string, entry StreamEntry) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(chatID),
		MaxLen: r.maxLen,
		Approx: true,
		ID:     "*",
		Values: entry.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to fast log: %w", err)
	}
	return id, nil
}

func (r *streamRepository) AppendWithID(ctx context.Context, chatID, id string, entry StreamEntry) error {
	if _, _, err := ParseStreamID(id); err != nil {
		return err
	}

	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(chatID),
		MaxLen: r.maxLen,
		Approx: true,
		ID:     id,
		Values: entry.values(),
	}).Err()
	if err != nil {
		return fmt.Errorf("append %s to fast log: %w", id, err)
	}
	return nil
}

func (r *streamRepository) RangeForward(ctx context.Context, chatID string, from, to Cursor, limit int64) ([]StreamEntry, error) {
	start, err := from.lowerBound()
	if err != nil {
		return emptyOnRangeError(err)
	}
	end, err := to.upperBound()
	if err != nil {
		return emptyOnRangeError(err)
	}

	messages, err := r.client.XRangeN(ctx, StreamKey(chatID), start, end, limit).Result()
	if err != nil {
		return nil, fmt.Errorf("read fast log: %w", err)
	}
	return entriesFromMessages(messages), nil
}

func (r *streamRepository) RangeBackward(ctx context.Context, chatID string, from, to Cursor, limit int64) ([]StreamEntry, error) {
	end, err := from.upperBound()
	if err != nil {
		return emptyOnRangeError(err)
	}
	start, err := to.lowerBound()
	if err != nil {
		return emptyOnRangeError(err)
	}

	messages, err := r.client.XRevRangeN(ctx, StreamKey(chatID), end, start, limit).Result()
	if err != nil {
		return nil, fmt.Errorf("read fast log: %w", err)
	}
	return entriesFromMessages(messages), nil
}

func (r *streamRepository) LastID(ctx context.Context, chatID string) (string, error) {
	messages, err := r.client.XRevRangeN(ctx, StreamKey(chatID), "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("read fast log tail: %w", err)
	}
	if len(messages) == 0 {
		return "", nil
	}
	return messages[0].ID, nil
}

func (r *streamRepository) Len(ctx context.Context, chatID string) (int64, error) {
	return r.client.XLen(ctx, StreamKey(chatID)).Result()
}

func emptyOnRangeError(err error) ([]StreamEntry, error) {
	if errors.Is(err, errEmptyRange) {
		return []StreamEntry{}, nil
	}
	return nil, err
}

func (e StreamEntry) values() []interface{} {
	return []interface{}{
		fieldSentBy, e.SentBy,
		fieldMessage, e.Message,
		fieldSeen, strconv.FormatBool(e.Seen),
		fieldTimestamp, strconv.FormatInt(e.Timestamp, 10),
	}
}

func entriesFromMessages(messages []redis.XMessage) []StreamEntry {
	entries := make([]StreamEntry, 0, len(messages))
	for _, msg := range messages {
		entry := StreamEntry{
			ID:      msg.ID,
			SentBy:  stringValue(msg.Values, fieldSentBy),
			Message: stringValue(msg.Values, fieldMessage),
		}
		entry.Seen, _ = strconv.ParseBool(stringValue(msg.Values, fieldSeen))
		entry.Timestamp, _ = strconv.ParseInt(stringValue(msg.Values, fieldTimestamp), 10, 64)
		entries = append(entries, entry)
	}
	return entries
}

func stringValue(values map[string]interface{}, key string) string {
	raw, ok := values[key]
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

// ParseStreamID splits a "<ms>-<seq>" id into its numeric parts.
func ParseStreamID(id string) (uint64, uint64, error) {
	msPart, seqPart, found := strings.Cut(strings.TrimSpace(id), "-")
	if !found {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidStreamID, id)
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidStreamID, id)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidStreamID, id)
	}
	return ms, seq, nil
}

// CompareStreamIDs orders two valid stream ids; invalid ids compare as equal.
func CompareStreamIDs(a, b string) int {
	aMs, aSeq, errA := ParseStreamID(a)
	bMs, bSeq, errB := ParseStreamID(b)
	if errA != nil || errB != nil {
		return 0
	}
	switch {
	case aMs < bMs:
		return -1
	case aMs > bMs:
		return 1
	case aSeq < bSeq:
		return -1
	case aSeq > bSeq:
		return 1
	default:
		return 0
	}
}

func (c Cursor) isSentinel() bool {
	return c.ID == CursorStart.ID || c.ID == CursorEnd.ID
}

// lowerBound renders the cursor as an inclusive XRANGE start. Exclusive bounds
// are resolved here so the "(" syntax, which older servers reject, is never sent.
func (c Cursor) lowerBound() (string, error) {
	if c.isSentinel() {
		return c.ID, nil
	}
	ms, seq, err := ParseStreamID(c.ID)
	if err != nil {
		return "", err
	}
	if !c.Exclusive {
		return formatStreamID(ms, seq), nil
	}
	if seq == math.MaxUint64 {
		if ms == math.MaxUint64 {
			return "", errEmptyRange
		}
		return formatStreamID(ms+1, 0), nil
	}
	return formatStreamID(ms, seq+1), nil
}

func (c Cursor) upperBound() (string, error) {
	if c.isSentinel() {
		return c.ID, nil
	}
	ms, seq, err := ParseStreamID(c.ID)
	if err != nil {
		return "", err
	}
	if !c.Exclusive {
		return formatStreamID(ms, seq), nil
	}
	if seq > 0 {
		return formatStreamID(ms, seq-1), nil
	}
	if ms == 0 {
		return "", errEmptyRange
	}
	return formatStreamID(ms-1, math.MaxUint64), nil
}

func formatStreamID(ms, seq uint64) string {
	return strconv.FormatUint(ms, 10) + "-" + strconv.FormatUint(seq, 10)
}
