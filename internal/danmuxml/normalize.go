// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package danmuxml normalizes heterogeneous comment payloads into canonical
// records and serializes them as dandanplay-style XML artifacts.
package danmuxml

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// CommentRecord is the canonical form of one comment. RawParams carries the
// provider's packed attribute string verbatim when the payload had one;
// otherwise the numeric fields are packed at serialization time.
type CommentRecord struct {
	Offset    float64
	Mode      int
	FontSize  int
	Color     int64
	Timestamp int64
	Pool      int
	UserID    string
	CommentID string
	RawParams string
	Text      string
}

// PackedParams returns the comma-joined attribute string
// offset,mode,fontSize,color,timestamp,pool,userId,commentId.
func (r CommentRecord) PackedParams() string {
	if r.RawParams != "" {
		return r.RawParams
	}
	return fmt.Sprintf("%s,%d,%d,%d,%d,%d,%s,%s",
		formatFloat(r.Offset), r.Mode, r.FontSize, r.Color,
		r.Timestamp, r.Pool, zeroIfEmpty(r.UserID), zeroIfEmpty(r.CommentID))
}

// Text lookup keys for object-shaped comments, in priority order.
var textKeys = []string{"m", "text", "content", "message", "danmaku"}

// Normalize converts raw payload entries into canonical records. Entries come
// in three shapes: objects, positional arrays, or opaque scalars. Entries
// that yield no text are dropped; a malformed entry never fails the batch.
func Normalize(entries []json.RawMessage) []CommentRecord {
	records := make([]CommentRecord, 0, len(entries))

	for i, raw := range entries {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			log.Warn().Int("index", i).Err(err).Msg("danmuxml: skipping undecodable comment")
			continue
		}

		var record *CommentRecord
		switch v := value.(type) {
		case map[string]any:
			record = normalizeObject(v)
		case []any:
			record = normalizeArray(v)
		default:
			record = normalizeScalar(v, i)
		}

		if record == nil || record.Text == "" {
			continue
		}
		records = append(records, *record)
	}

	return records
}

func normalizeObject(m map[string]any) *CommentRecord {
	var text string
	for _, key := range textKeys {
		if v, ok := m[key]; ok {
			text = stringify(v)
			break
		}
	}
	if text == "" {
		return nil
	}

	if p, ok := m["p"]; ok {
		return &CommentRecord{RawParams: stringify(p), Text: text}
	}

	return &CommentRecord{
		Offset:    floatField(m, "time", "t"),
		Mode:      intFieldDefault(m, 1, "mode", "type"),
		FontSize:  intFieldDefault(m, 25, "fontsize", "size"),
		Color:     int64FieldDefault(m, 16777215, "color", "c"),
		Timestamp: int64FieldDefault(m, 0, "timestamp", "ts"),
		Pool:      intFieldDefault(m, 0, "pool"),
		UserID:    stringField(m, "user_id", "uid"),
		CommentID: stringField(m, "cid", "id"),
		Text:      text,
	}
}

// normalizeArray handles positional comments, conventionally
// [offset, mode, fontSize, color, ..., text] with the text last.
func normalizeArray(arr []any) *CommentRecord {
	if len(arr) < 2 {
		return nil
	}

	text := stringify(arr[len(arr)-1])
	if text == "" {
		return nil
	}

	if len(arr) >= 5 {
		parts := make([]string, 0, len(arr)-1)
		for _, v := range arr[:len(arr)-1] {
			parts = append(parts, stringify(v))
		}
		return &CommentRecord{RawParams: strings.Join(parts, ","), Text: text}
	}

	record := &CommentRecord{Mode: 1, FontSize: 25, Color: 16777215, Text: text}
	if len(arr) > 1 {
		record.Offset = toFloat(arr[0])
	}
	if len(arr) > 2 {
		record.Mode = int(toFloat(arr[1]))
	}
	if len(arr) > 3 {
		record.FontSize = int(toFloat(arr[2]))
	}
	return record
}

// normalizeScalar wraps an opaque value as text with synthetic timing spread
// five seconds apart.
func normalizeScalar(v any, index int) *CommentRecord {
	text := stringify(v)
	if text == "" {
		return nil
	}
	return &CommentRecord{
		Offset:    float64(index * 5),
		Mode:      1,
		FontSize:  25,
		Color:     16777215,
		CommentID: strconv.Itoa(index),
		Text:      text,
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func floatField(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return toFloat(v)
		}
	}
	return 0
}

func intFieldDefault(m map[string]any, def int, keys ...string) int {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return int(toFloat(v))
		}
	}
	return def
}

func int64FieldDefault(m map[string]any, def int64, keys ...string) int64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return int64(toFloat(v))
		}
	}
	return def
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return stringify(v)
		}
	}
	return ""
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
