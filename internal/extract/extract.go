// Package extract derives dimension and fact candidates from one crawler
// item. The item shape is an external, unversioned contract: every field
// access is defensive, absent nested objects behave as empty maps, and a bad
// numeric string defaults to zero instead of aborting the item.
package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// AuthorCandidate is one observed author snapshot.
type AuthorCandidate struct {
	ID     string
	Name   string
	Avatar string
}

// TrackedValues returns the SCD-tracked attribute values in staging column
// order (author_name, avatar).
func (a AuthorCandidate) TrackedValues() []any {
	return []any{a.Name, nullable(a.Avatar)}
}

// VideoCandidate is one observed video snapshot.
type VideoCandidate struct {
	ID          string
	AuthorID    string
	Text        string
	Duration    int64
	CreateTime  string // RFC3339 UTC, "" when the item had no usable createTime
	WebVideoURL string
}

// TrackedValues returns the SCD-tracked attribute values in staging column
// order (author_id, text_content, duration, create_time, web_video_url).
func (v VideoCandidate) TrackedValues() []any {
	return []any{v.AuthorID, nullable(v.Text), v.Duration, nullable(v.CreateTime), nullable(v.WebVideoURL)}
}

// InteractionCandidate carries the five engagement counters for one video.
type InteractionCandidate struct {
	VideoID  string
	Diggs    int64
	Plays    int64
	Shares   int64
	Comments int64
	Collects int64
}

// TrackedValues returns the counters in staging column order.
func (i InteractionCandidate) TrackedValues() []any {
	return []any{i.Diggs, i.Plays, i.Shares, i.Comments, i.Collects}
}

// Author extracts an author candidate from one item. ok is false when the
// item carries no author identifier.
func Author(item map[string]any) (AuthorCandidate, bool) {
	meta := objField(item, "authorMeta")
	id := stringField(meta, "id")
	if id == "" {
		return AuthorCandidate{}, false
	}
	return AuthorCandidate{
		ID:     id,
		Name:   stringField(meta, "name"),
		Avatar: stringField(meta, "avatar"),
	}, true
}

// Video extracts a video candidate. ok is false when the item carries no
// content identifier.
func Video(item map[string]any) (VideoCandidate, bool) {
	id := stringField(item, "id")
	if id == "" {
		return VideoCandidate{}, false
	}
	return VideoCandidate{
		ID:          id,
		AuthorID:    stringField(objField(item, "authorMeta"), "id"),
		Text:        stringField(item, "text"),
		Duration:    intField(objField(item, "videoMeta"), "duration"),
		CreateTime:  createTime(item),
		WebVideoURL: stringField(item, "webVideoUrl"),
	}, true
}

// Interaction extracts the counter tuple. ok is false under the same
// condition as Video: no content identifier.
func Interaction(item map[string]any) (InteractionCandidate, bool) {
	id := stringField(item, "id")
	if id == "" {
		return InteractionCandidate{}, false
	}
	return InteractionCandidate{
		VideoID:  id,
		Diggs:    intField(item, "diggCount"),
		Plays:    intField(item, "playCount"),
		Shares:   intField(item, "shareCount"),
		Comments: intField(item, "commentCount"),
		Collects: intField(item, "collectCount"),
	}, true
}

// Batch holds one file's candidates, deduplicated per entity type.
//
// Contract: within one batch, duplicate natural keys for the same entity
// type collapse to a single candidate and the FIRST occurrence wins. Crawler
// dumps list the freshest observation first, so first-seen is also
// freshest-seen.
type Batch struct {
	Authors      []AuthorCandidate
	Videos       []VideoCandidate
	Interactions []InteractionCandidate

	// AuthorMisses and VideoMisses count items that carried no usable
	// identifier for that entity type. Interaction misses always equal
	// VideoMisses because both key off the content id.
	AuthorMisses int
	VideoMisses  int
}

// CollectBatch runs extraction over every item and collapses duplicates.
func CollectBatch(items []map[string]any) Batch {
	var b Batch
	seenAuthors := map[string]struct{}{}
	seenVideos := map[string]struct{}{}

	for _, item := range items {
		if a, ok := Author(item); ok {
			if _, dup := seenAuthors[a.ID]; !dup {
				seenAuthors[a.ID] = struct{}{}
				b.Authors = append(b.Authors, a)
			}
		} else {
			b.AuthorMisses++
		}

		v, ok := Video(item)
		if !ok {
			b.VideoMisses++
			continue
		}
		if _, dup := seenVideos[v.ID]; dup {
			continue
		}
		seenVideos[v.ID] = struct{}{}
		b.Videos = append(b.Videos, v)

		// Interaction shares the video id, so dedup rides on seenVideos.
		if i, ok := Interaction(item); ok {
			b.Interactions = append(b.Interactions, i)
		}
	}
	return b
}

// ContentID returns the item's content identifier, "" if absent. The ingest
// gate uses it for raw dedup without running full extraction.
func ContentID(item map[string]any) string {
	return stringField(item, "id")
}

// ---- optional field access ----

// objField returns a nested object, or an empty map when the field is absent
// or not an object.
func objField(m map[string]any, key string) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return map[string]any{}
}

// stringField returns the field as a trimmed string. Numeric ids arrive as
// either JSON strings or numbers depending on the crawler version; both
// stringify the same way.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// intField best-effort parses an integer counter. Anything unparseable is 0.
func intField(m map[string]any, key string) int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
		return 0
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// createTime parses the item's createTime, which appears either as unix
// seconds or a "2006-01-02 15:04:05" string. Returns RFC3339 UTC, "" when
// absent or unparseable.
func createTime(item map[string]any) string {
	v, ok := item["createTime"]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			return time.Unix(n, 0).UTC().Format(time.RFC3339)
		}
		return ""
	case float64:
		if t > 0 {
			return time.Unix(int64(t), 0).UTC().Format(time.RFC3339)
		}
		return ""
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return ""
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0).UTC().Format(time.RFC3339)
		}
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC().Format(time.RFC3339)
			}
		}
		return ""
	default:
		return ""
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
