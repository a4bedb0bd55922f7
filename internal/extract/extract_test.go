package extract

import (
	"encoding/json"
	"testing"
)

func item(kv map[string]any) map[string]any { return kv }

func TestAuthor(t *testing.T) {
	t.Parallel()

	t.Run("full", func(t *testing.T) {
		t.Parallel()
		a, ok := Author(item(map[string]any{
			"authorMeta": map[string]any{
				"id":     json.Number("7294831045"),
				"name":   " alice ",
				"avatar": "http://cdn/a.jpg",
			},
		}))
		if !ok {
			t.Fatal("ok = false")
		}
		if a.ID != "7294831045" || a.Name != "alice" || a.Avatar != "http://cdn/a.jpg" {
			t.Fatalf("candidate = %+v", a)
		}
	})

	t.Run("missing meta", func(t *testing.T) {
		t.Parallel()
		if _, ok := Author(item(map[string]any{"id": "v1"})); ok {
			t.Fatal("ok = true for item without authorMeta")
		}
	})

	t.Run("meta wrong type", func(t *testing.T) {
		t.Parallel()
		if _, ok := Author(item(map[string]any{"authorMeta": "oops"})); ok {
			t.Fatal("ok = true for non-object authorMeta")
		}
	})

	t.Run("tracked values nullable avatar", func(t *testing.T) {
		t.Parallel()
		a := AuthorCandidate{ID: "a1", Name: "alice"}
		vals := a.TrackedValues()
		if vals[0] != "alice" || vals[1] != nil {
			t.Fatalf("tracked = %v", vals)
		}
	})
}

func TestVideo(t *testing.T) {
	t.Parallel()

	t.Run("full", func(t *testing.T) {
		t.Parallel()
		v, ok := Video(item(map[string]any{
			"id":          json.Number("9999999999999999999"),
			"text":        "caption",
			"webVideoUrl": "http://t/v1",
			"createTime":  json.Number("1682935200"),
			"authorMeta":  map[string]any{"id": "a1"},
			"videoMeta":   map[string]any{"duration": json.Number("37")},
		}))
		if !ok {
			t.Fatal("ok = false")
		}
		if v.ID != "9999999999999999999" {
			t.Fatalf("id = %q", v.ID)
		}
		if v.AuthorID != "a1" || v.Text != "caption" || v.Duration != 37 {
			t.Fatalf("candidate = %+v", v)
		}
		if v.CreateTime != "2023-05-01T10:00:00Z" {
			t.Fatalf("create time = %q", v.CreateTime)
		}
	})

	t.Run("no id", func(t *testing.T) {
		t.Parallel()
		if _, ok := Video(item(map[string]any{"text": "orphan"})); ok {
			t.Fatal("ok = true for item without id")
		}
	})

	t.Run("defensive defaults", func(t *testing.T) {
		t.Parallel()
		v, ok := Video(item(map[string]any{
			"id":        "v1",
			"videoMeta": map[string]any{"duration": "not a number"},
		}))
		if !ok {
			t.Fatal("ok = false")
		}
		if v.Duration != 0 || v.AuthorID != "" || v.CreateTime != "" {
			t.Fatalf("candidate = %+v", v)
		}
		vals := v.TrackedValues()
		// author_id stays "" but the optional texts become NULL.
		if vals[1] != nil || vals[3] != nil || vals[4] != nil {
			t.Fatalf("tracked = %v", vals)
		}
	})
}

func TestCreateTimeForms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"unix number", json.Number("1682935200"), "2023-05-01T10:00:00Z"},
		{"unix string", "1682935200", "2023-05-01T10:00:00Z"},
		{"datetime string", "2023-05-01 10:00:00", "2023-05-01T10:00:00Z"},
		{"rfc3339 string", "2023-05-01T10:00:00+07:00", "2023-05-01T03:00:00Z"},
		{"zero", json.Number("0"), ""},
		{"garbage", "soon", ""},
		{"nil", nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, _ := Video(item(map[string]any{"id": "v1", "createTime": tc.in}))
			if v.CreateTime != tc.want {
				t.Fatalf("createTime(%v) = %q, want %q", tc.in, v.CreateTime, tc.want)
			}
		})
	}
}

func TestInteraction(t *testing.T) {
	t.Parallel()

	i, ok := Interaction(item(map[string]any{
		"id":           "v1",
		"diggCount":    json.Number("10"),
		"playCount":    "250",
		"shareCount":   float64(3),
		"commentCount": "many",
		// collectCount absent
	}))
	if !ok {
		t.Fatal("ok = false")
	}
	want := InteractionCandidate{VideoID: "v1", Diggs: 10, Plays: 250, Shares: 3}
	if i != want {
		t.Fatalf("candidate = %+v, want %+v", i, want)
	}
}

func TestCollectBatch(t *testing.T) {
	t.Parallel()

	items := []map[string]any{
		{
			"id":         "v1",
			"diggCount":  json.Number("10"),
			"authorMeta": map[string]any{"id": "a1", "name": "alice"},
		},
		{
			// Duplicate video and author; first occurrence must win.
			"id":         "v1",
			"diggCount":  json.Number("999"),
			"authorMeta": map[string]any{"id": "a1", "name": "alice later"},
		},
		{
			"id":         "v2",
			"authorMeta": map[string]any{"id": "a2", "name": "bob"},
		},
		{
			// No ids at all: counted as a miss for both entity types.
			"text": "orphan",
		},
	}

	b := CollectBatch(items)

	if len(b.Authors) != 2 || len(b.Videos) != 2 || len(b.Interactions) != 2 {
		t.Fatalf("batch sizes = %d/%d/%d, want 2/2/2", len(b.Authors), len(b.Videos), len(b.Interactions))
	}
	if b.Authors[0].Name != "alice" {
		t.Fatalf("first-seen author lost: %+v", b.Authors[0])
	}
	if b.Interactions[0].Diggs != 10 {
		t.Fatalf("first-seen interaction lost: %+v", b.Interactions[0])
	}
	if b.AuthorMisses != 1 || b.VideoMisses != 1 {
		t.Fatalf("misses = %d/%d, want 1/1", b.AuthorMisses, b.VideoMisses)
	}
}

func TestContentID(t *testing.T) {
	t.Parallel()

	if got := ContentID(map[string]any{"id": json.Number("123")}); got != "123" {
		t.Fatalf("ContentID = %q", got)
	}
	if got := ContentID(map[string]any{}); got != "" {
		t.Fatalf("ContentID = %q, want empty", got)
	}
}
