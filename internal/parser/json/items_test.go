package json

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeItemsRootArray(t *testing.T) {
	t.Parallel()

	const src = `[
	  {"id": 7294831045123456789, "text": "first"},
	  null,
	  {"id": "v2", "diggCount": 12}
	]`

	items, err := DecodeItems(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (null skipped)", len(items))
	}

	// 64-bit ids must survive as json.Number, not float64.
	id, ok := items[0]["id"].(json.Number)
	if !ok {
		t.Fatalf("id type = %T, want json.Number", items[0]["id"])
	}
	if id.String() != "7294831045123456789" {
		t.Fatalf("id = %s, lost precision", id)
	}
	if items[1]["id"] != "v2" {
		t.Fatalf("second item id = %v", items[1]["id"])
	}
}

func TestDecodeItemsEnvelope(t *testing.T) {
	t.Parallel()

	const src = `{
	  "itemList": [{"id": "v1"}, {"id": "v2"}],
	  "cursor": 40,
	  "extra": {"hasMore": true, "nested": [1, 2, 3]}
	}`

	items, err := DecodeItems(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0]["id"] != "v1" || items[1]["id"] != "v2" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestDecodeItemsSingleObjectScalarArrayField(t *testing.T) {
	t.Parallel()

	const src = `{"id": "v1", "hashtags": ["a", "b"], "diggCount": 10}`

	items, err := DecodeItems(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0]["id"] != "v1" {
		t.Fatalf("id = %v", items[0]["id"])
	}
	tags, ok := items[0]["hashtags"].([]any)
	if !ok {
		t.Fatalf("hashtags type = %T, want []any", items[0]["hashtags"])
	}
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("hashtags = %v", tags)
	}
}

func TestDecodeItemsSingleObjectEmptyArrayField(t *testing.T) {
	t.Parallel()

	const src = `{"id": "v1", "hashtags": [], "diggCount": 10}`

	items, err := DecodeItems(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (empty array is an ordinary field)", len(items))
	}
	if items[0]["id"] != "v1" {
		t.Fatalf("id = %v", items[0]["id"])
	}
	tags, ok := items[0]["hashtags"].([]any)
	if !ok || len(tags) != 0 {
		t.Fatalf("hashtags = %v (%T), want empty []any", items[0]["hashtags"], items[0]["hashtags"])
	}
}

func TestDecodeItemsEnvelopeAfterScalarArrayField(t *testing.T) {
	t.Parallel()

	// Only the first array-of-objects field is the item list; earlier
	// scalar and empty arrays stay ordinary fields.
	const src = `{
	  "related": [],
	  "tags": ["x"],
	  "itemList": [{"id": "v1"}, {"id": "v2"}]
	}`

	items, err := DecodeItems(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0]["id"] != "v1" || items[1]["id"] != "v2" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestDecodeItemsSingleObject(t *testing.T) {
	t.Parallel()

	const src = `{"id": "v1", "authorMeta": {"id": "a1", "name": "alice"}}`

	items, err := DecodeItems(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	meta, ok := items[0]["authorMeta"].(map[string]any)
	if !ok {
		t.Fatalf("authorMeta type = %T", items[0]["authorMeta"])
	}
	if meta["name"] != "alice" {
		t.Fatalf("nested field = %v", meta["name"])
	}
}

func TestDecodeItemsRejectsScalars(t *testing.T) {
	t.Parallel()

	for _, src := range []string{`"just a string"`, `42`, `[1, 2, 3]`} {
		if _, err := DecodeItems(context.Background(), strings.NewReader(src)); err == nil {
			t.Errorf("DecodeItems(%s) = nil error, want failure", src)
		}
	}
}

func TestDecodeItemsEmptyInput(t *testing.T) {
	t.Parallel()

	items, err := DecodeItems(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
}

func TestStreamItemsEmitError(t *testing.T) {
	t.Parallel()

	boom := errors.New("stop")
	err := StreamItems(context.Background(), strings.NewReader(`[{"id":"a"},{"id":"b"}]`), func(map[string]any) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want emit error", err)
	}
}

func TestStreamItemsContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := StreamItems(ctx, strings.NewReader(`[{"id":"a"}]`), func(map[string]any) error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
