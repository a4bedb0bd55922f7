// Package json decodes crawler dump files into generic item maps.
//
// Dumps are usually a root array of post objects, but single-object files and
// envelope files (an object whose first array-of-objects field holds the
// posts) appear in the wild too; all three shapes are accepted.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// StreamItems parses JSON from r and calls emit for each decoded item object.
//
// Streaming behavior:
//   - If the root is a JSON array, it streams each object element one-by-one.
//   - If the root is an object containing an array-of-objects field, it
//     streams the first such array (envelope pattern).
//   - If the root is a single object with no array-of-objects fields, it
//     emits that one object.
//
// Numbers are decoded as json.Number so 64-bit video and author ids survive
// without float rounding.
func StreamItems(ctx context.Context, r io.Reader, emit func(map[string]any) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	checked := func(obj map[string]any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return emit(obj)
	}

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("json: read first token: %w", err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	switch d {
	case '[':
		if err := streamArrayElements(dec, checked); err != nil {
			return err
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("json: read array end: %w", err)
		} else if end != json.Delim(']') {
			return fmt.Errorf("json: expected array end ']', got %v", end)
		}
		return nil

	case '{':
		streamed, single, err := streamEnvelopeOrSingle(dec, checked)
		if err != nil {
			return err
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("json: read object end: %w", err)
		} else if end != json.Delim('}') {
			return fmt.Errorf("json: expected object end '}', got %v", end)
		}
		if !streamed && single != nil {
			return checked(single)
		}
		return nil

	default:
		return fmt.Errorf("json: unsupported root delimiter %q", d)
	}
}

// DecodeItems collects every item in r. Dump files are bounded (one crawl
// run), so buffering the batch is fine; the loader consumes them as a slice.
func DecodeItems(ctx context.Context, r io.Reader) ([]map[string]any, error) {
	var items []map[string]any
	err := StreamItems(ctx, r, func(obj map[string]any) error {
		items = append(items, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// streamArrayElements streams elements of the current array (after '[' has
// been consumed). Each element must be an object; nulls are skipped.
func streamArrayElements(dec *json.Decoder, emit func(map[string]any) error) error {
	for dec.More() {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("json: decode array element: %w", err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("json: array element not an object (got %T)", raw)
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
	return nil
}

// streamEnvelopeOrSingle walks a root object (after '{' has been consumed).
//
// The first field whose value is an array-of-objects is streamed as the item
// list and the remaining fields are skipped. If no such field exists, the
// whole object is returned as a single item.
func streamEnvelopeOrSingle(dec *json.Decoder, emit func(map[string]any) error) (streamed bool, single map[string]any, _ error) {
	single = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("json: read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return false, nil, fmt.Errorf("json: object key not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return false, nil, fmt.Errorf("json: read object value token: %w", err)
		}

		if delim, ok := valTok.(json.Delim); ok && delim == '[' {
			// Peek the first element before committing: only an array of
			// objects is an item list. Scalar arrays (hashtags and the
			// like) and empty arrays are ordinary fields of a single item.
			firstTok, err := dec.Token()
			if err != nil {
				return false, nil, fmt.Errorf("json: read array element token: %w", err)
			}
			if firstTok == json.Delim(']') {
				single[key] = []any{}
				continue
			}
			if firstTok != json.Delim('{') {
				arr, err := materializeArrayRest(dec, firstTok)
				if err != nil {
					return false, nil, err
				}
				single[key] = arr
				continue
			}

			head, err := materializeValueFromFirstToken(dec, firstTok)
			if err != nil {
				return false, nil, err
			}
			if err := emit(head.(map[string]any)); err != nil {
				return false, nil, err
			}
			if err := streamArrayElements(dec, emit); err != nil {
				return false, nil, err
			}
			endTok, err := dec.Token()
			if err != nil {
				return false, nil, fmt.Errorf("json: read envelope array end: %w", err)
			}
			if endTok != json.Delim(']') {
				return false, nil, fmt.Errorf("json: expected ']' after envelope array, got %v", endTok)
			}

			// Skip remaining envelope fields without materializing them.
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return true, nil, fmt.Errorf("json: skip envelope key: %w", err)
				}
				if err := skipNextValue(dec); err != nil {
					return true, nil, err
				}
			}
			return true, nil, nil
		}

		val, err := materializeValueFromFirstToken(dec, valTok)
		if err != nil {
			return false, nil, err
		}
		single[key] = val
	}

	return false, single, nil
}

// materializeArrayRest builds an array value whose '[' and first element
// token have already been consumed.
func materializeArrayRest(dec *json.Decoder, firstTok any) ([]any, error) {
	first, err := materializeValueFromFirstToken(dec, firstTok)
	if err != nil {
		return nil, err
	}
	arr := []any{first}
	for dec.More() {
		vt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read array value token: %w", err)
		}
		v, err := materializeValueFromFirstToken(dec, vt)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	end, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json: read array end: %w", err)
	}
	if end != json.Delim(']') {
		return nil, fmt.Errorf("json: expected ']' after array, got %v", end)
	}
	return arr, nil
}

// skipNextValue skips the next JSON value from the decoder, without materializing it.
func skipNextValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: skip value token: %w", err)
	}
	return skipValueFromFirstToken(dec, tok)
}

func skipValueFromFirstToken(dec *json.Decoder, tok any) error {
	d, ok := tok.(json.Delim)
	if !ok {
		// scalar token; nothing else to consume
		return nil
	}

	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("json: skip object key: %w", err)
			}
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		end, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: skip object end: %w", err)
		}
		if end != json.Delim('}') {
			return fmt.Errorf("json: expected '}', got %v", end)
		}
		return nil

	case '[':
		for dec.More() {
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		end, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: skip array end: %w", err)
		}
		if end != json.Delim(']') {
			return fmt.Errorf("json: expected ']', got %v", end)
		}
		return nil

	default:
		return fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

// materializeValueFromFirstToken builds a Go value for the current JSON value,
// given the first token has already been read. Only root-object fields and
// envelope array heads use it, which keeps allocation bounded.
func materializeValueFromFirstToken(dec *json.Decoder, tok any) (any, error) {
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '{':
			m := make(map[string]any)
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("json: read nested object key: %w", err)
				}
				k, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("json: nested object key not string (got %T)", kt)
				}
				vt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("json: read nested object value token: %w", err)
				}
				v, err := materializeValueFromFirstToken(dec, vt)
				if err != nil {
					return nil, err
				}
				m[k] = v
			}
			end, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested object end: %w", err)
			}
			if end != json.Delim('}') {
				return nil, fmt.Errorf("json: expected '}', got %v", end)
			}
			return m, nil

		case '[':
			var arr []any
			for dec.More() {
				vt, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("json: read nested array value token: %w", err)
				}
				v, err := materializeValueFromFirstToken(dec, vt)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			end, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read nested array end: %w", err)
			}
			if end != json.Delim(']') {
				return nil, fmt.Errorf("json: expected ']', got %v", end)
			}
			return arr, nil

		default:
			return nil, fmt.Errorf("json: unexpected delimiter %q", d)
		}
	}

	// json.Number stays as-is; extraction handles coercion.
	return tok, nil
}
