package redact

import (
	"context"
	"encoding/json"
	"strings"
)

func defaultJSONKeys() map[string]struct{} {
	return map[string]struct{}{
		"text": {}, "content": {}, "message": {}, "body": {}, "description": {},
		"notes": {}, "comment": {}, "address": {}, "email": {}, "phone": {},
	}
}

// WithJSONKeys replaces the set of object keys whose string values
// RedactJSON rewrites. No keys means every string value.
func (r *Redactor) WithJSONKeys(keys ...string) *Redactor {
	if len(keys) == 0 {
		r.jsonKeys = nil
		return r
	}
	r.jsonKeys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		r.jsonKeys[strings.ToLower(k)] = struct{}{}
	}
	return r
}

// RedactJSON rewrites string fields of a JSON document. Placeholders are
// numbered across the whole document.
func (r *Redactor) RedactJSON(ctx context.Context, raw []byte) ([]byte, []Item, error) {
	if len(raw) == 0 {
		return raw, nil, nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return raw, nil, err
	}
	st := newState(r.maxReplacements)
	payload, err := r.walk(ctx, payload, st, "")
	if err != nil {
		return raw, nil, err
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return raw, nil, err
	}
	return out, st.items(), nil
}

func (r *Redactor) walk(ctx context.Context, node any, st *state, key string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			masked, err := r.walk(ctx, child, st, k)
			if err != nil {
				return nil, err
			}
			v[k] = masked
		}
		return v, nil
	case []any:
		for i, child := range v {
			masked, err := r.walk(ctx, child, st, key)
			if err != nil {
				return nil, err
			}
			v[i] = masked
		}
		return v, nil
	case string:
		if !r.wantsKey(key) || v == "" {
			return v, nil
		}
		entities, err := r.detect(ctx, v)
		if err != nil {
			return nil, err
		}
		return st.apply(v, entities), nil
	default:
		return node, nil
	}
}

func (r *Redactor) wantsKey(key string) bool {
	if r.jsonKeys == nil {
		return true
	}
	_, ok := r.jsonKeys[strings.ToLower(key)]
	return ok
}
