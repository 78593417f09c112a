package store

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/example/bookshop/internal/normalize"
	jsoniter "github.com/json-iterator/go"
)

// record is a stored document with its insertion sequence.
type record struct {
	id  string
	seq int64
	doc []byte
}

func validDocument(doc []byte) bool {
	trimmed := bytes.TrimSpace(doc)
	return len(trimmed) > 0 && trimmed[0] == '{' && jsoniter.ConfigFastest.Valid(trimmed)
}

func field(doc []byte, name string) jsoniter.Any {
	return jsoniter.Get(doc, name)
}

func present(v jsoniter.Any) bool {
	t := v.ValueType()
	return t != jsoniter.InvalidValue && t != jsoniter.NilValue
}

func matches(doc []byte, where []Condition) bool {
	for _, c := range where {
		if !matchCondition(doc, c) {
			return false
		}
	}
	return true
}

func matchCondition(doc []byte, c Condition) bool {
	v := field(doc, c.Field)
	if !present(v) {
		return false
	}

	switch c.Op {
	case OpEq:
		return v.ToString() == c.Value
	case OpEqFold:
		return normalize.Equal(v.ToString(), c.Value)
	case OpContainsFold:
		return normalize.Contains(v.ToString(), c.Value)
	case OpHas:
		if v.ValueType() != jsoniter.ArrayValue {
			return false
		}
		for i := 0; i < v.Size(); i++ {
			if normalize.Equal(v.Get(i).ToString(), c.Value) {
				return true
			}
		}
	}
	return false
}

// compareField orders numbers numerically and everything else as text.
// Missing fields sort first.
func compareField(a, b jsoniter.Any) int {
	pa, pb := present(a), present(b)
	switch {
	case !pa && !pb:
		return 0
	case !pa:
		return -1
	case !pb:
		return 1
	}

	if a.ValueType() == jsoniter.NumberValue && b.ValueType() == jsoniter.NumberValue {
		fa, fb := a.ToFloat64(), b.ToFloat64()
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a.ToString(), b.ToString())
}

// applyQuery filters, sorts and pages records in process. Records must
// arrive in any order; insertion order is restored from seq.
func applyQuery(records []record, q Query) [][]byte {
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	selected := make([]record, 0, len(records))
	for _, r := range records {
		if matches(r.doc, q.Where) {
			selected = append(selected, r)
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(selected, func(i, j int) bool {
			c := compareField(field(selected[i].doc, q.SortBy), field(selected[j].doc, q.SortBy))
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Skip > 0 {
		if q.Skip >= len(selected) {
			return [][]byte{}
		}
		selected = selected[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(selected) {
		selected = selected[:q.Limit]
	}

	docs := make([][]byte, 0, len(selected))
	for _, r := range selected {
		docs = append(docs, cloneBytes(r.doc))
	}
	return docs
}

func indexKey(doc []byte, idx UniqueIndex) string {
	v := field(doc, idx.Field)
	if !present(v) {
		return ""
	}
	key := strings.TrimSpace(v.ToString())
	if idx.Fold {
		key = normalize.Fold(key)
	}
	return key
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
