package model

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Condition restricts one payload key. Values holds one entry for an exact
// match and several for any-of. After turns the condition into a strict
// greater-than range on a timestamp field and ignores Values.
type Condition struct {
	Key    string        `json:"key"`
	Values []interface{} `json:"values,omitempty"`
	After  *time.Time    `json:"after,omitempty"`
}

func (c Condition) IsRange() bool {
	return c.After != nil
}

// Filter is a conjunction of conditions.
type Filter struct {
	Conditions []Condition `json:"conditions"`
}

func NewFilter() *Filter {
	return &Filter{}
}

func (f *Filter) Match(key string, value interface{}) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Values: []interface{}{value}})
	return f
}

func (f *Filter) MatchAny(key string, values ...interface{}) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Values: values})
	return f
}

func (f *Filter) After(key string, t time.Time) *Filter {
	ts := t.UTC()
	f.Conditions = append(f.Conditions, Condition{Key: key, After: &ts})
	return f
}

func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.Conditions) == 0
}

// FilterFromMap maps scalars to exact matches and slices to any-of.
// Keys are visited in sorted order so the result is stable.
func FilterFromMap(m map[string]interface{}) *Filter {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	f := NewFilter()
	for _, k := range keys {
		v := m[k]
		if list, ok := toList(v); ok {
			f.MatchAny(k, list...)
			continue
		}
		f.Match(k, v)
	}
	return f
}

// Matches evaluates the filter against metadata. A nil filter matches everything.
func (f *Filter) Matches(md Metadata) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Conditions {
		v, ok := md.Value(c.Key)
		if !ok {
			return false
		}
		if !c.matches(v) {
			return false
		}
	}
	return true
}

func (c Condition) matches(v interface{}) bool {
	if c.After != nil {
		ts, err := ParseTime(v)
		if err != nil {
			return false
		}
		return ts.After(*c.After)
	}
	for _, want := range c.Values {
		if ValueEqual(v, want) {
			return true
		}
	}
	return false
}

// ValueEqual compares payload values loosely: numbers by value, times by
// instant, everything else by its printed form.
func ValueEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	switch {
	case aIsTime && bIsTime:
		return ta.Equal(tb)
	case aIsTime:
		if parsed, err := ParseTime(b); err == nil {
			return ta.Equal(parsed)
		}
	case bIsTime:
		if parsed, err := ParseTime(a); err == nil {
			return tb.Equal(parsed)
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toList(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
