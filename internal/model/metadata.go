package model

import (
	"fmt"
	"strconv"
	"time"
)

const (
	MetaSource        = "source"
	MetaFileName      = "file_name"
	MetaFileType      = "file_type"
	MetaLastModified  = "last_modified"
	MetaIngestionTime = "ingestion_time"
	MetaTitle         = "title"
	MetaChunkID       = "chunk_id"
	MetaTotalChunks   = "total_chunks"
)

// Metadata holds the fields the pipeline relies on plus free-form extras
// (frontmatter keys, content type, ...).
type Metadata struct {
	Source        string                 `json:"source"`
	FileName      string                 `json:"file_name"`
	FileType      string                 `json:"file_type"`
	LastModified  time.Time              `json:"last_modified"`
	IngestionTime time.Time              `json:"ingestion_time"`
	Title         string                 `json:"title"`
	ChunkID       int                    `json:"chunk_id"`
	TotalChunks   int                    `json:"total_chunks"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// Payload flattens the metadata into the map stored next to each vector.
// Typed fields win over extras with the same key.
func (m Metadata) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[MetaSource] = m.Source
	out[MetaFileName] = m.FileName
	out[MetaFileType] = m.FileType
	if !m.LastModified.IsZero() {
		out[MetaLastModified] = FormatTime(m.LastModified)
	}
	if !m.IngestionTime.IsZero() {
		out[MetaIngestionTime] = FormatTime(m.IngestionTime)
	}
	if m.Title != "" {
		out[MetaTitle] = m.Title
	}
	if m.TotalChunks > 0 {
		out[MetaChunkID] = m.ChunkID
		out[MetaTotalChunks] = m.TotalChunks
	}
	return out
}

// Value returns the payload value stored under key.
func (m Metadata) Value(key string) (interface{}, bool) {
	switch key {
	case MetaSource:
		return m.Source, true
	case MetaFileName:
		return m.FileName, true
	case MetaFileType:
		return m.FileType, true
	case MetaLastModified:
		if m.LastModified.IsZero() {
			return nil, false
		}
		return m.LastModified, true
	case MetaIngestionTime:
		if m.IngestionTime.IsZero() {
			return nil, false
		}
		return m.IngestionTime, true
	case MetaTitle:
		if m.Title == "" {
			return nil, false
		}
		return m.Title, true
	case MetaChunkID:
		return m.ChunkID, m.TotalChunks > 0
	case MetaTotalChunks:
		return m.TotalChunks, m.TotalChunks > 0
	}
	v, ok := m.Extra[key]
	return v, ok
}

// Clone returns a copy that does not share the extras map.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]interface{}, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func MetadataFromPayload(payload map[string]interface{}) Metadata {
	var m Metadata
	for k, v := range payload {
		switch k {
		case MetaSource:
			m.Source = asString(v)
		case MetaFileName:
			m.FileName = asString(v)
		case MetaFileType:
			m.FileType = asString(v)
		case MetaLastModified:
			m.LastModified, _ = ParseTime(v)
		case MetaIngestionTime:
			m.IngestionTime, _ = ParseTime(v)
		case MetaTitle:
			m.Title = asString(v)
		case MetaChunkID:
			m.ChunkID = asInt(v)
		case MetaTotalChunks:
			m.TotalChunks = asInt(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]interface{})
			}
			m.Extra[k] = v
		}
	}
	return m
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts time values, RFC3339 strings and unix seconds.
func ParseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *t, nil
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, nil
		}
		if ts, err := time.Parse("2006-01-02T15:04:05", t); err == nil {
			return ts.UTC(), nil
		}
		if ts, err := time.Parse("2006-01-02", t); err == nil {
			return ts.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid time %q", t)
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time value %T", v)
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
