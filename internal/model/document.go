package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type Document struct {
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
	SourcePath string   `json:"source_path,omitempty"`
}

// ID hashes the content together with the key-sorted payload.
func (d *Document) ID() string {
	h := sha256.New()
	h.Write([]byte(d.Content))
	raw, err := json.Marshal(d.Metadata.Payload())
	if err == nil {
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Synthetic reports whether the document has no file behind it.
func (d *Document) Synthetic() bool {
	return d.SourcePath == ""
}

type Chunk struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type SearchResult struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float32  `json:"score"`
}

type RetrievalContext struct {
	Results []SearchResult `json:"results"`
	Sources []string       `json:"sources"`
}

type CollectionInfo struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	PointsCount  int64  `json:"points_count"`
	VectorsCount int64  `json:"vectors_count"`
	Error        string `json:"error,omitempty"`
}

type RecentUpdate struct {
	Source       string `json:"source"`
	Title        string `json:"title"`
	LastModified string `json:"last_modified"`
	Snippet      string `json:"snippet"`
}
