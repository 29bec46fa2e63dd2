package model

import "time"

type AnswerStatus string

const (
	AnswerOK        AnswerStatus = "ok"
	AnswerNoResults AnswerStatus = "no_results"
	AnswerFailed    AnswerStatus = "failed"
)

// Answer is the outcome of one question. Text is always populated, failures
// included, so callers can show it directly.
type Answer struct {
	Question string       `json:"question"`
	Text     string       `json:"answer"`
	Sources  []string     `json:"sources"`
	Status   AnswerStatus `json:"status"`
	Err      error        `json:"-"`
}

func (a *Answer) Failed() bool {
	return a.Status == AnswerFailed
}

type SummaryStatus string

const (
	SummaryOK      SummaryStatus = "ok"
	SummaryNoNotes SummaryStatus = "no_notes"
	SummaryFailed  SummaryStatus = "failed"
)

// Summary separates generation from persistence: a summary can be generated
// and still fail to be written.
type Summary struct {
	Text        string        `json:"summary"`
	Status      SummaryStatus `json:"status"`
	NoteCount   int           `json:"note_count"`
	Key         string        `json:"file,omitempty"`
	Persisted   bool          `json:"persisted"`
	PersistErr  error         `json:"-"`
	Err         error         `json:"-"`
	GeneratedAt time.Time     `json:"generated_at"`
}

func (s *Summary) Failed() bool {
	return s.Status == SummaryFailed
}

// IngestReport counts one ingest run. Removed lists sources whose files are
// gone and were dropped from the index.
type IngestReport struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Skipped   []string `json:"skipped,omitempty"`
	Removed   []string `json:"removed,omitempty"`
}
