// Package agent implements the predicate search agent that produces
// incremental, interruptible answers about candidate predicate devices.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/regassist/backend/internal/model"
	"github.com/regassist/backend/internal/repository"
)

// SearchRequest describes one agent turn.
type SearchRequest struct {
	ProjectID   string
	Query       string
	DeviceName  string
	IntendedUse string
}

// Result carries the finishing metadata for a completed agent response.
type Result struct {
	Confidence float64
	Sources    []string
	Reasoning  string
}

// EmitFunc receives one text fragment of the response. Fragments arrive
// in order on the goroutine running Search.
type EmitFunc func(chunk string)

// Finder produces a streamed answer for a search request. A canceled
// context ends the stream early; Search then returns ctx.Err() and the
// partial output already emitted stands.
type Finder interface {
	Search(ctx context.Context, req SearchRequest, emit EmitFunc) (*Result, error)
}

// PredicateFinder answers predicate search requests from the local
// 510(k) catalog, composing a narrative summary chunk by chunk.
type PredicateFinder struct {
	predicates *repository.PredicateRepository

	// Delay between emitted chunks. Zero disables pacing (tests).
	chunkDelay time.Duration
	maxResults int
}

// Option configures a PredicateFinder.
type Option func(*PredicateFinder)

// WithChunkDelay sets the pacing delay between emitted chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(f *PredicateFinder) { f.chunkDelay = d }
}

// WithMaxResults caps how many catalog matches are considered.
func WithMaxResults(n int) Option {
	return func(f *PredicateFinder) { f.maxResults = n }
}

// NewPredicateFinder creates a PredicateFinder backed by the given catalog.
func NewPredicateFinder(predicates *repository.PredicateRepository, opts ...Option) *PredicateFinder {
	f := &PredicateFinder{
		predicates: predicates,
		chunkDelay: 40 * time.Millisecond,
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Search runs one agent turn. The answer is emitted chunk by chunk; the
// returned Result holds confidence, the matched K-numbers as sources and
// a short reasoning trace.
func (f *PredicateFinder) Search(ctx context.Context, req SearchRequest, emit EmitFunc) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = req.DeviceName
	}
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	matches, err := f.predicates.Search(ctx, query+" "+req.DeviceName, f.maxResults)
	if err != nil {
		return nil, fmt.Errorf("predicate lookup failed: %w", err)
	}

	for _, chunk := range f.compose(req, matches) {
		if err := f.pace(ctx); err != nil {
			return nil, err
		}
		emit(chunk)
	}

	return f.result(query, matches), nil
}

// pace waits the inter-chunk delay, honoring cancellation.
func (f *PredicateFinder) pace(ctx context.Context) error {
	if f.chunkDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.chunkDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// compose builds the ordered chunk sequence for the answer.
func (f *PredicateFinder) compose(req SearchRequest, matches []*model.PredicateDevice) []string {
	var chunks []string

	subject := req.DeviceName
	if subject == "" {
		subject = "your device"
	}

	if len(matches) == 0 {
		chunks = append(chunks,
			fmt.Sprintf("I searched the 510(k) catalog for %q ", req.Query),
			"but found no cleared devices matching those terms. ",
			"Consider broadening the search with the product code or a more generic device description.")
		return chunks
	}

	chunks = append(chunks, fmt.Sprintf("I found %d potential predicate device(s) for %s. ", len(matches), subject))

	for i, m := range matches {
		chunks = append(chunks, fmt.Sprintf("\n%d. %s (%s), cleared %s under product code %s by %s. ",
			i+1, m.DeviceName, m.KNumber, m.ClearanceDate.Format("Jan 2006"), m.ProductCode, m.Applicant))
		if m.Summary != "" {
			chunks = append(chunks, m.Summary+" ")
		}
	}

	best := matches[0]
	chunks = append(chunks, fmt.Sprintf("\nThe strongest candidate is %s: its clearance is the most recent and its "+
		"intended use aligns with the description on file. ", best.KNumber))
	chunks = append(chunks, "Review the substantial equivalence comparison before citing it in your submission.")

	return chunks
}

// result derives the finishing metadata from the matches.
func (f *PredicateFinder) result(query string, matches []*model.PredicateDevice) *Result {
	if len(matches) == 0 {
		return &Result{
			Confidence: 0.2,
			Reasoning:  fmt.Sprintf("no catalog matches for %q", query),
		}
	}

	confidence := 0.45 + 0.1*float64(len(matches))
	if confidence > 0.95 {
		confidence = 0.95
	}

	sources := make([]string, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, m.KNumber)
	}

	return &Result{
		Confidence: confidence,
		Sources:    sources,
		Reasoning:  fmt.Sprintf("matched %d cleared device(s) against %q, ranked by clearance date", len(matches), query),
	}
}
