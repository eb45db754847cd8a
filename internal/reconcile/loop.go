// Package reconcile keeps a document's decorations in step with its
// suggestion list.
//
// A change to the list schedules a pass on the document's scheduler; the
// pass never runs inside the mutation that triggered it. A pass compares the
// set of suggestion revisions with the set seen by the previous pass and,
// when they differ, strips every decoration and places the current
// suggestions again in one editor update.
package reconcile

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"proofline/internal/doctree"
	"proofline/internal/placer"
	"proofline/internal/splitter"
	"proofline/internal/suggestion"
)

type State int

const (
	StateIdle State = iota
	StateScheduled
	StateRecomputing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRecomputing:
		return "recomputing"
	default:
		return "unknown"
	}
}

type Option func(*Loop)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(l *Loop) {
		l.metrics = metrics
	}
}

type Loop struct {
	editor    *doctree.Editor
	store     *suggestion.Store
	scheduler Scheduler
	logger    zerolog.Logger
	metrics   *Metrics

	mu       sync.Mutex
	state    State
	again    bool
	baseline map[suggestion.Revision]struct{}
	report   placer.Report
}

// New creates a loop and subscribes it to store changes.
func New(editor *doctree.Editor, store *suggestion.Store, scheduler Scheduler, opts ...Option) *Loop {
	l := &Loop{
		editor:    editor,
		store:     store,
		scheduler: scheduler,
		logger:    zerolog.Nop(),
		baseline:  map[suggestion.Revision]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}
	store.OnChange(l.Notify)
	return l
}

// Notify schedules a pass. Calls while a pass is already scheduled
// coalesce into it; a call during a pass schedules one more pass after it.
func (l *Loop) Notify() {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateIdle:
		l.state = StateScheduled
		l.scheduler.Post(l.run)
	case StateRecomputing:
		l.again = true
	}
}

// Force schedules a pass that rebuilds decorations even when the suggestion
// set is unchanged.
func (l *Loop) Force() {
	l.scheduler.Post(func() {
		l.mu.Lock()
		busy := l.state == StateRecomputing
		l.mu.Unlock()
		if busy {
			return
		}
		l.pass(true)
	})
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastReport returns the placement report of the most recent rebuild.
func (l *Loop) LastReport() placer.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.report
}

func (l *Loop) run() {
	l.mu.Lock()
	l.state = StateRecomputing
	l.again = false
	l.mu.Unlock()

	l.pass(false)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.again {
		l.again = false
		l.state = StateScheduled
		l.scheduler.Post(l.run)
		return
	}
	l.state = StateIdle
}

func (l *Loop) pass(force bool) {
	started := time.Now()
	l.verifyAccepted()

	list := l.store.List()
	current := revisions(list)

	l.mu.Lock()
	unchanged := sameSet(current, l.baseline)
	l.mu.Unlock()
	if unchanged && !force {
		if l.metrics != nil {
			l.metrics.Skipped.Inc()
		}
		return
	}

	var (
		report  placer.Report
		unknown int
	)
	err := l.editor.Update(func(doc *doctree.Document) error {
		unknown = doc.Strip(l.logger)
		report = placer.PlaceWithReport(doc, list)
		return nil
	})
	if err != nil {
		l.logger.Warn().Err(err).Msg("reconcile pass not committed")
		return
	}

	l.mu.Lock()
	l.baseline = current
	l.report = report
	l.mu.Unlock()

	for _, s := range report.Remaining {
		l.logger.Debug().
			Int64("suggestion_id", int64(s.ID)).
			Str("original_text", s.OriginalText).
			Msg("suggestion not found in document")
	}
	for _, s := range report.Overlaps {
		l.logger.Debug().
			Int64("suggestion_id", int64(s.ID)).
			Msg("suggestion overlaps an earlier match")
	}

	if l.metrics != nil {
		l.metrics.Passes.Inc()
		l.metrics.Placed.Add(float64(len(report.Placed)))
		l.metrics.Unlocated.Add(float64(len(report.Remaining)))
		l.metrics.Overlaps.Add(float64(len(report.Overlaps)))
		l.metrics.UnknownNodes.Add(float64(unknown))
		l.metrics.PassDuration.Observe(time.Since(started).Seconds())
	}
}

// verifyAccepted reverts accepted suggestions whose replacement text is not
// at the position the accept wrote it to.
func (l *Loop) verifyAccepted() {
	pending := l.store.Unconfirmed()
	if len(pending) == 0 {
		return
	}
	text := l.editor.Text()
	for _, s := range pending {
		end := s.At + utf8.RuneCountInString(s.Text)
		if s.Text == "" || splitter.Slice(text, s.At, end) == s.Text {
			l.store.Confirm(s.ID)
			continue
		}
		if l.store.Revert(s.ID) {
			l.logger.Debug().
				Int64("suggestion_id", int64(s.ID)).
				Msg("accepted suggestion not applied, reverted to proposed")
			if l.metrics != nil {
				l.metrics.Reverts.Inc()
			}
		}
	}
}

func revisions(list []suggestion.Suggestion) map[suggestion.Revision]struct{} {
	out := make(map[suggestion.Revision]struct{}, len(list))
	for _, s := range list {
		out[s.Revision()] = struct{}{}
	}
	return out
}

func sameSet(a, b map[suggestion.Revision]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}
