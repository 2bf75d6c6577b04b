package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/PabloGalante/nutria-agent/internal/app/session"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// feed keeps only the latest view. The session loop pushes without
// blocking; the terminal renders whatever is newest.
type feed struct {
	mu     sync.Mutex
	latest *session.View
	signal chan struct{}
}

func newFeed() *feed {
	return &feed{signal: make(chan struct{}, 1)}
}

func (f *feed) push(v session.View) {
	f.mu.Lock()
	f.latest = &v
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *feed) run(ctx context.Context, fn func(session.View)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.signal:
			f.mu.Lock()
			v := f.latest
			f.mu.Unlock()
			if v != nil {
				fn(*v)
			}
		}
	}
}

// renderer prints a session incrementally: committed messages once,
// the streaming reply rune by rune, and status changes as they happen.
type renderer struct {
	mu  sync.Mutex
	out io.Writer

	first    domain.MessageID
	shown    int
	streamID domain.MessageID
	streamed int
	statuses map[domain.MessageID]string

	lastErr    string
	persistErr string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, statuses: make(map[domain.MessageID]string)}
}

func (r *renderer) render(v session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replay := false
	if len(v.Messages) > 0 && (v.Messages[0].ID != r.first || len(v.Messages) < r.shown) {
		// fresh, loaded or reset conversation
		if r.first != "" {
			fmt.Fprintln(r.out, "----")
		}
		r.first = v.Messages[0].ID
		r.shown = 0
		r.streamID, r.streamed = "", 0
		r.statuses = make(map[domain.MessageID]string)
		replay = true
	}

	for i := 0; i < r.shown; i++ {
		r.statusChange(v.Messages[i])
	}
	for ; r.shown < len(v.Messages); r.shown++ {
		r.message(v.Messages[r.shown], replay)
	}

	if s := v.Streaming; s != nil {
		if s.MessageID != r.streamID {
			r.streamID, r.streamed = s.MessageID, 0
			fmt.Fprint(r.out, "nutria> ")
		}
		partial := []rune(s.Partial)
		if len(partial) > r.streamed {
			fmt.Fprint(r.out, string(partial[r.streamed:]))
			r.streamed = len(partial)
		}
	}

	if v.LastError != r.lastErr {
		r.lastErr = v.LastError
		if v.LastError != "" {
			fmt.Fprintf(r.out, "! %s\n", v.LastError)
		}
	}
	if v.PersistError != r.persistErr {
		r.persistErr = v.PersistError
		if v.PersistError != "" {
			fmt.Fprintf(r.out, "! not saved: %s\n", v.PersistError)
		}
	}
}

func (r *renderer) message(m session.MessageView, replay bool) {
	switch {
	case m.Role == domain.RoleUser:
		// typed messages are already on screen
		if replay {
			fmt.Fprintf(r.out, "you> %s\n", m.Content)
		}
	case m.ID == r.streamID:
		content := []rune(m.Content)
		if len(content) > r.streamed {
			fmt.Fprint(r.out, string(content[r.streamed:]))
		}
		fmt.Fprintln(r.out)
		r.streamID, r.streamed = "", 0
	default:
		fmt.Fprintf(r.out, "nutria> %s\n", m.Content)
	}

	r.statuses[m.ID] = m.Status
	if m.Status == session.StatusProposedNeedsConfirm.String() {
		fmt.Fprintln(r.out, "        (/confirm or /cancel)")
	}
}

func (r *renderer) statusChange(m session.MessageView) {
	prev := r.statuses[m.ID]
	if prev == m.Status {
		return
	}
	r.statuses[m.ID] = m.Status

	switch m.Status {
	case session.StatusExecuted.String():
		fmt.Fprintf(r.out, "        ✓ %s\n", actionLabel(m.Action))
	case session.StatusFailed.String():
		fmt.Fprintf(r.out, "        ✗ %s failed\n", actionLabel(m.Action))
	}
}

func actionLabel(p *domain.ActionProposal) string {
	if p == nil {
		return "done"
	}
	switch p.Type {
	case domain.ActionLogMeal:
		return "meal logged"
	case domain.ActionLogWorkout:
		return "workout logged"
	case domain.ActionLogWater:
		return "water logged"
	case domain.ActionGenerateRecipe, domain.ActionSaveRecipe:
		return "recipe saved"
	}
	return "done"
}
