package typing

// Presenter reveals complete strings one rune at a time.
//
// A reveal is a chain of scheduled callbacks: each step schedules the next
// with the delay of the rune it just revealed. Once started a reveal always
// runs to completion; callers that no longer care about it ignore its
// callbacks.
type Presenter struct {
	sched   Scheduler
	cadence Cadence
}

func NewPresenter(sched Scheduler, cadence Cadence) *Presenter {
	if sched == nil {
		sched = ClockScheduler{}
	}
	return &Presenter{sched: sched, cadence: cadence}
}

// Reveal emits exactly one onStep call per rune of text, each carrying the
// prefix revealed so far; the last one equals text. onDone then receives
// text as the canonical value. Callbacks run on the scheduler's goroutines,
// never concurrently with each other.
func (p *Presenter) Reveal(text string, onStep func(partial string), onDone func(full string)) {
	runes := []rune(text)

	var step func(i int)
	step = func(i int) {
		if onStep != nil {
			onStep(string(runes[:i+1]))
		}
		if i+1 == len(runes) {
			if onDone != nil {
				onDone(text)
			}
			return
		}
		p.sched.AfterFunc(p.cadence.Delay(runes[i]), func() { step(i + 1) })
	}

	if len(runes) == 0 {
		p.sched.AfterFunc(0, func() {
			if onDone != nil {
				onDone(text)
			}
		})
		return
	}

	p.sched.AfterFunc(p.cadence.Default, func() { step(0) })
}
