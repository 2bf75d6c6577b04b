package typing_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/nutria-agent/internal/app/typing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRevealEmitsOneStepPerRune(t *testing.T) {
	texts := []string{
		"Hi.",
		"Logged 2 eggs and toast (320 kcal).",
		"Añadí tu café ☕, ¿algo más?",
		"line one\nline two",
	}

	for _, text := range texts {
		sched := typing.NewManualScheduler()
		p := typing.NewPresenter(sched, typing.DefaultCadence())

		var steps []string
		var done []string
		p.Reveal(text, func(s string) { steps = append(steps, s) }, func(s string) { done = append(done, s) })
		sched.RunAll()

		runes := []rune(text)
		require.Len(t, steps, len(runes), text)
		for i, s := range steps {
			assert.Equal(t, string(runes[:i+1]), s)
		}
		assert.Equal(t, text, steps[len(steps)-1])
		assert.Equal(t, []string{text}, done)
	}
}

func TestRevealEmptyString(t *testing.T) {
	sched := typing.NewManualScheduler()
	p := typing.NewPresenter(sched, typing.DefaultCadence())

	steps := 0
	var done []string
	p.Reveal("", func(string) { steps++ }, func(s string) { done = append(done, s) })
	sched.RunAll()

	assert.Zero(t, steps)
	assert.Equal(t, []string{""}, done)
}

func TestCadenceOrdering(t *testing.T) {
	c := typing.DefaultCadence()

	assert.Less(t, c.Delay(' '), c.Delay('a'))
	assert.Less(t, c.Delay('a'), c.Delay('\n'))
	assert.Less(t, c.Delay('\n'), c.Delay(','))
	assert.Equal(t, c.Delay(','), c.Delay(';'))
	assert.Less(t, c.Delay(';'), c.Delay('.'))
	assert.Equal(t, c.Delay('.'), c.Delay('!'))
	assert.Equal(t, c.Delay('.'), c.Delay('?'))
}

func TestRevealDelaysFollowRevealedRune(t *testing.T) {
	sched := typing.NewManualScheduler()
	c := typing.DefaultCadence()
	p := typing.NewPresenter(sched, c)

	p.Reveal("a b.c", nil, nil)
	sched.RunAll()

	// first step waits the default delay, then one delay per revealed rune
	// except the last
	assert.Equal(t, []time.Duration{
		c.Default,
		c.Delay('a'),
		c.Delay(' '),
		c.Delay('b'),
		c.Delay('.'),
	}, sched.Delays())

	d := sched.Delays()
	assert.Greater(t, d[4], d[2], "terminal punctuation pauses longer than a space")
}

func TestScaledCadence(t *testing.T) {
	c := typing.DefaultCadence()

	assert.Equal(t, 2*c.Stop, c.Scaled(2).Stop)
	instant := c.Scaled(0)
	assert.Zero(t, instant.Stop)
	assert.Zero(t, instant.Space)
	assert.Equal(t, instant, c.Scaled(-1))
}

func TestRevealOnClock(t *testing.T) {
	p := typing.NewPresenter(typing.ClockScheduler{}, typing.DefaultCadence().Scaled(0))

	var (
		mu    sync.Mutex
		steps []string
	)
	done := make(chan string, 1)

	p.Reveal("Done!", func(s string) {
		mu.Lock()
		steps = append(steps, s)
		mu.Unlock()
	}, func(s string) { done <- s })

	select {
	case full := <-done:
		assert.Equal(t, "Done!", full)
	case <-time.After(2 * time.Second):
		t.Fatal("reveal did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"D", "Do", "Don", "Done", "Done!"}, steps)
}
