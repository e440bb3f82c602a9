package pagewatch

import (
	"math/rand"
	"sync"
)

// promptState tracks whether a tab currently shows the off-focus
// overlay, so a second irrelevant assessment does not stack prompts.
type promptState int

const (
	promptHidden promptState = iota
	promptShown
)

// focusQuotes are shown one at a time under the off-focus message.
var focusQuotes = []string{
	"The successful warrior is the average man, with laser-like focus.",
	"Concentrate all your thoughts upon the work in hand.",
	"It is during our darkest moments that we must focus to see the light.",
	"Where focus goes, energy flows.",
	"You can do two things at once, but you can't focus effectively on two things at once.",
	"Starve your distractions, feed your focus.",
	"Lack of direction, not lack of time, is the problem.",
	"What you stay focused on will grow.",
}

type quotePicker struct {
	mu   sync.Mutex
	last int
}

// pick returns a random quote, never the same one twice in a row.
func (q *quotePicker) pick() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := rand.Intn(len(focusQuotes))
	if i == q.last {
		i = (i + 1) % len(focusQuotes)
	}
	q.last = i
	return focusQuotes[i]
}
