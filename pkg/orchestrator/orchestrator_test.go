package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/savta-labs/savta/internal/metrics"
	"github.com/savta-labs/savta/pkg/generator"
	"github.com/savta-labs/savta/pkg/prompt"
	"github.com/savta-labs/savta/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTexts = Texts{
	Fallback: "sorry, something went wrong",
	Greeting: "hello, I am listening",
	Help:     "send me a message",
}

// scriptedGenerator returns canned replies or failures in order.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, p string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, p)

	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return fmt.Sprintf("reply-%d", i), nil
}

func newTestOrchestrator(t *testing.T, gen Generator, opts ...Option) (*Orchestrator, *session.Store) {
	t.Helper()
	store := session.NewStore()
	tmpl := prompt.New("persona", "User", "Bot")
	o, err := New(store, tmpl, gen, testTexts, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return o, store
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := session.NewStore()
	tmpl := prompt.New("p", "U", "A")
	gen := &scriptedGenerator{}

	_, err := New(nil, tmpl, gen, testTexts, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(store, nil, gen, testTexts, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(store, tmpl, nil, testTexts, zerolog.Nop())
	assert.Error(t, err)
}

func TestHandleMessage_SuccessAppendsBothTurns(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"hi there"}}
	o, store := newTestOrchestrator(t, gen)

	reply := o.HandleMessage(context.Background(), 1, "hello")
	assert.Equal(t, "hi there", reply)

	window := store.Window(1, 5)
	require.Len(t, window, 2)
	assert.Equal(t, session.SpeakerUser, window[0].Speaker)
	assert.Equal(t, "hello", window[0].Text)
	assert.Equal(t, session.SpeakerAssistant, window[1].Speaker)
	assert.Equal(t, "hi there", window[1].Text)
}

func TestHandleMessage_ConcreteScenario(t *testing.T) {
	// U1 sends "hello", backend succeeds with "hi there"; then "bye" while
	// the backend fails.
	gen := &scriptedGenerator{
		replies: []string{"hi there"},
		errs:    []error{nil, &generator.Failure{Reason: generator.ReasonTransport}},
	}
	o, store := newTestOrchestrator(t, gen)

	reply := o.HandleMessage(context.Background(), 1, "hello")
	assert.Equal(t, "hi there", reply)

	window := store.Window(1, 5)
	require.Len(t, window, 2)
	assert.Equal(t, "hello", window[0].Text)
	assert.Equal(t, "hi there", window[1].Text)

	reply = o.HandleMessage(context.Background(), 1, "bye")
	assert.Equal(t, testTexts.Fallback, reply)

	window = store.Window(1, 5)
	require.Len(t, window, 3)
	assert.Equal(t, "hello", window[0].Text)
	assert.Equal(t, "hi there", window[1].Text)
	assert.Equal(t, session.SpeakerUser, window[2].Speaker)
	assert.Equal(t, "bye", window[2].Text)
}

func TestHandleMessage_FailureIsolation(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{&generator.Failure{Reason: generator.ReasonTimeout}}}
	o, store := newTestOrchestrator(t, gen)

	reply := o.HandleMessage(context.Background(), 1, "hello")
	assert.Equal(t, testTexts.Fallback, reply)

	// The user's message stays; no assistant turn was appended.
	window := store.Window(1, 5)
	require.Len(t, window, 1)
	assert.Equal(t, session.SpeakerUser, window[0].Speaker)
}

func TestHandleMessage_AlternatingHistory(t *testing.T) {
	gen := &scriptedGenerator{}
	o, store := newTestOrchestrator(t, gen, WithWindowSize(20))

	for i := 0; i < 4; i++ {
		o.HandleMessage(context.Background(), 1, fmt.Sprintf("msg-%d", i))
	}

	window := store.Window(1, 20)
	require.Len(t, window, 8)
	for i, turn := range window {
		if i%2 == 0 {
			assert.Equal(t, session.SpeakerUser, turn.Speaker)
			assert.Equal(t, fmt.Sprintf("msg-%d", i/2), turn.Text)
		} else {
			assert.Equal(t, session.SpeakerAssistant, turn.Speaker)
		}
	}
}

func TestHandleMessage_UsesWindowForPrompt(t *testing.T) {
	gen := &scriptedGenerator{}
	o, _ := newTestOrchestrator(t, gen, WithWindowSize(3))

	// 3 exchanges = 6 turns; the prompt for the 4th message must only carry
	// the most recent 3 turns.
	for i := 0; i < 4; i++ {
		o.HandleMessage(context.Background(), 1, fmt.Sprintf("msg-%d", i))
	}

	last := gen.prompts[len(gen.prompts)-1]
	assert.NotContains(t, last, "msg-0")
	assert.NotContains(t, last, "msg-1")
	assert.Contains(t, last, "msg-3")
}

func TestHandleMessage_EmptyTextSkipsBackend(t *testing.T) {
	gen := &scriptedGenerator{}
	o, store := newTestOrchestrator(t, gen)

	reply := o.HandleMessage(context.Background(), 1, "   ")
	assert.Equal(t, testTexts.Fallback, reply)
	assert.Equal(t, 0, gen.calls)

	// The empty turn is still recorded.
	assert.Equal(t, 1, store.Len(1))
}

func TestResetConversation_Idempotent(t *testing.T) {
	gen := &scriptedGenerator{}
	o, store := newTestOrchestrator(t, gen)

	o.HandleMessage(context.Background(), 1, "hello")
	require.Equal(t, 2, store.Len(1))

	greeting := o.ResetConversation(1)
	assert.Equal(t, testTexts.Greeting, greeting)
	assert.Equal(t, 0, store.Len(1))

	greeting = o.ResetConversation(1)
	assert.Equal(t, testTexts.Greeting, greeting)
	assert.Equal(t, 0, store.Len(1))

	// A subsequent message starts a fresh window of size 1 before the reply.
	o.HandleMessage(context.Background(), 1, "fresh start")
	window := store.Window(1, 5)
	require.Len(t, window, 2)
	assert.Equal(t, "fresh start", window[0].Text)
}

func TestResetConversation_Archives(t *testing.T) {
	archiver, err := session.NewArchiver(t.TempDir())
	require.NoError(t, err)

	gen := &scriptedGenerator{replies: []string{"hi"}}
	o, _ := newTestOrchestrator(t, gen, WithArchiver(archiver))

	o.HandleMessage(context.Background(), 1, "hello")
	o.ResetConversation(1)

	archived, err := archiver.Load(1)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "hello", archived[0].Text)
	assert.Equal(t, "hi", archived[1].Text)
}

func TestPerUserIsolation(t *testing.T) {
	gen := &scriptedGenerator{}
	o, store := newTestOrchestrator(t, gen)

	o.HandleMessage(context.Background(), 1, "from A")
	o.HandleMessage(context.Background(), 2, "from B")
	o.ResetConversation(1)

	assert.Equal(t, 0, store.Len(1))
	assert.Equal(t, 2, store.Len(2))
	assert.Equal(t, "from B", store.Window(2, 5)[0].Text)
}

// slowGenerator stalls inside Generate and records how many calls overlap.
type slowGenerator struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (g *slowGenerator) Generate(ctx context.Context, p string) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	for {
		max := g.maxInFlight.Load()
		if n <= max || g.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	time.Sleep(5 * time.Millisecond)
	return "ok", nil
}

func TestHandleMessage_SameUserDoubleSend(t *testing.T) {
	gen := &slowGenerator{}
	o, store := newTestOrchestrator(t, gen, WithWindowSize(20))

	// A burst of messages from one user, all in flight at once.
	const sends = 6
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o.HandleMessage(context.Background(), 1, fmt.Sprintf("burst-%d", i))
		}(i)
	}
	wg.Wait()

	// The guard is held across the whole cycle, so generations for the same
	// user never overlap.
	assert.Equal(t, int32(1), gen.maxInFlight.Load())

	// Each user turn is directly followed by its own assistant turn.
	window := store.Window(1, 20)
	require.Len(t, window, sends*2)
	for i, turn := range window {
		if i%2 == 0 {
			assert.Equal(t, session.SpeakerUser, turn.Speaker)
		} else {
			assert.Equal(t, session.SpeakerAssistant, turn.Speaker)
			assert.Equal(t, "ok", turn.Text)
		}
	}
}

func TestHandleMessage_ConcurrentUsers(t *testing.T) {
	gen := &scriptedGenerator{}
	o, store := newTestOrchestrator(t, gen, WithWindowSize(50))

	const users = 5
	const perUser = 10

	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				o.HandleMessage(context.Background(), userID, fmt.Sprintf("u%d-m%d", userID, i))
			}
		}(u)
	}
	wg.Wait()

	for u := int64(1); u <= users; u++ {
		window := store.Window(u, 100)
		require.Len(t, window, perUser*2)
		// User turns arrive in send order with an assistant turn after each.
		for i := 0; i < perUser; i++ {
			assert.Equal(t, fmt.Sprintf("u%d-m%d", u, i), window[i*2].Text)
			assert.Equal(t, session.SpeakerAssistant, window[i*2+1].Speaker)
		}
	}
}

func TestHelpText(t *testing.T) {
	gen := &scriptedGenerator{}
	o, _ := newTestOrchestrator(t, gen)

	assert.Equal(t, testTexts.Help, o.HelpText())
}

func TestMetricsInstrumentation(t *testing.T) {
	m := metrics.New()
	gen := &scriptedGenerator{
		replies: []string{"ok"},
		errs:    []error{nil, &generator.Failure{Reason: generator.ReasonBlocked}},
	}
	o, _ := newTestOrchestrator(t, gen, WithMetrics(m))

	o.HandleMessage(context.Background(), 1, "hello")
	o.HandleMessage(context.Background(), 1, "again")
	o.ResetConversation(1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesReceivedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RepliesTotal.WithLabelValues("reply")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RepliesTotal.WithLabelValues("fallback")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationFailuresTotal.WithLabelValues("blocked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionResetsTotal))

	// Reset keeps the (now empty) session alive, so the gauge stays at 1.
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive))
}
