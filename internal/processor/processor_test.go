package processor_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdgateway/internal/processor"
	"github.com/sawpanic/mdgateway/internal/result"
)

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProcessMessageDispatchesToHandler(t *testing.T) {
	p := processor.New(10, zerolog.Nop())
	p.RegisterTypeDetector(func(doc processor.Doc) string {
		return doc["type"].(string)
	})

	var mu sync.Mutex
	var got processor.Doc
	require.NoError(t, p.RegisterHandler("greeting", func(doc processor.Doc) {
		mu.Lock()
		got = doc
		mu.Unlock()
	}))

	p.Start("test", 1, false, nil)
	defer p.Stop(true, false)

	require.NoError(t, p.ProcessMessage(processor.Doc{"type": "greeting", "msg": "hi"}, nil))

	waitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	})
	assert.Equal(t, "hi", got["msg"])
}

func TestProcessMessageNoDetectorRegistered(t *testing.T) {
	p := processor.New(10, zerolog.Nop())
	err := p.ProcessMessage(processor.Doc{}, nil)
	require.Error(t, err)
	assert.True(t, result.Is(err, result.KindNotInitialized))
}

func TestProcessMessageUnknownType(t *testing.T) {
	p := processor.New(10, zerolog.Nop())
	p.RegisterTypeDetector(func(doc processor.Doc) string { return "unknown" })
	err := p.ProcessMessage(processor.Doc{}, nil)
	require.Error(t, err)
	assert.True(t, result.Is(err, result.KindInvalidArgument))
}

func TestRegisterHandlerRejectsDuplicateAndNil(t *testing.T) {
	p := processor.New(10, zerolog.Nop())
	require.NoError(t, p.RegisterHandler("a", func(processor.Doc) {}))

	err := p.RegisterHandler("a", func(processor.Doc) {})
	assert.True(t, result.Is(err, result.KindStateConflict))

	err = p.RegisterHandler("b", nil)
	assert.True(t, result.Is(err, result.KindInvalidArgument))
}

func TestEnqueueQueueFull(t *testing.T) {
	p := processor.New(1, zerolog.Nop())
	p.Pause()
	require.NoError(t, p.Enqueue(processor.Doc{}, func(processor.Doc) {}, nil))

	err := p.Enqueue(processor.Doc{}, func(processor.Doc) {}, nil)
	require.Error(t, err)
	assert.True(t, result.Is(err, result.KindQueueFull))
}

func TestSequenceTagMutualExclusion(t *testing.T) {
	p := processor.New(10, zerolog.Nop())

	var mu sync.Mutex
	var order []string
	slow := uint64(7)

	h := func(label string, delay time.Duration) processor.Handler {
		return func(processor.Doc) {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
		}
	}

	p.Start("test", 4, false, nil)
	defer p.Stop(true, false)

	require.NoError(t, p.Enqueue(processor.Doc{}, h("first", 30*time.Millisecond), &slow))
	require.NoError(t, p.Enqueue(processor.Doc{}, h("second", 0), &slow))

	waitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order, "same sequence tag must serialize, not interleave")
}

func TestEnqueueAfterStoppingIsRejected(t *testing.T) {
	p := processor.New(10, zerolog.Nop())
	p.Start("test", 1, false, nil)
	p.Stop(true, false)

	err := p.Enqueue(processor.Doc{}, func(processor.Doc) {}, nil)
	require.Error(t, err)
	assert.True(t, result.Is(err, result.KindTransportError))
}

func TestStopCancelQueueDropsPending(t *testing.T) {
	p := processor.New(10, zerolog.Nop())
	p.Pause()
	require.NoError(t, p.Enqueue(processor.Doc{}, func(processor.Doc) {}, nil))
	assert.Equal(t, 1, p.QueueLen())

	p.Stop(true, false)
	assert.Equal(t, 0, p.QueueLen())
}
