package notifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHubDeliversToDocumentSubscribersOnly(t *testing.T) {
	h := NewHub(10)
	a, err := h.Subscribe(1)
	require.NoError(t, err)
	b, err := h.Subscribe(2)
	require.NoError(t, err)

	h.PublishStatus(1, "processing", "extracting", 10, "Extracting text")

	evs := drain(a)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeStatus, evs[0].Type)
	assert.Equal(t, uint(1), evs[0].DocumentID)
	assert.Equal(t, 10, *evs[0].Progress)
	assert.Empty(t, drain(b))
}

func TestHubProgressIsMonotonicWithinARun(t *testing.T) {
	h := NewHub(10)
	sub, err := h.Subscribe(7)
	require.NoError(t, err)

	h.BeginRun(7)
	for _, p := range []int{10, 25, 20, 60, 30, 85} {
		h.PublishStatus(7, "processing", "stage", p, "")
	}

	var got []int
	for _, ev := range drain(sub) {
		got = append(got, *ev.Progress)
	}
	assert.Equal(t, []int{10, 25, 25, 60, 60, 85}, got)

	last, ok := h.LastProgress(7)
	assert.True(t, ok)
	assert.Equal(t, 85, last)
}

func TestHubNewRunResetsProgress(t *testing.T) {
	h := NewHub(10)
	sub, err := h.Subscribe(3)
	require.NoError(t, err)

	h.PublishStatus(3, "processing", "analyzing", 85, "")
	h.BeginRun(3)
	h.PublishStatus(3, "processing", "extracting", 10, "")

	evs := drain(sub)
	require.Len(t, evs, 2)
	assert.Equal(t, 10, *evs[1].Progress)
}

func TestHubTerminalStatusClearsHighWaterMark(t *testing.T) {
	h := NewHub(10)
	h.PublishStatus(4, "processing", "saving", 95, "")
	h.PublishStatus(4, "completed", "completed", 100, "")

	_, ok := h.LastProgress(4)
	assert.False(t, ok)
}

func TestHubConnectionLimit(t *testing.T) {
	h := NewHub(2)
	s1, err := h.Subscribe(1)
	require.NoError(t, err)
	_, err = h.Subscribe(1)
	require.NoError(t, err)

	_, err = h.Subscribe(2)
	assert.ErrorIs(t, err, ErrTooManyConnections)

	h.Unsubscribe(s1)
	h.Unsubscribe(s1)
	assert.Equal(t, 1, h.ConnectionCount())
	_, err = h.Subscribe(2)
	assert.NoError(t, err)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(10)
	sub, err := h.Subscribe(5)
	require.NoError(t, err)

	for i := 0; i <= sendBuffer; i++ {
		h.PublishStatus(5, "processing", "embedding", 30+i, "")
	}

	assert.Equal(t, 0, h.ConnectionCount())
	evs := drain(sub)
	assert.Len(t, evs, sendBuffer)
	_, open := <-sub.C
	assert.False(t, open)
}

func TestHubClose(t *testing.T) {
	h := NewHub(10)
	sub, err := h.Subscribe(1)
	require.NoError(t, err)

	h.Close()
	_, open := <-sub.C
	assert.False(t, open)

	_, err = h.Subscribe(1)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestEventJSON(t *testing.T) {
	b, err := json.Marshal(StatusEvent(9, "processing", "chunking", 0, "Chunking"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"status"`)
	assert.Contains(t, string(b), `"documentId":9`)
	assert.Contains(t, string(b), `"progress":0`)

	b, err = json.Marshal(HeartbeatEvent())
	require.NoError(t, err)
	assert.NotContains(t, string(b), "progress")

	b, err = json.Marshal(ErrorEvent(9, "LLM unavailable"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"error":"LLM unavailable"`)
}
