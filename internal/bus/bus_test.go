package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishIsKeyedByTopic(t *testing.T) {
	b := New()
	a := b.Subscribe("browser-a")
	other := b.Subscribe("browser-b")
	defer b.Unsubscribe("browser-a", a)
	defer b.Unsubscribe("browser-b", other)

	b.Publish(Event{Topic: "browser-a", Action: "signed-in", ID: "uid-1"})

	select {
	case e := <-a:
		assert.Equal(t, "uid-1", e.ID)
		assert.Equal(t, "signed-in", e.Action)
	default:
		t.Fatal("expected event on browser-a")
	}
	select {
	case e := <-other:
		t.Fatalf("unexpected event on browser-b: %+v", e)
	default:
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe(TopicAreas)
	for i := 0; i < 32; i++ {
		b.Publish(Event{Topic: TopicAreas, Action: "created"})
	}
	assert.Len(t, ch, cap(ch))
	b.Unsubscribe(TopicAreas, ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe("x")
	require.Equal(t, 1, b.Subscribers("x"))

	b.Unsubscribe("x", ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers("x"))

	// second unsubscribe is a no-op
	b.Unsubscribe("x", ch)
}
