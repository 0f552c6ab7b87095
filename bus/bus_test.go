package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeDelivers(t *testing.T) {
	b := New()
	sub, err := Subscribe[int](b, "counter")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, Publish(b, "counter", 7))

	select {
	case v := <-sub.C():
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published value")
	}
}

func TestSubscribeTypeMismatchErrors(t *testing.T) {
	b := New()
	_, err := Subscribe[int](b, "topic")
	require.NoError(t, err)

	_, err = Subscribe[string](b, "topic")
	require.ErrorIs(t, err, ErrWrongType)
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New()
	sub, err := Subscribe[int](b, "counter")
	require.NoError(t, err)
	sub.Close()

	require.NoError(t, Publish(b, "counter", 1))

	_, ok := <-sub.C()
	require.False(t, ok)
}

func TestRequestCallsRegisteredHandler(t *testing.T) {
	b := New()
	require.NoError(t, Handle(b, "double", func(n int) (int, error) {
		return n * 2, nil
	}))

	got, err := Request[int, int](b, "double", 21)
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestRequestWithoutHandlerErrors(t *testing.T) {
	b := New()
	_, err := Request[int, int](b, "nobody-home", 1)
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()
	a, err := Subscribe[string](b, "news")
	require.NoError(t, err)
	c, err := Subscribe[string](b, "news")
	require.NoError(t, err)

	require.NoError(t, Publish(b, "news", "hello"))

	require.Equal(t, "hello", <-a.C())
	require.Equal(t, "hello", <-c.C())
}
