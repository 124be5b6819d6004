package busclient

import (
	"sync"
	"testing"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/broker"
	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not satisfied within %s", timeout)
}

func TestClient_SubscribeExactMatchDispatches(t *testing.T) {
	b := broker.New()
	log := logging.New("test")
	log.SetQuiet(true)

	recv, err := New("receiver", b, log, 0)
	require.NoError(t, err)
	defer recv.Close()

	sender, err := New("sender", b, log, 0)
	require.NoError(t, err)
	defer sender.Close()

	var mu sync.Mutex
	var gotTopic string
	var gotPayload any

	recv.Subscribe("command/local_devices/scan", func(topic string, payload any) {
		mu.Lock()
		gotTopic, gotPayload = topic, payload
		mu.Unlock()
	})

	sender.Publish("command/local_devices/scan", "hello")

	eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotTopic != ""
	})

	mu.Lock()
	assert.Equal(t, "command/local_devices/scan", gotTopic)
	assert.Equal(t, "hello", gotPayload)
	mu.Unlock()
}

func TestClient_WildcardFallbackWhenNoExactMatch(t *testing.T) {
	b := broker.New()
	log := logging.New("test")
	log.SetQuiet(true)

	recv, err := New("receiver", b, log, 0)
	require.NoError(t, err)
	defer recv.Close()
	sender, err := New("sender", b, log, 0)
	require.NoError(t, err)
	defer sender.Close()

	var called int32
	var mu sync.Mutex

	recv.Subscribe("command/network_devices/#", func(topic string, payload any) {
		mu.Lock()
		called++
		mu.Unlock()
	})

	sender.Publish("command/network_devices/add", nil)

	eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return called == 1
	})
}

func TestClient_UnsubscribeStopsDelivery(t *testing.T) {
	b := broker.New()
	log := logging.New("test")
	log.SetQuiet(true)

	recv, err := New("receiver", b, log, 0)
	require.NoError(t, err)
	defer recv.Close()
	sender, err := New("sender", b, log, 0)
	require.NoError(t, err)
	defer sender.Close()

	var mu sync.Mutex
	count := 0
	recv.Subscribe("event/x", func(topic string, payload any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	sender.Publish("event/x", nil)
	eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	recv.Unsubscribe("event/x")
	sender.Publish("event/x", nil)
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestClient_HandlerPanicIsRecoveredAndDoesNotStopDispatcher(t *testing.T) {
	b := broker.New()
	log := logging.New("test")
	log.SetQuiet(true)

	recv, err := New("receiver", b, log, 0)
	require.NoError(t, err)
	defer recv.Close()
	sender, err := New("sender", b, log, 0)
	require.NoError(t, err)
	defer sender.Close()

	var mu sync.Mutex
	secondCalled := false

	recv.Subscribe("event/panics", func(topic string, payload any) {
		panic("boom")
	})
	recv.Subscribe("event/ok", func(topic string, payload any) {
		mu.Lock()
		secondCalled = true
		mu.Unlock()
	})

	sender.Publish("event/panics", nil)
	sender.Publish("event/ok", nil)

	eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondCalled
	})
}

func TestClient_CloseReturnsWithinBoundedTime(t *testing.T) {
	b := broker.New()
	log := logging.New("test")
	log.SetQuiet(true)

	c, err := New("closer", b, log, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return within bounded time")
	}
}
