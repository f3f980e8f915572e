package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	topic := NewTopicKey[CacheBypassed]("test.bypassed")

	got := make(chan CacheBypassed, 1)
	Subscribe[CacheBypassed](topic, func(_ context.Context, payload CacheBypassed) {
		got <- payload
	})

	publish := NewPublish[CacheBypassed](topic)
	publish(context.Background(), CacheBypassed{Key: "k", Reason: "error"})

	select {
	case v := <-got:
		assert.Equal(t, "k", v.Key)
		assert.Equal(t, "error", v.Reason)
	case <-time.After(time.Second):
		t.Fatal("listener not called")
	}
}
