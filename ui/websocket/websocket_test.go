package websocket

import (
	"testing"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_NotifyNeverBlocks(t *testing.T) {
	hub := NewHub(2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Notify(domainInstance.Notification{Type: domainInstance.NotificationLifecycle, InstanceID: "wa1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Len(t, hub.broadcast, 2)
}

func TestHub_NotifyMapsNotification(t *testing.T) {
	hub := NewHub(4)
	n := domainInstance.Notification{Type: domainInstance.NotificationQR, InstanceID: "wa1", QR: "2@abc"}
	hub.Notify(n)

	require.Len(t, hub.broadcast, 1)
	msg := <-hub.broadcast
	assert.Equal(t, "qr", msg.Code)
	assert.Equal(t, "QR code updated", msg.Message)
	assert.Equal(t, n, msg.Result)
	assert.Empty(t, msg.SenderID)
}

func TestHub_PublishAfterStopIsDropped(t *testing.T) {
	hub := NewHub(1)
	hub.Stop()
	hub.Stop()

	assert.NotPanics(t, func() {
		hub.Notify(domainInstance.Notification{Type: domainInstance.NotificationLifecycle})
	})
}
