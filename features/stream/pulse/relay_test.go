package pulse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telos-ai/telos/hooks"
)

func TestRelayWiresSinkAndSubscribers(t *testing.T) {
	cli := newFakeClient()
	relay, err := NewRelay(RelayOptions{Client: cli})
	require.NoError(t, err)

	bus := hooks.NewBus(nil)
	sub, err := bus.Subscribe(relay.Sink())
	require.NoError(t, err)
	defer sub.Close()

	bus.Publish(context.Background(), hooks.NewGoalAchievedEvent("proc-3", "chef", "dinner_served"))

	str := cli.streams["process/proc-3"]
	require.NotNil(t, str)
	require.Len(t, str.entries, 1)
	require.Equal(t, "goal_achieved", str.entries[0].event)

	consumer, err := relay.NewSubscriber(SubscriberOptions{SinkName: "ui_feed"})
	require.NoError(t, err)
	require.NotNil(t, consumer)

	require.NoError(t, relay.Close(context.Background()))
	require.True(t, cli.closed)
}

func TestNewRelayRequiresClient(t *testing.T) {
	_, err := NewRelay(RelayOptions{})
	require.EqualError(t, err, "pulse client is required")
}
