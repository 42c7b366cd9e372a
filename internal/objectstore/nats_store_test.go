// Package objectstore_test tests the artifact store implementations.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNats(jetstreamContext, "test-bucket")
	require.NoError(t, err)

	ctx := context.Background()
	key := "audio_0.wav"

	require.NoError(t, store.Upload(ctx, key, []byte("first generation")))
	require.NoError(t, store.Upload(ctx, key, []byte("second generation")))

	downloadData, err := store.Download(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("second generation"), downloadData)

	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Download(ctx, key)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.NewNats(jetstreamContext, "shared-bucket")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "k.wav", []byte("data")))

	second, err := objectstore.NewNats(jetstreamContext, "shared-bucket")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "k.wav")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), data)
}
