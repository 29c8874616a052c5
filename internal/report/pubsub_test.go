package report

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubReporterPublishes(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "warm-reports")
	require.NoError(t, err)

	reporter := NewPubSubReporter(topic)
	defer reporter.Close()

	require.NoError(t, reporter.Report(ctx, sampleReport()))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "1", msgs[0].Attributes["site_id"])
	require.Equal(t, "run-1", msgs[0].Attributes["run_id"])

	var decoded RunReport
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, 2, decoded.Summary.Total)
	require.Len(t, decoded.Failures, 1)
}

func TestPubSubReporterWithoutTopic(t *testing.T) {
	t.Parallel()

	err := NewPubSubReporter(nil).Report(context.Background(), sampleReport())
	require.ErrorContains(t, err, "not configured")
}
