package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/config"
	"hamo/backend/internal/models"
)

type fakeObjects struct {
	puts map[string][]byte
}

func (o *fakeObjects) PutExport(ctx context.Context, objectKey string, body []byte) (string, error) {
	if o.puts == nil {
		o.puts = map[string][]byte{}
	}
	o.puts[objectKey] = body
	return "hamo-transcripts", nil
}

func (o *fakeObjects) PresignExport(ctx context.Context, objectKey string) (string, error) {
	return "https://objects.local/hamo-transcripts/" + objectKey + "?sig=x", nil
}

func TestExportLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.AppConfig{
		Queue:      config.QueueConfig{Stream: "hamo:jobs"},
		Transcript: transcriptConfig(),
	}
	objects := &fakeObjects{}
	exports := NewExportService(f.exportRepo, f.transcripts, objects, rdb, cfg, zerolog.Nop())
	exports.now = f.clock.Now

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)
	_, err = f.transcripts.Append(ctx, conv.Key, models.SenderUser, "hello", "therapist-1")
	require.NoError(t, err)

	export, err := exports.RequestExport(ctx, "therapist-1", conv)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, export.Status)

	entries, err := rdb.XRange(ctx, "hamo:jobs", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TaskTranscriptExport, entries[0].Values["type"])
	assert.Equal(t, export.ExportID, entries[0].Values["exportId"])

	view, err := exports.GetExport(ctx, "therapist-1", export.ExportID)
	require.NoError(t, err)
	assert.Empty(t, view.DownloadURL)

	require.NoError(t, exports.RunExport(ctx, "therapist-1", export.ExportID))

	view, err = exports.GetExport(ctx, "therapist-1", export.ExportID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusReady, view.Status)
	assert.Equal(t, 1, view.Messages)
	assert.Equal(t, "hamo-transcripts", view.Bucket)
	assert.Contains(t, view.DownloadURL, export.ExportID)

	var doc exportDocument
	require.NoError(t, json.Unmarshal(objects.puts[view.ObjectKey], &doc))
	assert.Equal(t, "Jane", doc.ClientName)
	assert.Equal(t, "Dr. Calm", doc.AvatarName)
	require.Len(t, doc.Messages, 1)

	// A second delivery of the same job is a no-op.
	require.NoError(t, exports.RunExport(ctx, "therapist-1", export.ExportID))
}

func TestExportFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")

	cfg := &config.AppConfig{Transcript: transcriptConfig()}
	exports := NewExportService(f.exportRepo, f.transcripts, nil, nil, cfg, zerolog.Nop())

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)

	export, err := exports.RequestExport(ctx, "therapist-1", conv)
	require.NoError(t, err)

	assert.Error(t, exports.RunExport(ctx, "therapist-1", export.ExportID))

	view, err := exports.GetExport(ctx, "therapist-1", export.ExportID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, view.Status)
	assert.NotEmpty(t, view.Error)
}

func TestExportEnqueueFailureMarksExportFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	cfg := &config.AppConfig{
		Queue:      config.QueueConfig{Stream: "hamo:jobs"},
		Transcript: transcriptConfig(),
	}
	exports := NewExportService(f.exportRepo, f.transcripts, &fakeObjects{}, rdb, cfg, zerolog.Nop())

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)

	_, err = exports.RequestExport(ctx, "therapist-1", conv)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	items, err := f.store.QueryByPrefix(ctx, "USER#therapist-1", "EXPORT#", kvQueryAll)
	require.NoError(t, err)
	require.Len(t, items, 1)
	var export models.Export
	require.NoError(t, items[0].Decode(&export))
	assert.Equal(t, models.ExportStatusFailed, export.Status)
	assert.Contains(t, export.Error, "enqueue")
}
