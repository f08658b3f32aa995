package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
	err      error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.metadata[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func decodeNDJSON(t *testing.T, data []byte) []AuditEvent {
	t.Helper()
	var out []AuditEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var e AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, scanner.Err())
	return out
}

func seedExpired(t *testing.T, logger *DBLogger, cutoff time.Time, expired int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < expired; i++ {
		require.NoError(t, logger.Log(ctx, &AuditEvent{
			Timestamp: cutoff.Add(-time.Duration(i+1) * time.Hour),
			EventType: EventTypeLogin,
			Status:    EventStatusSuccess,
			Username:  "old@example.com",
		}))
	}
	require.NoError(t, logger.Log(ctx, &AuditEvent{
		Timestamp: cutoff.Add(time.Hour),
		EventType: EventTypeLogout,
		Status:    EventStatusSuccess,
		Username:  "recent@example.com",
	}))
}

func TestS3Archiver_Key(t *testing.T) {
	a := NewArchiver(newFakeS3(), "bucket", "backoffice/audit")
	cutoff := time.Date(2024, 3, 9, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, "backoffice/audit/2024/03/09/audit-5-9.ndjson", a.Key(cutoff, 5, 9))
}

func TestArchivingPruner_Cleanup(t *testing.T) {
	logger := openSQLite(t)
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seedExpired(t, logger, cutoff, 5)

	store := newFakeS3()
	pruner := NewArchivingPruner(logger, NewArchiver(store, "audit-archive", "logs"), 2)

	n, err := pruner.Cleanup(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// batches of 2, 2 and 1
	require.Len(t, store.objects, 3)
	var archived int
	for key, data := range store.objects {
		events := decodeNDJSON(t, data)
		archived += len(events)
		for _, e := range events {
			assert.Equal(t, "old@example.com", e.Username)
		}
		assert.NotEmpty(t, store.metadata[key]["checksum-sha256"])
	}
	assert.Equal(t, 5, archived)

	remaining, err := logger.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent@example.com", remaining[0].Username)
}

func TestArchivingPruner_UploadFailureKeepsRows(t *testing.T) {
	logger := openSQLite(t)
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seedExpired(t, logger, cutoff, 3)

	store := newFakeS3()
	store.err = errors.New("access denied")
	pruner := NewArchivingPruner(logger, NewArchiver(store, "audit-archive", ""), 0)

	_, err := pruner.Cleanup(context.Background(), cutoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	remaining, err := logger.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 4)
}

func TestArchivingPruner_NothingExpired(t *testing.T) {
	logger := openSQLite(t)
	store := newFakeS3()
	pruner := NewArchivingPruner(logger, NewArchiver(store, "audit-archive", ""), 10)

	n, err := pruner.Cleanup(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.objects)
}

func TestNewS3Archiver_RequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
