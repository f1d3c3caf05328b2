package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_ReadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	_, err := store.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileStore_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "users.json")
	store := NewFileStore(path)

	require.NoError(t, store.Write(context.Background(), []byte(`[]`)))
	require.NoError(t, store.Write(context.Background(), []byte(`[{"username":"alice"}]`)))

	data, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"username":"alice"}]`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, path, store.Location())
}

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &manager.UploadOutput{}, nil
}

func newFakeS3Store(fake *fakeS3) *S3Store {
	return &S3Store{client: fake, uploader: fake, bucket: "auth", key: "users.json"}
}

func TestS3Store_RoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newFakeS3Store(fake)

	_, err := store.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, store.Write(context.Background(), []byte(`[]`)))
	data, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
	assert.Equal(t, "s3://auth/users.json", store.Location())
}

func TestS3Store_ReadError(t *testing.T) {
	store := newFakeS3Store(&fakeS3{getErr: errors.New("access denied")})

	_, err := store.Read(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
	assert.Contains(t, err.Error(), "s3://auth/users.json")
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(nil, "", "users.json")
	assert.Error(t, err)

	_, err = NewS3Store(nil, "bucket", "/")
	assert.Error(t, err)
}
