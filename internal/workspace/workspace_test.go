package workspace

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumnicode/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	pid := uuid.New()

	require.NoError(t, s.Put(ctx, pid, "src/App.tsx", []byte("export {}")))
	b, err := os.ReadFile(filepath.Join(root, pid.String(), "src", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "export {}", string(b))

	require.ErrorIs(t, s.Put(ctx, pid, "../../etc/passwd", []byte("x")), ErrInvalidPath)
	require.ErrorIs(t, s.Put(ctx, pid, "", []byte("x")), ErrInvalidPath)

	require.NoError(t, s.Delete(ctx, pid, "src/App.tsx"))
	require.NoError(t, s.Delete(ctx, pid, "src/App.tsx"), "deleting a missing file is not an error")

	require.NoError(t, s.Put(ctx, pid, "a.txt", []byte("a")))
	require.NoError(t, s.DeleteProject(ctx, pid))
	_, err = os.Stat(filepath.Join(root, pid.String()))
	assert.True(t, os.IsNotExist(err))
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = buf
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.ToString(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	prefix := aws.ToString(in.Prefix)
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := &S3Store{client: fake, bucket: "b"}
	ctx := context.Background()
	pid, other := uuid.New(), uuid.New()

	require.NoError(t, s.Put(ctx, pid, "src/main.go", []byte("package main")))
	require.NoError(t, s.Put(ctx, pid, "go.mod", []byte("module x")))
	require.NoError(t, s.Put(ctx, other, "keep.txt", []byte("k")))
	assert.Equal(t, "package main", string(fake.objects[pid.String()+"/src/main.go"]))

	require.NoError(t, s.Delete(ctx, pid, "go.mod"))
	assert.NotContains(t, fake.objects, pid.String()+"/go.mod")

	require.NoError(t, s.DeleteProject(ctx, pid))
	assert.Len(t, fake.objects, 1)
	assert.Contains(t, fake.objects, other.String()+"/keep.txt")
}

func TestMirrorSwallowsErrors(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	m := NewMirror(s)
	m.Write(context.Background(), uuid.New(), "../escape", "x")
	m.Remove(context.Background(), uuid.New(), "")
	NewMirror(nil).RemoveProject(context.Background(), uuid.New())
}
