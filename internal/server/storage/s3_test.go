package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	putIn  *s3.PutObjectInput
	putErr error

	getBody string
	getErr  error

	deletedKey string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putIn = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletedKey = *in.Key
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	url string
	err error
	key string
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error) {
	f.key = *in.Key
	return f.url, f.err
}

func newTestBackend(client *fakeS3, presign *fakePresigner) *S3Backend {
	return &S3Backend{
		client:  client,
		presign: presign,
		bucket:  "notes",
		ttl:     15 * time.Minute,
		nowFunc: func() time.Time { return time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) },
	}
}

func TestS3Backend_StoreKeyLayoutAndPresign(t *testing.T) {
	client := &fakeS3{}
	presign := &fakePresigner{url: "https://minio/notes/presigned"}
	b := newTestBackend(client, presign)

	desc, err := b.Store(context.Background(), []byte("img"), "job1.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}

	wantKey := "notes/2026/03/07/job1.jpg"
	if desc.Path != wantKey {
		t.Errorf("Path = %q, want %q", desc.Path, wantKey)
	}
	if *client.putIn.Key != wantKey {
		t.Errorf("put key = %q, want %q", *client.putIn.Key, wantKey)
	}
	if *client.putIn.Bucket != "notes" {
		t.Errorf("put bucket = %q", *client.putIn.Bucket)
	}
	if presign.key != wantKey {
		t.Errorf("presigned key = %q, want %q", presign.key, wantKey)
	}
	if desc.URL != "https://minio/notes/presigned" {
		t.Errorf("URL = %q", desc.URL)
	}
	if desc.Location != "s3" || desc.Bucket != "notes" || desc.Size != 3 {
		t.Errorf("unexpected descriptor: %+v", desc)
	}
}

func TestS3Backend_StorePutError(t *testing.T) {
	client := &fakeS3{putErr: errors.New("bucket missing")}
	b := newTestBackend(client, &fakePresigner{})

	if _, err := b.Store(context.Background(), []byte("img"), "a.png", "image/png"); err == nil {
		t.Fatal("expected error from PutObject")
	}
}

func TestS3Backend_GetAndDelete(t *testing.T) {
	client := &fakeS3{getBody: "bytes"}
	b := newTestBackend(client, &fakePresigner{})
	ctx := context.Background()

	data, err := b.Get(ctx, "notes/2026/03/07/a.png")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(data) != "bytes" {
		t.Errorf("Get = %q", data)
	}

	if err := b.Delete(ctx, "notes/2026/03/07/a.png"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if client.deletedKey != "notes/2026/03/07/a.png" {
		t.Errorf("deleted key = %q", client.deletedKey)
	}
}
