package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	putErr  error
	lastPut *s3.PutObjectInput
	body    []byte
	calls   int
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.lastPut = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_KeyLayoutAndBody(t *testing.T) {
	fake := &fakeS3{}
	a, err := newS3ArchiverWithClient(S3Config{Bucket: "audit-bucket", Prefix: "provisioning"}, fake)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := &Record{
		JobID:         "job-7",
		Attempt:       1,
		EmployeeEmail: "jane.doe@example.com",
		Overall:       "success",
		Timestamp:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	if err := a.Archive(t.Context(), rec); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if got := *fake.lastPut.Bucket; got != "audit-bucket" {
		t.Errorf("unexpected bucket %q", got)
	}
	wantKey := "provisioning/day=2026-03-14/job-7.attempt-1.json"
	if got := *fake.lastPut.Key; got != wantKey {
		t.Errorf("expected key %q, got %q", wantKey, got)
	}
	if got := *fake.lastPut.ContentType; got != "application/json" {
		t.Errorf("unexpected content type %q", got)
	}

	var stored Record
	if err := json.Unmarshal(fake.body, &stored); err != nil {
		t.Fatalf("stored body is not valid JSON: %v", err)
	}
	if stored.JobID != "job-7" || stored.Overall != "success" {
		t.Errorf("stored record mismatch: %+v", stored)
	}
}

func TestS3Archive_NoPrefix(t *testing.T) {
	fake := &fakeS3{}
	a, err := newS3ArchiverWithClient(S3Config{Bucket: "audit-bucket"}, fake)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec := &Record{JobID: "job-8", Attempt: 1, Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	if err := a.Archive(t.Context(), rec); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if got := *fake.lastPut.Key; strings.HasPrefix(got, "/") {
		t.Errorf("key must not start with a slash: %q", got)
	}
}

func TestS3Archive_PutFailure(t *testing.T) {
	fake := &fakeS3{putErr: errors.New("access denied")}
	a, err := newS3ArchiverWithClient(S3Config{Bucket: "audit-bucket"}, fake)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	err = a.Archive(t.Context(), &Record{JobID: "job-9", Timestamp: time.Now()})
	if err == nil {
		t.Fatal("expected error when PutObject fails")
	}
}

func TestS3Config_RequiresBucket(t *testing.T) {
	if _, err := newS3ArchiverWithClient(S3Config{}, &fakeS3{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestS3Archiver_RequiresClient(t *testing.T) {
	if _, err := newS3ArchiverWithClient(S3Config{Bucket: "b"}, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
