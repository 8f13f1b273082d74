package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage_UploadDownload(t *testing.T) {
	// Create temp directories
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	// Create a test file
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "train.csv")
	content := []byte("passenger_count,trip_distance\n2,10.0\n")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	ctx := context.Background()

	objectPath := "files/md5/ab/cdef"
	if err := storage.Upload(ctx, srcPath, objectPath); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	dstPath := filepath.Join(srcDir, "nested", "downloaded.csv")
	if err := storage.Download(ctx, objectPath, dstPath); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	downloaded, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(downloaded) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", downloaded, content)
	}

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(dstPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the downloaded file, got %d entries", len(entries))
	}
}

func TestLocalStorage_DownloadMissing(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	dst := filepath.Join(t.TempDir(), "out.csv")
	if err := storage.Download(ctx, "files/md5/00/missing", dst); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("expected no destination file")
	}

	exists, err := storage.Exists(ctx, "files/md5/00/missing")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected object not to exist")
	}
}

func TestLocalStorage_UploadMissingSource(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	err = storage.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "x")
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("expected ErrUploadFailed, got %v", err)
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Download(ctx, "x", filepath.Join(t.TempDir(), "x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		url     string
		wantErr bool
		local   bool
	}{
		{"plain directory", filepath.Join(dir, "plain"), false, true},
		{"file url", "file://" + filepath.Join(dir, "file"), false, true},
		{"s3 without bucket", "s3:///prefix", true, false},
		{"unknown scheme", "gs://bucket/prefix", true, false},
		{"empty", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Open(ctx, tt.url, S3Config{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := got.(*LocalStorage); ok != tt.local {
				t.Errorf("expected local storage: %v, got %T", tt.local, got)
			}
		})
	}
}

func TestOpen_S3(t *testing.T) {
	got, err := Open(context.Background(), "s3://ct-data/taxi/", S3Config{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s3Store, ok := got.(*S3Storage)
	if !ok {
		t.Fatalf("expected *S3Storage, got %T", got)
	}
	if s3Store.bucket != "ct-data" {
		t.Errorf("expected bucket ct-data, got %s", s3Store.bucket)
	}
	if key := s3Store.key("files/md5/ab/cd"); key != "taxi/files/md5/ab/cd" {
		t.Errorf("unexpected key %s", key)
	}
}
