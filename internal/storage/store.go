package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the storage facade the indexing orchestrator talks to. When a
// remote backend is configured, sources prefer it (falling back to local on
// upload failure) and parse results are written locally first as an
// unconditional backup.
type Store struct {
	remote    Backend // nil when object storage is disabled
	pdfDir    string
	parsedDir string
	logger    *zap.Logger
}

func NewStore(remote Backend, pdfDir, parsedDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		remote:    remote,
		pdfDir:    pdfDir,
		parsedDir: parsedDir,
		logger:    logger,
	}
}

// SaveTemp streams r to a temporary PDF file and returns its path. The file
// is removed on write failure.
func (s *Store) SaveTemp(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "bookbrain-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// PromoteSource copies a local file into permanent storage and returns the
// final locator. A remote upload failure falls back to local storage rather
// than aborting the pipeline.
func (s *Store) PromoteSource(ctx context.Context, localPath string) (string, error) {
	if s.remote != nil {
		locator, err := s.uploadSource(ctx, localPath)
		if err == nil {
			s.logger.Info("uploaded source to object storage", zap.String("locator", locator))
			return locator, nil
		}
		s.logger.Warn("object storage upload failed, falling back to local",
			zap.String("path", localPath), zap.Error(err))
	}
	return s.copySourceToLocal(localPath)
}

func (s *Store) uploadSource(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	key := "pdfs/" + uuid.NewString() + ".pdf"
	return s.remote.Put(ctx, key, f, info.Size(), "application/pdf")
}

func (s *Store) copySourceToLocal(localPath string) (string, error) {
	if err := os.MkdirAll(s.pdfDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(s.pdfDir, uuid.NewString()+".pdf")

	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	s.logger.Info("copied source to local storage", zap.String("path", dest))
	return dest, nil
}

// SaveParseResult persists the raw parse response under id. Best-effort: it
// always writes the local backup first (parse credits must survive any later
// failure), then tries the remote backend, preferring the remote locator.
// Returns "" only when every write failed.
func (s *Store) SaveParseResult(ctx context.Context, id string, raw []byte) string {
	localPath := ""
	if err := os.MkdirAll(s.parsedDir, 0o755); err != nil {
		s.logger.Error("failed to create parsed results dir", zap.Error(err))
	} else {
		localPath = filepath.Join(s.parsedDir, id+".json")
		if err := os.WriteFile(localPath, raw, 0o644); err != nil {
			s.logger.Error("failed to save parse result locally", zap.Error(err))
			localPath = ""
		}
	}

	if s.remote != nil {
		key := "parsed/" + id + ".json"
		locator, err := s.remote.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), "application/json")
		if err == nil {
			return locator
		}
		s.logger.Error("failed to save parse result to object storage",
			zap.String("id", id), zap.Error(err))
	}
	return localPath
}

// Delete removes a stored source file, dispatching on the locator scheme.
// Absence is success.
func (s *Store) Delete(ctx context.Context, locator string) bool {
	if locator == "" {
		return false
	}
	if IsS3Locator(locator) {
		if s.remote == nil {
			s.logger.Error("cannot delete object storage locator, storage disabled",
				zap.String("locator", locator))
			return false
		}
		ok, err := s.remote.Delete(ctx, locator)
		if err != nil {
			s.logger.Error("failed to delete from object storage",
				zap.String("locator", locator), zap.Error(err))
			return false
		}
		return ok
	}

	if err := os.Remove(locator); err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to delete local file",
			zap.String("locator", locator), zap.Error(err))
		return false
	}
	return true
}

// DeleteParseResultRemote removes only the remote copy of a parse result,
// keeping the local backup. Compensation uses this so a rolled-back indexing
// run never loses the paid parse output.
func (s *Store) DeleteParseResultRemote(ctx context.Context, id string) bool {
	if s.remote == nil {
		return true
	}
	ok, err := s.remote.Delete(ctx, s.remoteParsedLocator(id))
	if err != nil {
		s.logger.Error("failed to delete parse result from object storage",
			zap.String("id", id), zap.Error(err))
		return false
	}
	return ok
}

// DeleteParseResult removes both the local backup and the remote copy. Used
// for explicit book deletion, not for rollback.
func (s *Store) DeleteParseResult(ctx context.Context, id string) bool {
	ok := true
	localPath := filepath.Join(s.parsedDir, id+".json")
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to delete local parse result",
			zap.String("path", localPath), zap.Error(err))
		ok = false
	}
	if !s.DeleteParseResultRemote(ctx, id) {
		ok = false
	}
	return ok
}

// DownloadToTemp materializes a stored file into a temp path. The returned
// cleanup func must be deferred, it removes the temp file on every exit path.
func (s *Store) DownloadToTemp(ctx context.Context, locator string) (string, func(), error) {
	var src io.ReadCloser
	var err error
	if IsS3Locator(locator) {
		if s.remote == nil {
			return "", nil, os.ErrNotExist
		}
		src, err = s.remote.Get(ctx, locator)
	} else {
		src, err = os.Open(locator)
	}
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	suffix := filepath.Ext(locator)
	if suffix == "" {
		suffix = ".tmp"
	}
	tmp, err := os.CreateTemp("", "bookbrain-*"+suffix)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to cleanup temp file", zap.String("path", path), zap.Error(err))
		}
	}
	return path, cleanup, nil
}

func (s *Store) remoteParsedLocator(id string) string {
	// The remote backend addresses objects by full locator; rebuild it from
	// the conventional key.
	if b, ok := s.remote.(*S3Backend); ok {
		return s3Scheme + b.bucket + "/parsed/" + id + ".json"
	}
	return "parsed/" + id + ".json"
}
