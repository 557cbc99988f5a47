package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/storage"
)

const maxFormValueBytes = 64 << 10

// uploadedFile is a multipart file spooled to local disk.
type uploadedFile struct {
	Field       string
	Filename    string
	ContentType string
	Path        string
	Size        int64
}

// uploadForm holds the text fields and spooled files of a multipart request.
type uploadForm struct {
	values map[string]string
	files  map[string]*uploadedFile
}

// Value returns the trimmed text field name.
func (f *uploadForm) Value(name string) string {
	return strings.TrimSpace(f.values[name])
}

// File returns the spooled file for field, or nil when it was not sent.
func (f *uploadForm) File(field string) *uploadedFile {
	return f.files[field]
}

// Cleanup removes every spooled file.
func (f *uploadForm) Cleanup(ctx context.Context) {
	for _, file := range f.files {
		if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Warn("remove spooled upload", "path", file.Path, "error", err)
		}
	}
}

// Uploads spools multipart requests to disk.
type Uploads struct {
	Dir      string
	MaxBytes int64
}

// parse streams the multipart body, writing at most one file per allowed field
// under Dir with a random name. The caller must Cleanup the returned form.
func (u Uploads) parse(w http.ResponseWriter, r *http.Request, fileFields ...string) (*uploadForm, error) {
	if u.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, u.MaxBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, BadRequest("Expected multipart form data").Wrap(err)
	}

	allowed := make(map[string]bool, len(fileFields))
	for _, field := range fileFields {
		allowed[field] = true
	}

	form := &uploadForm{values: make(map[string]string), files: make(map[string]*uploadedFile)}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			form.Cleanup(r.Context())
			return nil, u.readError(err)
		}

		field := part.FormName()
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFormValueBytes))
			_ = part.Close()
			if err != nil {
				form.Cleanup(r.Context())
				return nil, u.readError(err)
			}
			form.values[field] = string(value)
			continue
		}

		if !allowed[field] {
			_ = part.Close()
			form.Cleanup(r.Context())
			return nil, BadRequest(fmt.Sprintf("Unexpected file field %q", field))
		}
		if _, dup := form.files[field]; dup {
			_ = part.Close()
			form.Cleanup(r.Context())
			return nil, BadRequest(fmt.Sprintf("Only one %s file is allowed", field))
		}

		file, err := u.spool(field, part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		if err != nil {
			form.Cleanup(r.Context())
			return nil, u.readError(err)
		}
		form.files[field] = file
		middleware.RecordUpload(field, file.Size)
	}
}

func (u Uploads) spool(field, filename, contentType string, src io.Reader) (*uploadedFile, error) {
	dir := u.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	size, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(filepath.Ext(filename)); guessed != "" {
			contentType = guessed
		}
	}

	return &uploadedFile{
		Field:       field,
		Filename:    filename,
		ContentType: contentType,
		Path:        path,
		Size:        size,
	}, nil
}

func (u Uploads) readError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return BadRequest("Malformed multipart body").Wrap(err)
}

// uploadToMedia sends a spooled file to the media host under prefix.
func uploadToMedia(ctx context.Context, media MediaStore, prefix string, file *uploadedFile) (storage.Asset, error) {
	src, err := os.Open(file.Path)
	if err != nil {
		return storage.Asset{}, fmt.Errorf("open spooled upload: %w", err)
	}
	defer src.Close()

	key := prefix + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	asset, err := media.Upload(ctx, key, src, file.ContentType)
	if err != nil {
		return storage.Asset{}, err
	}
	if asset.URL == "" {
		return asset, errors.New("media host returned an empty url")
	}
	return asset, nil
}

// discardMedia removes uploaded objects after a later step failed. Failures are only logged.
func discardMedia(ctx context.Context, media MediaStore, cleaner MediaCleaner, keys ...string) {
	logger := logging.FromContext(ctx)
	if cleaner != nil {
		if err := cleaner.Discard(context.WithoutCancel(ctx), keys...); err != nil {
			logger.Warn("schedule media cleanup", "keys", keys, "error", err)
		}
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := media.Delete(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("discard media asset", "key", key, "error", err)
		}
	}
}
