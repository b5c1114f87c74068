package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/dharsanguruparan/DocScrub/internal/model"
)

var errFileTooLarge = errors.New("file too large")

// maxReplacementsBytes bounds the replacements_json form field.
const maxReplacementsBytes = 1 << 20

type uploadForm struct {
	file         *os.File
	size         int64
	filename     string
	contentType  string
	replacements model.Replacements
}

func (f *uploadForm) cleanup() {
	if f.file != nil {
		f.file.Close()
		os.Remove(f.file.Name())
	}
}

// readUpload streams the multipart body. The file part is spooled to a temp
// file so it can be handed on with a known size; parts may arrive in any
// order.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+maxReplacementsBytes+64<<10)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("expecting multipart form")
	}
	form := &uploadForm{}
	var (
		rawPairs []byte
		havePair bool
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			form.cleanup()
			return nil, fmt.Errorf("read multipart body: %w", err)
		}
		switch part.FormName() {
		case "file":
			if form.file != nil {
				part.Close()
				form.cleanup()
				return nil, errors.New("more than one file part")
			}
			if err := s.spool(form, part); err != nil {
				part.Close()
				form.cleanup()
				return nil, err
			}
		case "replacements_json":
			rawPairs, err = io.ReadAll(io.LimitReader(part, maxReplacementsBytes+1))
			if err != nil {
				part.Close()
				form.cleanup()
				return nil, fmt.Errorf("read replacements_json: %w", err)
			}
			if len(rawPairs) > maxReplacementsBytes {
				part.Close()
				form.cleanup()
				return nil, errors.New("replacements_json is too large")
			}
			havePair = true
		}
		part.Close()
	}

	if form.file == nil {
		return nil, errors.New("missing file part")
	}
	if !havePair {
		form.cleanup()
		return nil, errors.New("missing replacements_json field")
	}
	pairs, err := model.ParseReplacements(rawPairs)
	if err != nil {
		form.cleanup()
		return nil, err
	}
	form.replacements = pairs
	if _, err := form.file.Seek(0, io.SeekStart); err != nil {
		form.cleanup()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return form, nil
}

func (s *Server) spool(form *uploadForm, part *multipart.Part) error {
	tmp, err := os.CreateTemp("", "docscrub-upload-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	form.file = tmp
	form.filename = part.FileName()
	if form.filename == "" {
		form.filename = "upload.pdf"
	}
	form.contentType = part.Header.Get("Content-Type")

	n, err := io.Copy(tmp, io.LimitReader(part, s.cfg.MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if n > s.cfg.MaxFileSize {
		return errFileTooLarge
	}
	form.size = n
	return nil
}
