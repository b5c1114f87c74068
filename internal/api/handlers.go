package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/signing"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"ok":   true,
		"time": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, err := s.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, errFileTooLarge) {
			respondDetail(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize))
			return
		}
		respondDetail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	defer form.cleanup()

	rec, err := s.manager.Create(r.Context(), submission.CreateInput{
		Filename:     form.filename,
		ContentType:  form.contentType,
		Body:         form.file,
		Size:         form.size,
		Replacements: form.replacements,
	})
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	respondJSON(w, r, http.StatusOK, present(rec))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", submission.DefaultListLimit)
	if err != nil {
		respondDetail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondDetail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.manager.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	out := make([]submissionBody, 0, len(recs))
	for _, rec := range recs {
		out = append(out, present(rec))
	}
	respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	respondJSON(w, r, http.StatusOK, present(rec))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.streamOutput(w, r, chi.URLParam(r, "id"))
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := s.manager.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if rec.Status != model.StatusDone || rec.OutputLocation == nil {
		respondError(w, r, submission.ErrNotReady, http.StatusBadRequest)
		return
	}
	if s.presigner != nil {
		u, err := s.presigner.PresignProcessedURL(ctx, *rec.OutputLocation, s.cfg.SignedURLTTL)
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		respondJSON(w, r, http.StatusOK, map[string]any{
			"url":        u,
			"expires_at": s.now().Add(s.cfg.SignedURLTTL).UTC().Format(time.RFC3339),
		})
		return
	}
	q, expires := s.signer.Link(rec.ID, s.cfg.SignedURLTTL)
	respondJSON(w, r, http.StatusOK, map[string]any{
		"url":        "/api/downloads/" + rec.ID + "?" + q.Encode(),
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	if err := s.signer.Verify(id, q.Get("expires"), q.Get("signature")); err != nil {
		if errors.Is(err, signing.ErrExpired) {
			respondDetail(w, r, http.StatusGone, "Link expired")
			return
		}
		respondDetail(w, r, http.StatusForbidden, "Invalid signature")
		return
	}
	s.streamOutput(w, r, id)
}

func (s *Server) streamOutput(w http.ResponseWriter, r *http.Request, id string) {
	rc, rec, err := s.manager.OpenOutput(r.Context(), id)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.OutputName(rec.ID)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.FromContext(r.Context()).Warn("stream output", "submission_id", id, "error", err)
	}
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var in submission.RateInput
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(&in); err != nil {
		respondDetail(w, r, http.StatusUnprocessableEntity, "invalid rating body: "+err.Error())
		return
	}
	rec, err := s.manager.Rate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	respondJSON(w, r, http.StatusOK, present(rec))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}
