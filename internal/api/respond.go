package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

// submissionBody adds the download link to a record once it is done.
type submissionBody struct {
	*model.Submission
	OutputURL *string `json:"output_url,omitempty"`
}

func present(rec *model.Submission) submissionBody {
	body := submissionBody{Submission: rec}
	if rec.Status == model.StatusDone && rec.OutputLocation != nil {
		u := "/api/submissions/" + rec.ID + "/download"
		body.OutputURL = &u
	}
	return body
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.FromContext(r.Context()).Warn("encode response", "error", err)
	}
}

func respondDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	respondJSON(w, r, status, errorBody{Detail: detail})
}

// respondError maps errors from the submission layer onto status codes.
// validationStatus is the code used for rejected input on this route.
func respondError(w http.ResponseWriter, r *http.Request, err error, validationStatus int) {
	var verr *submission.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, r, validationStatus, errorBody{Detail: verr.Message, Fields: verr.Fields})
	case errors.Is(err, model.ErrNotFound):
		respondDetail(w, r, http.StatusNotFound, "Not found")
	case errors.Is(err, submission.ErrNotReady):
		respondDetail(w, r, http.StatusConflict, "File not ready")
	case errors.Is(err, submission.ErrOutputMissing):
		respondDetail(w, r, http.StatusNotFound, "Output file missing")
	default:
		logger.FromContext(r.Context()).Error("request failed", "error", err)
		respondDetail(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
