package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/services"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/netx"
	"github.com/go-chi/chi/v5"
)

// maxFormMemory is the multipart budget kept in memory; larger parts spill
// to temporary files.
const maxFormMemory = 32 << 20

// forwardHeaders are copied from the browser request onto asset fetches.
var forwardHeaders = []string{"Accept", "Accept-Language", "Sec-Fetch-Mode", netx.ModeHeaderName}

type hashtagsResponse struct {
	Hashtags []string `json:"hashtags"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// statusFor maps submission errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, common.ErrService):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub := services.Submission{
		Language: r.FormValue("language"),
		Topic:    r.FormValue("topic"),
	}

	file, hdr, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// validation reports the missing file
	case err != nil:
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	default:
		defer file.Close()
		sub.FileName = hdr.Filename
		sub.Size = hdr.Size
		if hdr.Size <= services.MaxImageBytes {
			content, err := io.ReadAll(io.LimitReader(file, services.MaxImageBytes+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
				return
			}
			sub.Content = content
			sub.Size = int64(len(content))
		}
	}

	res, err := s.opts.Submission.Submit(ctx, sub)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if res.State == services.StateQueuedOffline {
		w.Header().Set(common.QueuedHeaderName, "1")
		writeJSON(w, http.StatusOK, errorResponse{Error: res.Message})
		return
	}
	writeJSON(w, http.StatusOK, hashtagsResponse{Hashtags: res.Hashtags})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.opts.History.List(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "list history", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(chi.URLParam(r, "timestamp"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: bad timestamp", common.ErrValidation))
		return
	}

	entries, err := s.opts.History.Remove(r.Context(), ts)
	if err != nil {
		s.log.Error(r.Context(), "remove history entry", "timestamp", ts, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Online: true, State: "unknown"}
	if s.opts.Status != nil {
		st = s.opts.Status(r.Context())
	}
	writeJSON(w, http.StatusOK, st)
}

// handleAsset serves a static asset from the upstream origin through the
// worker, which answers from cache when it can.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	target := s.opts.Upstream.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	out, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, h := range forwardHeaders {
		if v := r.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}

	resp, err := s.opts.Assets.RoundTrip(out)
	if err != nil {
		s.log.Warn(r.Context(), "asset unavailable", "path", r.URL.Path, "error", err)
		code := http.StatusBadGateway
		if errors.Is(err, common.ErrNoResponse) {
			code = http.StatusGatewayTimeout
		}
		http.Error(w, http.StatusText(code), code)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
