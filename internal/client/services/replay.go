package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/htgen/internal/client/client"
	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/logging"
)

// ReplayRecorder adds hashtags produced by a replayed offline upload to the
// history, so a request queued while offline is not lost once it succeeds.
type ReplayRecorder struct {
	history HistoryService
	log     logging.Logger
}

func NewReplayRecorder(history HistoryService, log logging.Logger) *ReplayRecorder {
	return &ReplayRecorder{history: history, log: log}
}

// Record has the shape of the queue's replay callback.
func (r *ReplayRecorder) Record(ctx context.Context, req *models.PendingRequest, status int, body []byte) {
	u, err := url.Parse(req.URL)
	if err != nil || !strings.Contains(u.Path, common.APIPath) || status != http.StatusOK {
		return
	}

	var out struct {
		Hashtags []string `json:"hashtags"`
		Error    string   `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Error != "" {
		r.log.Warn(ctx, "replayed upload was not answered with hashtags", "id", req.ID, "error", out.Error)
		return
	}

	up, err := parseUpload(req)
	if err != nil {
		r.log.Warn(ctx, "replayed upload could not be parsed", "id", req.ID, "error", err)
		return
	}

	image := models.EncodeImage(up.fileName, up.content)
	sig := models.NewSignature(image, up.language, up.topic)
	if hit, _ := r.history.FindBySignature(ctx, sig); hit != nil {
		return
	}

	entry, err := r.history.Append(ctx, models.HistoryEntry{
		Image:    image,
		Hashtags: client.SanitizeHashtags(out.Hashtags),
		Language: up.language,
		Topic:    models.OptionalTopic(up.topic),
	})
	if err != nil {
		r.log.Warn(ctx, "history write for replayed upload failed", "id", req.ID, "error", err)
		return
	}
	if entry != nil {
		r.log.Info(ctx, "replayed upload recorded in history", "id", req.ID, "timestamp", entry.Timestamp)
	}
}

type upload struct {
	fileName string
	content  []byte
	language string
	topic    string
}

func parseUpload(req *models.PendingRequest) (*upload, error) {
	var contentType string
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			contentType = h.Value
		}
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("content type: %w", err)
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, fmt.Errorf("unexpected content type %q", mediaType)
	}

	mr := multipart.NewReader(bytes.NewReader(req.Body), params["boundary"])
	up := &upload{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(part, MaxImageBytes+1))
		if err != nil {
			return nil, err
		}
		switch part.FormName() {
		case "file":
			up.fileName = part.FileName()
			up.content = data
		case "language":
			up.language = string(data)
		case "topic":
			up.topic = strings.TrimSpace(string(data))
		}
	}
	if up.fileName == "" {
		return nil, errors.New("no file part")
	}
	return up, nil
}
