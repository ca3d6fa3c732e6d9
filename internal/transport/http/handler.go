package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cwrk-planet/chat-sync/internal/domain"
	"github.com/cwrk-planet/chat-sync/internal/service"
	httpmw "github.com/cwrk-planet/chat-sync/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxUploadSize   = 50 << 20
	maxSnapshotSize = 8 << 20
	uploadsPrefix   = "/uploads/"
)

type ChatSvc interface {
	HistoryPage(ctx context.Context, channelID, cursor string, limit int) ([]domain.Message, string, error)
	PersistUpload(ctx context.Context, userID, channelID string, att domain.Attachment, expireMinutes int) (*domain.Message, error)
	DeleteModerated(ctx context.Context, messageID int64) (bool, error)
	UserStats(ctx context.Context, userID string) (total, byUser int, err error)
	UserMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error)
}

type BoardSvc interface {
	LoadBoard(ctx context.Context, channelID string) (json.RawMessage, error)
	SaveBoard(ctx context.Context, channelID string, snapshot json.RawMessage) error
}

type Handler struct {
	chat      ChatSvc
	board     BoardSvc
	uploadDir string
}

// NewHandler serves the REST surface. Multipart uploads are written under
// uploadDir/uploads and referenced as /uploads/<name>.
func NewHandler(chat ChatSvc, board BoardSvc, uploadDir string) *Handler {
	return &Handler{chat: chat, board: board, uploadDir: uploadDir}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := toHTTP(err)
	if status >= http.StatusInternalServerError {
		slog.Error("handler."+op, slog.Any("err", err), "req_path", r.URL.Path)
		writeJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func toHTTP(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, service.ErrInvalidCursor),
		errors.Is(err, domain.ErrNotWhiteboard):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMessageNotFound), errors.Is(err, domain.ErrChannelNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// GET /api/channels/{id}/messages?limit=&cursor=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	items, next, err := h.chat.HistoryPage(r.Context(), channelID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "ListMessages", err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesPageResponse{Items: items, NextCursor: next})
}

// GET /api/whiteboard/{channelId}
func (h *Handler) GetWhiteboard(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	snap, err := h.board.LoadBoard(r.Context(), channelID)
	if err != nil {
		writeError(w, r, "GetWhiteboard", err)
		return
	}
	if snap == nil {
		snap = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, WhiteboardResponse{ChannelID: channelID, CanvasSnapshot: snap})
}

// POST /api/whiteboard/{channelId}
func (h *Handler) SaveWhiteboard(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	var req SaveWhiteboardRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSnapshotSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if err := h.board.SaveBoard(r.Context(), channelID, req.CanvasSnapshot); err != nil {
		writeError(w, r, "SaveWhiteboard", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// POST /api/channels/{id}/attachments
//
// Accepts either a multipart form with a "file" field, or JSON describing a
// file stored elsewhere. The message is persisted but not broadcast; the
// client announces it with fileUploaded.
func (h *Handler) CreateAttachment(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	var (
		req    AttachmentRequest
		stored string
		err    error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, stored, err = h.storeUpload(w, r)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			err = fmt.Errorf("%w: invalid json", domain.ErrMalformedPayload)
		}
	}
	if err != nil {
		writeError(w, r, "CreateAttachment", err)
		return
	}

	att := domain.Attachment{FilePath: req.FilePath, FileName: req.FileName, FileType: req.FileType, FileSize: req.FileSize}
	m, err := h.chat.PersistUpload(r.Context(), userID, channelID, att, req.ExpireMinutes)
	if err != nil {
		removeUpload(stored)
		writeError(w, r, "CreateAttachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// storeUpload writes the "file" field under the uploads dir and returns its
// metadata and the path on disk.
func (h *Handler) storeUpload(w http.ResponseWriter, r *http.Request) (AttachmentRequest, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return AttachmentRequest{}, "", fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return AttachmentRequest{}, "", fmt.Errorf("%w: file field is required", domain.ErrMalformedPayload)
	}
	defer file.Close()

	dir := filepath.Join(h.uploadDir, strings.Trim(uploadsPrefix, "/"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return AttachmentRequest{}, "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(hdr.Filename))
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return AttachmentRequest{}, "", fmt.Errorf("create upload: %w", err)
	}
	size, err := io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeUpload(path)
		return AttachmentRequest{}, "", fmt.Errorf("write upload: %w", err)
	}

	expire, _ := strconv.Atoi(r.FormValue("expireMinutes"))
	return AttachmentRequest{
		FilePath:      uploadsPrefix + name,
		FileName:      filepath.Base(hdr.Filename),
		FileType:      hdr.Header.Get("Content-Type"),
		FileSize:      size,
		ExpireMinutes: expire,
	}, path, nil
}

func removeUpload(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("orphan upload not removed", "path", path, "err", err)
	}
}

// DELETE /admin/messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}
	deleted, err := h.chat.DeleteModerated(r.Context(), id)
	if err != nil {
		writeError(w, r, "DeleteMessage", err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return
	}
	slog.Info("message deleted by moderator", "message_id", id, "admin", httpmw.AdminFromCtx(r.Context()))
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: true})
}

// GET /admin/stats?userId=
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	total, byUser, err := h.chat.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, r, "Stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{TotalMessages: total, UserID: userID, UserMessages: byUser})
}

// GET /admin/users/{id}/messages?limit=
func (h *Handler) UserMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.chat.UserMessages(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, "UserMessages", err)
		return
	}
	writeJSON(w, http.StatusOK, UserMessagesResponse{Items: items})
}
