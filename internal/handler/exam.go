package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/export"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/model"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).Snapshot())
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.config.MaxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "ErrFileTooLarge")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "ErrFileTooLarge")
			return
		}
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrFileRequired")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("failed to read upload", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}

	sess := sessionFrom(r)
	h.svc.StartUpload(sess, model.Document{
		Filename:    filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if _, err := h.svc.StartRegenerate(sess); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

type answerRequest struct {
	QuestionID *int `json:"questionId"`
	Option     *int `json:"option"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil || req.QuestionID == nil || req.Option == nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	sess := sessionFrom(r)
	if _, err := sess.Select(*req.QuestionID, *req.Option); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type navigateRequest struct {
	Index *int `json:"index"`
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Index == nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	sess := sessionFrom(r)
	if err := sess.Navigate(*req.Index); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	res, err := sess.Submit()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	slog.Info("exam submitted", "session_id", sess.ID(), "correct", res.CorrectCount, "total", res.TotalQuestions)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleExport renders the loaded question set. Answers are never included.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	questions := sess.Questions()
	if len(questions) == 0 {
		h.writeErr(w, r, exam.ErrNoQuestions)
		return
	}

	source := sess.Source()
	labels := export.LocalizedLabels(r.Context(), source)

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		ext         string
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "docx":
		err = export.WriteDocx(&buf, questions, labels)
		contentType, ext = docxContentType, ".docx"
	case "json":
		ex := export.Build(questions, labels.Title, i18n.Language(r.Context()), source, time.Now())
		err = export.WriteJSON(&buf, ex)
		contentType, ext = "application/json; charset=utf-8", ".json"
	default:
		writeError(w, r, http.StatusBadRequest, "ErrUnsupportedExport")
		return
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(source)+ext))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export", "session_id", sess.ID(), "error", err)
	}
}

// exportName derives a download name from the uploaded filename.
func exportName(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	base = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." || base == "/" {
		return "exam"
	}
	return base + "_exam"
}
