package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
)

type transcriptResponse struct {
	transcript.Transcript
	DisplayText string                       `json:"display_text"`
	Downloads   map[transcript.Format]string `json:"downloads"`
}

func newTranscriptResponse(t transcript.Transcript) transcriptResponse {
	downloads := make(map[transcript.Format]string)
	for _, f := range availableFormats(t) {
		downloads[f] = downloadURL(t.ID, f)
	}
	return transcriptResponse{Transcript: t, DisplayText: transcript.DisplayText(t), Downloads: downloads}
}

func (s *Server) page(form formValues) pageData {
	return pageData{
		Version:     s.version.Version,
		Engine:      s.opts.Service.EngineName(),
		Accept:      audio.AcceptAttribute(),
		MaxUploadMB: s.opts.MaxUploadBytes >> 20,
		Models:      s.opts.Service.Models(),
		Languages:   whisper.Languages(),
		Form:        form,
	}
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.page(s.defaultForm()))
}

func (s *Server) submit(c *gin.Context) {
	job, err := s.readJob(c)
	if err != nil {
		form := s.defaultForm()
		if statusFor(err) != http.StatusRequestEntityTooLarge {
			form = s.formFromRequest(c)
		}
		s.renderError(c, form, err)
		return
	}
	form := s.formFromRequest(c)

	t, err := s.transcribe(c, job)
	if err != nil {
		s.renderError(c, form, err)
		return
	}

	data := s.page(form)
	data.Result = newResultView(t)
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) renderError(c *gin.Context, form formValues, err error) {
	status := s.recordError(c, err)
	data := s.page(form)
	data.Error = userMessage(err)
	c.HTML(status, "index.html", data)
}

func (s *Server) download(c *gin.Context) {
	t, err := s.opts.Store.Get(c.Param("id"))
	if err != nil {
		c.String(s.recordError(c, err), "%s\n", userMessage(err))
		return
	}

	format, err := transcript.ParseFormat(c.Query("format"))
	if err != nil {
		err = fmt.Errorf("%w: %v", errBadRequest, err)
		c.String(s.recordError(c, err), "%s\n", userMessage(err))
		return
	}

	body, err := transcript.Render(t, format)
	if err != nil {
		err = fmt.Errorf("%w: %v", errBadRequest, err)
		c.String(s.recordError(c, err), "%s\n", userMessage(err))
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": transcript.DownloadName(t, format),
	}))
	c.Data(http.StatusOK, format.ContentType(), []byte(body))
}

func (s *Server) createTranscription(c *gin.Context) {
	job, err := s.readJob(c)
	if err != nil {
		s.apiError(c, err)
		return
	}

	t, err := s.transcribe(c, job)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTranscriptResponse(t))
}

func (s *Server) getTranscription(c *gin.Context) {
	t, err := s.opts.Store.Get(c.Param("id"))
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTranscriptResponse(t))
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine":  s.opts.Service.EngineName(),
		"default": s.opts.Service.DefaultModel(),
		"models":  s.opts.Service.Models(),
	})
}

func (s *Server) listLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":   s.opts.Service.DefaultLanguage(),
		"languages": whisper.Languages(),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"engine":  s.opts.Service.EngineName(),
		"version": s.version,
	})
}

func (s *Server) apiError(c *gin.Context, err error) {
	status := s.recordError(c, err)
	c.JSON(status, gin.H{
		"error":      userMessage(err),
		"request_id": c.GetString(requestIDKey),
	})
}

// recordError attaches err to the request log and returns its status code.
func (s *Server) recordError(c *gin.Context, err error) int {
	_ = c.Error(err)
	return statusFor(err)
}

// readJob pulls the audio part and the options out of a multipart request.
// The audio stream stays open until the request body is discarded.
func (s *Server) readJob(c *gin.Context) (transcribe.Job, error) {
	if limit := s.opts.MaxUploadBytes; limit > 0 && c.Request.ContentLength > limit {
		return transcribe.Job{}, &http.MaxBytesError{Limit: limit}
	}

	header, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrMissingFile):
			return transcribe.Job{}, errMissingAudio
		case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
			return transcribe.Job{}, err
		default:
			return transcribe.Job{}, fmt.Errorf("%w: read upload: %v", errBadRequest, err)
		}
	}

	f, err := header.Open()
	if err != nil {
		return transcribe.Job{}, fmt.Errorf("open upload: %w", err)
	}

	form := s.formFromRequest(c)
	return transcribe.Job{
		FileName:   header.Filename,
		Audio:      f,
		Model:      form.Model,
		Language:   form.Language,
		Task:       form.Task,
		Timestamps: form.Timestamps,
	}, nil
}

// transcribe runs job and keeps the result for the download links.
func (s *Server) transcribe(c *gin.Context, job transcribe.Job) (transcript.Transcript, error) {
	if closer, ok := job.Audio.(io.Closer); ok {
		defer closer.Close()
	}

	t, err := s.opts.Service.Transcribe(c.Request.Context(), job)
	if err != nil {
		return transcript.Transcript{}, err
	}
	t = s.opts.Store.Save(t)
	s.logger.Info("transcript ready",
		zap.String("id", t.ID),
		zap.String("file", t.FileName),
		zap.Int("chars", len(t.Text)),
		zap.String(requestIDKey, c.GetString(requestIDKey)),
	)
	return t, nil
}

func (s *Server) defaultForm() formValues {
	return formValues{
		Model:    s.opts.Service.DefaultModel(),
		Language: s.opts.Service.DefaultLanguage(),
		Task:     string(whisper.TaskTranscribe),
	}
}

// formFromRequest echoes the submitted choices back into the form, falling
// back to the defaults for anything missing.
func (s *Server) formFromRequest(c *gin.Context) formValues {
	form := s.defaultForm()
	if v := strings.TrimSpace(c.PostForm("model")); v != "" {
		form.Model = v
	}
	if v := strings.TrimSpace(c.PostForm("language")); v != "" {
		form.Language = v
	}
	if v := strings.TrimSpace(c.PostForm("task")); v != "" {
		form.Task = v
	}
	form.Timestamps = parseCheckbox(c.PostForm("timestamps"))
	return form
}

func parseCheckbox(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "on" || value == "yes" {
		return true
	}
	b, err := strconv.ParseBool(value)
	return err == nil && b
}
