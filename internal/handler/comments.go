package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/UkralStul/comments-service/internal/comments"
	"github.com/UkralStul/comments-service/internal/domain"
	"github.com/UkralStul/comments-service/internal/files"
)

// maxMemory - сколько multipart-данных держать в памяти, остальное уходит во временные файлы.
const maxMemory = 8 << 20

// maxFilesPerComment ограничивает тело запроса на создание комментария.
const maxFilesPerComment = 10

func (a *api) listComments(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, &domain.NotFoundError{Entity: "page", ID: raw})
			return
		}
		page = n
	}

	result, err := a.comments.List(r.Context(), r.URL.Query().Get("ordering"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) getComment(w http.ResponseWriter, r *http.Request) {
	node, err := a.comments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (a *api) createComment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFilesPerComment*a.maxUpload+maxMemory)

	var in comments.CreateInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			writeError(w, r, formError(err))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		in = inputFromForm(r.MultipartForm)
		uploads, closeAll, err := formUploads(r.MultipartForm, "files", "file")
		defer closeAll()
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Files = uploads
	} else if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, formError(err))
		return
	}

	node, err := a.comments.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (a *api) deleteComment(w http.ResponseWriter, r *http.Request) {
	if err := a.comments.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) issueChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := a.comments.IssueChallenge(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *api) uploadOrphan(w http.ResponseWriter, r *http.Request) {
	up, cleanup, err := a.singleUpload(w, r)
	defer cleanup()
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment, err := a.comments.Upload(r.Context(), up, strings.TrimSpace(r.FormValue("upload_key")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

func (a *api) attachToComment(w http.ResponseWriter, r *http.Request) {
	up, cleanup, err := a.singleUpload(w, r)
	defer cleanup()
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment, err := a.comments.AttachToComment(r.Context(), chi.URLParam(r, "id"), up)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

// singleUpload разбирает multipart-запрос с одной частью "file".
func (a *api) singleUpload(w http.ResponseWriter, r *http.Request) (comments.Upload, func(), error) {
	noop := func() {}
	if !isMultipart(r) {
		return comments.Upload{}, noop, domain.NewValidationError("file", "Expected multipart/form-data with a file part.")
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+maxMemory)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return comments.Upload{}, noop, formError(err)
	}

	uploads, closeAll, err := formUploads(r.MultipartForm, "file")
	cleanup := func() {
		closeAll()
		_ = r.MultipartForm.RemoveAll()
	}
	if err != nil {
		return comments.Upload{}, cleanup, err
	}
	if len(uploads) == 0 {
		return comments.Upload{}, cleanup, domain.NewValidationError("file", "No file was submitted.")
	}
	return uploads[0], cleanup, nil
}

func (a *api) searchComments(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, domain.NewValidationError("q", "This field is required."))
		return
	}
	writeJSON(w, http.StatusOK, a.search.Search(r.Context(), q))
}

func (a *api) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	rc, err := a.files.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			writeError(w, r, &domain.NotFoundError{Entity: "file", ID: key})
			return
		}
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = io.Copy(w, rc)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// formError отличает слишком большое тело от просто некорректного.
func formError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return domain.NewValidationError("non_field_errors", fmt.Sprintf("Malformed request body: %v", err))
}

func inputFromForm(form *multipart.Form) comments.CreateInput {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	in := comments.CreateInput{
		UserName:     value("user_name"),
		Email:        value("email"),
		Homepage:     value("homepage"),
		Text:         value("text"),
		ParentID:     value("parent"),
		CaptchaKey:   value("captcha_key"),
		CaptchaValue: value("captcha_value"),
		UploadKey:    value("upload_key"),
	}
	// attachment_ids может прийти несколькими полями или одной строкой через запятую
	for _, raw := range form.Value["attachment_ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				in.AttachmentIDs = append(in.AttachmentIDs, id)
			}
		}
	}
	return in
}

// formUploads открывает файлы из указанных полей формы. closeAll нужно вызвать в любом случае.
func formUploads(form *multipart.Form, fields ...string) ([]comments.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	var uploads []comments.Upload
	for _, field := range fields {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				return nil, closeAll, fmt.Errorf("failed to open uploaded file %q: %w", fh.Filename, err)
			}
			opened = append(opened, f)
			uploads = append(uploads, comments.Upload{
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Body:        f,
			})
		}
	}
	return uploads, closeAll, nil
}
