package main

import (
	"errors"
	"net/http"

	"escrowflow/document"
	"escrowflow/pkg/validate"

	"github.com/go-chi/chi/v5"
)

const defaultMaxUploadBytes = 10 << 20

func (s *Server) handleDocumentUpload(parent document.Parent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.documentService == nil {
			writeError(w, http.StatusServiceUnavailable, "Document storage is not configured")
			return
		}

		limit := s.maxUploadBytes
		if limit <= 0 {
			limit = defaultMaxUploadBytes
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
				return
			}
			writeServiceError(w, r, validate.Errors{"file": "The submitted data was not a file. Check the encoding type on the form."})
			return
		}
		defer r.MultipartForm.RemoveAll()

		up := document.Upload{Title: r.FormValue("title")}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			up.Body = file
			up.FileName = header.Filename
			up.Size = header.Size
			up.ContentType = header.Header.Get("Content-Type")
		}

		d, err := s.documentService.Attach(r.Context(), callerFrom(r), parent, chi.URLParam(r, "id"), up)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newDocumentResponse(d))
	}
}

func (s *Server) handleDocuments(parent document.Parent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.documentService == nil {
			writeError(w, http.StatusServiceUnavailable, "Document storage is not configured")
			return
		}

		docs, err := s.documentService.List(r.Context(), callerFrom(r), parent, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(docs, newDocumentResponse))
	}
}
