package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/imagegen"

	"github.com/go-chi/chi/v5"
)

const imageFieldPrefix = "image_"

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParameter, "Invalid multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	raw := imagegen.RawForm{
		Mode:              r.FormValue("mode"),
		Prompt:            r.FormValue("prompt"),
		N:                 r.FormValue("n"),
		Size:              r.FormValue("size"),
		Quality:           r.FormValue("quality"),
		OutputFormat:      r.FormValue("output_format"),
		OutputCompression: r.FormValue("output_compression"),
		Background:        r.FormValue("background"),
		Moderation:        r.FormValue("moderation"),
		PasswordHash:      r.FormValue("passwordHash"),
		ColoringPageType:  r.FormValue("coloringPageType"),
		NameOrMessage:     r.FormValue("nameOrMessage"),
		IndividualNames:   r.FormValue("individualNames"),
		SceneDescription:  r.FormValue("sceneDescription"),
		Orientation:       r.FormValue("orientation"),
	}

	images, mask, err := readUploads(r.MultipartForm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw.Images = images
	raw.Mask = mask

	resp, err := s.deps.Images.Handle(r.Context(), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUploads collects every image_* part in index order plus the optional mask.
func readUploads(form *multipart.Form) ([]imagegen.Upload, *imagegen.Upload, error) {
	var keys []string
	for key, files := range form.File {
		if strings.HasPrefix(key, imageFieldPrefix) && len(files) > 0 {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		ai, aerr := strconv.Atoi(strings.TrimPrefix(a, imageFieldPrefix))
		bi, berr := strconv.Atoi(strings.TrimPrefix(b, imageFieldPrefix))
		if aerr == nil && berr == nil {
			return ai - bi
		}
		return strings.Compare(a, b)
	})

	var images []imagegen.Upload
	for _, key := range keys {
		up, err := readUpload(form.File[key][0])
		if err != nil {
			return nil, nil, err
		}
		images = append(images, up)
	}

	var mask *imagegen.Upload
	if files := form.File["mask"]; len(files) > 0 {
		up, err := readUpload(files[0])
		if err != nil {
			return nil, nil, err
		}
		mask = &up
	}
	return images, mask, nil
}

func readUpload(fh *multipart.FileHeader) (imagegen.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return imagegen.Upload{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imagegen.Upload{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return imagegen.Upload{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

func (s *Server) handleImageFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Files == nil {
		s.writeError(w, r, apperr.NotFound(apperr.CodeInvalidParameter, "Image not found"))
		return
	}
	path, err := s.deps.Files.Locate(chi.URLParam(r, "filename"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, r, apperr.NotFound(apperr.CodeInvalidParameter, "Image not found"))
			return
		}
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}
