package gpt

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coloring-pages/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsImageRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"created":1,"data":[{"b64_json":"aGVsbG8="},{"b64_json":"d29ybGQ="}],"usage":{"total_tokens":10,"input_tokens":4,"output_tokens":6}}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, time.Second)
	compression := 80
	res, err := c.Generate(t.Context(), GenerateParams{
		Prompt:            "a cat",
		Count:             2,
		Size:              "1024x1024",
		Quality:           "high",
		OutputFormat:      "jpeg",
		OutputCompression: &compression,
	})
	require.NoError(t, err)

	require.Len(t, res.Images, 2)
	assert.Equal(t, "aGVsbG8=", res.Images[0].B64JSON)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 10, res.Usage.TotalTokens)

	assert.Equal(t, "a cat", got["prompt"])
	assert.Equal(t, DefaultModel, got["model"])
	assert.EqualValues(t, 2, got["n"])
	assert.Equal(t, "jpeg", got["output_format"])
	assert.EqualValues(t, 80, got["output_compression"])
}

func TestGenerateRelaysUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"requests","code":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, time.Second)
	_, err := c.Generate(t.Context(), GenerateParams{Prompt: "x", Count: 1})
	require.Error(t, err)

	assert.Equal(t, http.StatusTooManyRequests, apperr.StatusOf(err))
	assert.Equal(t, apperr.CodeUpstreamAPIError, apperr.CodeOf(err))
	assert.Equal(t, "rate limited", apperr.Message(err))
}

func TestEditSendsEveryImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/edits", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "gpt-image-1", r.FormValue("model"))
		assert.Equal(t, "color me", r.FormValue("prompt"))
		assert.Equal(t, "1536x1024", r.FormValue("size"))
		assert.Equal(t, "medium", r.FormValue("quality"))

		files := r.MultipartForm.File["image[]"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.png", files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))
		assert.Equal(t, "image/jpeg", files[1].Header.Get("Content-Type"))
		assert.Empty(t, r.MultipartForm.File["mask"])

		_, _ = io.WriteString(w, `{"data":[{"b64_json":"aGVsbG8="}]}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, time.Second)
	res, err := c.Edit(t.Context(), EditParams{
		Prompt:  "color me",
		Count:   1,
		Size:    "1536x1024",
		Quality: "medium",
		Images: []Upload{
			{Filename: "a.png", ContentType: "image/png", Data: []byte("png")},
			{Filename: "b.jpg", ContentType: "image/jpeg", Data: []byte("jpg")},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.Nil(t, res.Usage)
}

func TestEditOmitsAutoValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasSize := r.MultipartForm.Value["size"]
		_, hasQuality := r.MultipartForm.Value["quality"]
		assert.False(t, hasSize)
		assert.False(t, hasQuality)
		assert.Len(t, r.MultipartForm.File["mask"], 1)
		_, _ = io.WriteString(w, `{"data":[{"b64_json":"eA=="}]}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, time.Second)
	_, err := c.Edit(t.Context(), EditParams{
		Prompt:  "p",
		Size:    "auto",
		Quality: "auto",
		Images:  []Upload{{Data: []byte("png")}},
		Mask:    &Upload{Data: []byte("mask")},
	})
	require.NoError(t, err)
}

func TestEditErrorCarriesStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid image file","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, time.Second)
	_, err := c.Edit(t.Context(), EditParams{Prompt: "p", Images: []Upload{{Data: []byte("x")}}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
	assert.Equal(t, "Invalid image file", apperr.Message(err))
}

func TestEditRequiresImages(t *testing.T) {
	c := NewClient("sk-test", "http://127.0.0.1:1", time.Second)
	_, err := c.Edit(t.Context(), EditParams{Prompt: "p"})
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}
