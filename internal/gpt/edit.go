package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"coloring-pages/internal/apperr"
)

type editResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Usage *Usage `json:"usage"`
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Edit sends one or more reference images to the edits endpoint. The images
// go out as repeated image[] parts, which the SDK request type cannot express.
func (c *Client) Edit(ctx context.Context, p EditParams) (*Result, error) {
	if len(p.Images) == 0 {
		return nil, apperr.Validation(apperr.CodeMissingParameter, "at least one image is required for edit mode")
	}

	body, contentType, err := c.editForm(p)
	if err != nil {
		return nil, fmt.Errorf("build edit form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", body)
	if err != nil {
		return nil, fmt.Errorf("build edit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Upstream(http.StatusGatewayTimeout, err)
		}
		return nil, apperr.Upstream(http.StatusBadGateway, fmt.Errorf("image edit request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(http.StatusBadGateway, fmt.Errorf("read edit response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, editError(resp.StatusCode, raw)
	}

	var decoded editResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperr.Upstream(http.StatusBadGateway, fmt.Errorf("decode edit response: %w", err))
	}

	result := &Result{Images: make([]Image, 0, len(decoded.Data)), Usage: decoded.Usage}
	for _, d := range decoded.Data {
		result.Images = append(result.Images, Image{B64JSON: d.B64JSON})
	}
	return result, nil
}

func (c *Client) editForm(p EditParams) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"model", c.model},
		{"prompt", p.Prompt},
	}
	if p.Count > 0 {
		fields = append(fields, [2]string{"n", strconv.Itoa(p.Count)})
	}
	if p.Size != "" && p.Size != "auto" {
		fields = append(fields, [2]string{"size", p.Size})
	}
	if p.Quality != "" && p.Quality != "auto" {
		fields = append(fields, [2]string{"quality", p.Quality})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for i, img := range p.Images {
		name := img.Filename
		if name == "" {
			name = fmt.Sprintf("image-%d.png", i+1)
		}
		if err := writeFile(w, "image[]", name, img); err != nil {
			return nil, "", err
		}
	}
	if p.Mask != nil {
		name := p.Mask.Filename
		if name == "" {
			name = "mask.png"
		}
		if err := writeFile(w, "mask", name, *p.Mask); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field, filename string, up Upload) error {
	contentType := up.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(up.Data)
	return err
}

func editError(status int, raw []byte) error {
	msg := http.StatusText(status)
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	return &apperr.Error{
		Kind:    apperr.KindUpstream,
		Code:    apperr.CodeUpstreamAPIError,
		Message: msg,
		Status:  statusOrDefault(status),
		Err:     fmt.Errorf("image edit: status %d", status),
	}
}
