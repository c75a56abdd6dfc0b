package imagegen

import (
	"encoding/json"
	"html"
	"strconv"
	"strings"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/prompt"

	"github.com/microcosm-cc/bluemonday"
)

type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeEdit     Mode = "edit"
)

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWEBP OutputFormat = "webp"
)

const (
	MinCount = 1
	MaxCount = 10

	SizeLandscape = "1536x1024"
	SizePortrait  = "1024x1536"

	coloringPageQuality = "medium"
)

// NormalizeOutputFormat maps "jpg" to "jpeg" and anything unsupported to png.
func NormalizeOutputFormat(raw string) OutputFormat {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWEBP
	default:
		return FormatPNG
	}
}

func ClampCount(n int) int {
	if n < MinCount {
		return MinCount
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}

// ParseCount reads the requested image count; unparsable input means 1.
func ParseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return MinCount
	}
	return ClampCount(n)
}

// ParseCompression only yields a value for lossy formats and in-range input.
func ParseCompression(raw string, format OutputFormat) *int {
	if format != FormatJPEG && format != FormatWEBP {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 100 {
		return nil
	}
	return &n
}

func SizeForOrientation(orientation string) string {
	if strings.EqualFold(strings.TrimSpace(orientation), "landscape") {
		return SizeLandscape
	}
	return SizePortrait
}

// Upload is a file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RawForm is the multipart request as received, before any validation.
type RawForm struct {
	Mode              string
	Prompt            string
	N                 string
	Size              string
	Quality           string
	OutputFormat      string
	OutputCompression string
	// Background is the API background option in generate mode and the
	// coloring-page backdrop in coloring edits.
	Background   string
	Moderation   string
	PasswordHash string

	ColoringPageType string
	NameOrMessage    string
	IndividualNames  string
	SceneDescription string
	Orientation      string

	Images []Upload
	Mask   *Upload
}

// Request is the validated, defaulted form of a RawForm.
type Request struct {
	Mode              Mode
	Prompt            string
	Count             int
	Size              string
	Quality           string
	OutputFormat      OutputFormat
	OutputCompression *int
	Background        string
	Moderation        string
	Images            []Upload
	Mask              *Upload
	ColoringPage      bool
}

// textPolicy strips markup from free text that ends up inside prompts.
var textPolicy = bluemonday.StrictPolicy()

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// Normalize validates the raw form and applies defaults. A coloring-page
// edit overrides size, quality and count and synthesizes its own prompt.
func Normalize(raw RawForm) (Request, []string, error) {
	var warnings []string

	mode := Mode(strings.ToLower(strings.TrimSpace(raw.Mode)))
	if mode == "" {
		return Request{}, nil, apperr.MissingParameter("Missing required parameters: mode and prompt")
	}
	if mode != ModeGenerate && mode != ModeEdit {
		return Request{}, nil, apperr.Validation(apperr.CodeInvalidParameter, "Invalid mode specified")
	}

	format := NormalizeOutputFormat(raw.OutputFormat)
	req := Request{
		Mode:              mode,
		Prompt:            strings.TrimSpace(raw.Prompt),
		Count:             ParseCount(raw.N),
		Size:              defaultString(raw.Size, "1024x1024"),
		Quality:           defaultString(raw.Quality, "auto"),
		OutputFormat:      format,
		OutputCompression: ParseCompression(raw.OutputCompression, format),
		Background:        defaultString(raw.Background, "auto"),
		Moderation:        defaultString(raw.Moderation, "auto"),
	}

	if mode == ModeGenerate {
		if req.Prompt == "" {
			return Request{}, nil, apperr.MissingParameter("Missing required parameters: mode and prompt")
		}
		return req, warnings, nil
	}

	if len(raw.Images) == 0 {
		return Request{}, nil, apperr.MissingParameter("No image file provided for editing.")
	}
	req.Images = raw.Images
	req.Mask = raw.Mask
	req.Size = defaultString(raw.Size, "auto")
	req.Background = ""
	req.Moderation = ""

	pageType := strings.TrimSpace(raw.ColoringPageType)
	if pageType == "" {
		if req.Prompt == "" {
			return Request{}, nil, apperr.MissingParameter("Missing required parameters: mode and prompt")
		}
		return req, warnings, nil
	}

	names, err := parseNames(raw.IndividualNames)
	if err != nil {
		warnings = append(warnings, "individualNames is not a JSON string array; ignoring it")
	}

	req.ColoringPage = true
	req.Size = SizeForOrientation(raw.Orientation)
	req.Quality = coloringPageQuality
	req.Count = 1
	req.Prompt = prompt.Synthesize(prompt.Options{
		Type:             prompt.PageType(pageType),
		NameOrMessage:    cleanText(raw.NameOrMessage),
		IndividualNames:  names,
		Background:       prompt.Background(defaultString(raw.Background, string(prompt.Plain))),
		SceneDescription: cleanText(raw.SceneDescription),
	})
	return req, warnings, nil
}

func parseNames(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	for i := range names {
		names[i] = cleanText(names[i])
	}
	return names, nil
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
