package imagegen

import (
	"net/http"
	"testing"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOutputFormat(t *testing.T) {
	tests := map[string]OutputFormat{
		"":     FormatPNG,
		"png":  FormatPNG,
		"jpg":  FormatJPEG,
		"JPEG": FormatJPEG,
		"webp": FormatWEBP,
		"gif":  FormatPNG,
		"bmp":  FormatPNG,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeOutputFormat(in), "input %q", in)
	}
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 1, ParseCount(""))
	assert.Equal(t, 1, ParseCount("abc"))
	assert.Equal(t, 1, ParseCount("0"))
	assert.Equal(t, 1, ParseCount("-4"))
	assert.Equal(t, 3, ParseCount("3"))
	assert.Equal(t, 10, ParseCount("10"))
	assert.Equal(t, 10, ParseCount("25"))
}

func TestParseCompression(t *testing.T) {
	assert.Nil(t, ParseCompression("50", FormatPNG))
	assert.Nil(t, ParseCompression("", FormatJPEG))
	assert.Nil(t, ParseCompression("101", FormatJPEG))
	assert.Nil(t, ParseCompression("-1", FormatWEBP))
	assert.Nil(t, ParseCompression("high", FormatWEBP))

	got := ParseCompression("0", FormatJPEG)
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)

	got = ParseCompression("100", FormatWEBP)
	require.NotNil(t, got)
	assert.Equal(t, 100, *got)
}

func TestSizeForOrientation(t *testing.T) {
	assert.Equal(t, SizeLandscape, SizeForOrientation("landscape"))
	assert.Equal(t, SizePortrait, SizeForOrientation("portrait"))
	assert.Equal(t, SizePortrait, SizeForOrientation(""))
	assert.Equal(t, SizePortrait, SizeForOrientation("square"))
}

func TestNormalizeGenerateDefaults(t *testing.T) {
	req, warnings, err := Normalize(RawForm{Mode: "generate", Prompt: "a fox", N: "50", OutputFormat: "jpg", OutputCompression: "70"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, ModeGenerate, req.Mode)
	assert.Equal(t, 10, req.Count)
	assert.Equal(t, "1024x1024", req.Size)
	assert.Equal(t, "auto", req.Quality)
	assert.Equal(t, "auto", req.Background)
	assert.Equal(t, "auto", req.Moderation)
	assert.Equal(t, FormatJPEG, req.OutputFormat)
	require.NotNil(t, req.OutputCompression)
	assert.Equal(t, 70, *req.OutputCompression)
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		form RawForm
		code string
	}{
		{"missing mode", RawForm{Prompt: "x"}, apperr.CodeMissingParameter},
		{"unknown mode", RawForm{Mode: "variation", Prompt: "x"}, apperr.CodeInvalidParameter},
		{"generate without prompt", RawForm{Mode: "generate"}, apperr.CodeMissingParameter},
		{"edit without images", RawForm{Mode: "edit", Prompt: "x"}, apperr.CodeMissingParameter},
		{"coloring edit without images", RawForm{Mode: "edit", ColoringPageType: "straight-copy"}, apperr.CodeMissingParameter},
		{"plain edit without prompt", RawForm{Mode: "edit", Images: []Upload{{Data: []byte("x")}}}, apperr.CodeMissingParameter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Normalize(tc.form)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
			assert.Equal(t, tc.code, apperr.CodeOf(err))
		})
	}
}

func TestNormalizeColoringPageOverrides(t *testing.T) {
	req, _, err := Normalize(RawForm{
		Mode:             "edit",
		N:                "4",
		Size:             "1024x1024",
		Quality:          "high",
		ColoringPageType: "facial-portrait",
		NameOrMessage:    "<b>Happy</b> Birthday",
		IndividualNames:  `["O'Brien","<script>x</script>"]`,
		Background:       "mindful-pattern",
		Orientation:      "landscape",
		Images:           []Upload{{Filename: "a.png", Data: []byte("a")}},
	})
	require.NoError(t, err)

	assert.True(t, req.ColoringPage)
	assert.Equal(t, 1, req.Count)
	assert.Equal(t, SizeLandscape, req.Size)
	assert.Equal(t, "medium", req.Quality)
	assert.Contains(t, req.Prompt, "write Happy Birthday using the same style letters")
	assert.Contains(t, req.Prompt, "PHOTO(1) write O'Brien")
	assert.NotContains(t, req.Prompt, "<script>")
	assert.Contains(t, req.Prompt, prompt.NoGrayTones)
}

func TestNormalizeColoringPageIgnoresBadNames(t *testing.T) {
	req, warnings, err := Normalize(RawForm{
		Mode:             "edit",
		ColoringPageType: "facial-portrait",
		IndividualNames:  `{not json`,
		Images:           []Upload{{Data: []byte("a")}},
	})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.NotContains(t, req.Prompt, "PHOTO(")
	assert.Equal(t, SizePortrait, req.Size)
}

func TestNormalizePlainEdit(t *testing.T) {
	req, _, err := Normalize(RawForm{
		Mode:    "edit",
		Prompt:  "add a hat",
		N:       "2",
		Images:  []Upload{{Data: []byte("a")}},
		Mask:    &Upload{Data: []byte("m")},
		Quality: "low",
	})
	require.NoError(t, err)
	assert.False(t, req.ColoringPage)
	assert.Equal(t, "add a hat", req.Prompt)
	assert.Equal(t, 2, req.Count)
	assert.Equal(t, "auto", req.Size)
	assert.Equal(t, "low", req.Quality)
	assert.NotNil(t, req.Mask)
}
