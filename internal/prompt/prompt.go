// Package prompt turns coloring-page options into the instruction sent to
// the image model. Synthesize is pure and never fails.
package prompt

import (
	"fmt"
	"strings"
)

type PageType string

const (
	StraightCopy    PageType = "straight-copy"
	FacialPortrait  PageType = "facial-portrait"
	CartoonPortrait PageType = "cartoon-portrait"
)

type Background string

const (
	Plain          Background = "plain"
	MindfulPattern Background = "mindful-pattern"
	Scene          Background = "scene"
)

// NoGrayTones must end up in every prompt; the printed pages rely on it.
const NoGrayTones = "no gray tones whatsoever"

// NamePlaceholder is written when a straight copy has no caption.
const NamePlaceholder = "[NAME]"

const (
	plainBackgroundText   = "plain white"
	mindfulBackgroundText = "abstract pattern suitable for mindful coloring"

	lineArtSingle = "turn the attached photo into a bold black and white line drawing suitable for a coloring page, using ONLY pure black lines on white background with NO gray shades or gradients"
	lineArtMulti  = "turn the attached photos into bold black and white line drawings suitable for a coloring page, using ONLY pure black lines on white background with NO gray shades or gradients."
	keepFaces     = " ensure accurate facial features are maintained with clear, bold black outlines."
)

type Options struct {
	Type             PageType
	NameOrMessage    string
	IndividualNames  []string
	Background       Background
	SceneDescription string
}

// ResolveBackground returns the background phrase. A scene without a
// description silently falls back to plain so a usable prompt always results.
func ResolveBackground(bg Background, sceneDescription string) string {
	switch bg {
	case MindfulPattern:
		return mindfulBackgroundText
	case Scene:
		if strings.TrimSpace(sceneDescription) != "" {
			return sceneDescription
		}
	}
	return plainBackgroundText
}

func Synthesize(opts Options) string {
	background := ResolveBackground(opts.Background, opts.SceneDescription)

	switch opts.Type {
	case StraightCopy:
		return straightCopy(opts.NameOrMessage, background)
	case FacialPortrait:
		return facialPortrait(opts.NameOrMessage, opts.IndividualNames, background)
	case CartoonPortrait:
		return cartoonPortrait(opts.NameOrMessage, opts.IndividualNames, background)
	default:
		return lineArtSingle + ". use only pure black and white - " + NoGrayTones + "."
	}
}

func straightCopy(caption, background string) string {
	if caption == "" {
		caption = NamePlaceholder
	}
	return lineArtSingle + "." + keepFaces +
		fmt.Sprintf(" write %s in friendly white letters with thick black outline, suited to a coloring page.", caption) +
		" place the writing unobtrusively on top of the line drawing, ensuring it doesn't obscure the subject's face." +
		fmt.Sprintf(" finally center the whole thing, as large as possible whilst still looking elegant, on a %s background.", background) +
		" use only black and white - " + NoGrayTones + "."
}

func facialPortrait(caption string, names []string, background string) string {
	var b strings.Builder
	b.WriteString(lineArtMulti)
	b.WriteString(keepFaces)
	b.WriteString(" place each result inside its own white box with thick black outline.")

	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		fmt.Fprintf(&b, " directly below the box containing PHOTO(%d) write %s in friendly white letters with thick black outline, suited to a coloring page.", i+1, name)
	}

	b.WriteString(" arrange all these elements elegantly")
	if strings.TrimSpace(caption) != "" {
		fmt.Fprintf(&b, " and write %s using the same style letters as individual names and position it somewhere unobtrusive", caption)
	}
	fmt.Fprintf(&b, ". place all of this on top of a %s background.", background)
	b.WriteString(" use only pure black and white - " + NoGrayTones + ".")
	return b.String()
}

func cartoonPortrait(caption string, activities []string, background string) string {
	var b strings.Builder
	b.WriteString(lineArtMulti)
	b.WriteString(keepFaces)

	for i, activity := range activities {
		if strings.TrimSpace(activity) == "" {
			continue
		}
		fmt.Fprintf(&b, " Give the result from PHOTO(%d) a cartoony body engaged in %s.", i+1, activity)
	}

	b.WriteString(" the body should be drawn in a matching style suitable for a colouring page with bold black outlines only.")
	fmt.Fprintf(&b, " position the figures elegantly and in a way that makes sense on top of a %s background.", background)
	if strings.TrimSpace(caption) != "" {
		fmt.Fprintf(&b, " finally write %s in friendly white letters with thick black outline suitable for a colouring page and place it somewhere in the picture that it doesn't cover anything important.", caption)
	}
	b.WriteString(" use only pure black and white - " + NoGrayTones + ".")
	return b.String()
}
