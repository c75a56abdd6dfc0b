package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynthesizeAlwaysForbidsGrayTones(t *testing.T) {
	types := []PageType{StraightCopy, FacialPortrait, CartoonPortrait, "watercolor", ""}
	captions := []string{"", "  ", "Happy Birthday"}
	nameSets := [][]string{nil, {}, {"", " "}, {"Alice", "", "Bob"}}
	backgrounds := []Background{Plain, MindfulPattern, Scene, "neon"}

	for _, typ := range types {
		for _, caption := range captions {
			for _, names := range nameSets {
				for _, bg := range backgrounds {
					got := Synthesize(Options{Type: typ, NameOrMessage: caption, IndividualNames: names, Background: bg})
					assert.NotEmpty(t, got)
					assert.Contains(t, got, NoGrayTones, "type=%q caption=%q names=%v bg=%q", typ, caption, names, bg)
					assert.Contains(t, got, "pure black lines on white background")
				}
			}
		}
	}
}

func TestFacialPortraitSkipsEmptyNames(t *testing.T) {
	got := Synthesize(Options{Type: FacialPortrait, IndividualNames: []string{"Alice", "", ""}, Background: Plain})

	assert.Equal(t, 1, strings.Count(got, "directly below the box containing PHOTO("))
	assert.Contains(t, got, "PHOTO(1) write Alice")
	assert.NotContains(t, got, "PHOTO(2)")
	assert.NotContains(t, got, "PHOTO(3)")
	assert.NotContains(t, got, "same style letters", "no shared caption without nameOrMessage")
	assert.True(t, strings.HasSuffix(got, NoGrayTones+"."))
}

func TestFacialPortraitUsesPhotoPositions(t *testing.T) {
	got := Synthesize(Options{Type: FacialPortrait, NameOrMessage: "The Smiths", IndividualNames: []string{"", "Bob", "  ", "Cara"}, Background: MindfulPattern})

	assert.Contains(t, got, "PHOTO(2) write Bob")
	assert.Contains(t, got, "PHOTO(4) write Cara")
	assert.Contains(t, got, "write The Smiths using the same style letters")
	assert.Contains(t, got, "on top of a "+mindfulBackgroundText+" background")
	// caption clause comes before the background clause
	assert.Less(t, strings.Index(got, "The Smiths"), strings.Index(got, mindfulBackgroundText))
}

func TestCartoonPortraitTreatsEntriesAsActivities(t *testing.T) {
	got := Synthesize(Options{Type: CartoonPortrait, IndividualNames: []string{"playing football", ""}, Background: Scene, SceneDescription: "a sunny beach"})

	assert.Contains(t, got, "PHOTO(1) a cartoony body engaged in playing football.")
	assert.NotContains(t, got, "PHOTO(2)")
	assert.Contains(t, got, "on top of a a sunny beach background")
	assert.NotContains(t, got, "finally write")
}

func TestCartoonPortraitCaption(t *testing.T) {
	got := Synthesize(Options{Type: CartoonPortrait, NameOrMessage: "Team Rocket", Background: Plain})
	assert.Contains(t, got, "finally write Team Rocket")
}

func TestStraightCopy(t *testing.T) {
	withName := Synthesize(Options{Type: StraightCopy, NameOrMessage: "Mia", Background: Plain})
	assert.Contains(t, withName, "write Mia in friendly white letters")
	assert.Contains(t, withName, "on a plain white background")

	placeholder := Synthesize(Options{Type: StraightCopy, Background: Plain})
	assert.Contains(t, placeholder, "write "+NamePlaceholder+" in friendly")
}

func TestUnknownTypeIgnoresOtherInputs(t *testing.T) {
	a := Synthesize(Options{Type: "sketch", NameOrMessage: "Mia", IndividualNames: []string{"Alice"}, Background: Scene, SceneDescription: "castle"})
	b := Synthesize(Options{Type: "other"})
	assert.Equal(t, a, b)
	assert.NotContains(t, a, "Mia")
	assert.NotContains(t, a, "castle")
}

func TestResolveBackground(t *testing.T) {
	tests := []struct {
		bg    Background
		scene string
		want  string
	}{
		{Plain, "ignored", plainBackgroundText},
		{MindfulPattern, "", mindfulBackgroundText},
		{Scene, "a forest", "a forest"},
		{Scene, "", plainBackgroundText},
		{Scene, "   ", plainBackgroundText},
		{"unknown", "x", plainBackgroundText},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ResolveBackground(tc.bg, tc.scene), "bg=%q scene=%q", tc.bg, tc.scene)
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	opts := Options{Type: FacialPortrait, NameOrMessage: "Love", IndividualNames: []string{"A", "B"}, Background: Scene, SceneDescription: "garden"}
	assert.Equal(t, Synthesize(opts), Synthesize(opts))
}
