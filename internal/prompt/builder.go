// Package prompt assembles the text sent to the image provider from request
// fields and optional business-profile data.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Input carries the free-text fields used for prompt construction. None of
// them take part in storage keys.
type Input struct {
	BusinessType      string
	MainService       string
	Country           string
	CompanyName       string
	Style             string
	Mood              string
	KeyElements       string
	Lighting          string
	Perspective       string
	ColorPalette      string
	Texture           string
	AdditionalContext string
	Profile           map[string]any
}

const defaultTemplate = `Create a highly realistic and professional photograph for marketing purposes that represents:
- Business Type: {{.BusinessType}}
- Primary Service: {{.MainService}}
{{- if .Country}}
- Country: {{.Country}}
{{- end}}
Image Characteristics:
- Style: {{.Style}}
- Mood: {{.Mood}}
{{- if .KeyElements}}
- Key Elements: {{.KeyElements}}
{{- end}}
Preferred Aesthetic:
- Lighting: {{.Lighting}}
- Perspective: {{.Perspective}}
{{- if .ColorPalette}}
- Color Palette: {{.ColorPalette}}
{{- end}}
{{- if .Texture}}
- Texture and Details: {{.Texture}}
{{- end}}
{{- if .AdditionalContext}}
- Keywords: {{.AdditionalContext}}
{{- end}}
{{- if .ProfileLines}}
Business Details:
{{- range .ProfileLines}}
- {{.}}
{{- end}}
{{- end}}
ultra-photorealistic, cinematic lighting, high detail, natural textures, no distortions, no brand, no artifacts, no text, no logo, no names, no letters`

// Builder renders prompts from a text/template.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder parses tmpl, or the built-in marketing template when tmpl is empty.
func NewBuilder(tmpl string) (*Builder, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = defaultTemplate
	}
	t, err := template.New("prompt").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Builder{tmpl: t}, nil
}

// Build renders in. Blank style fields fall back to neutral defaults.
func (b *Builder) Build(in Input) (string, error) {
	data := struct {
		Input
		ProfileLines []string
	}{Input: withDefaults(in), ProfileLines: profileLines(in.Profile)}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func withDefaults(in Input) Input {
	if in.MainService == "" {
		in.MainService = in.BusinessType
	}
	if in.Style == "" {
		in.Style = "Technical and Professional"
	}
	if in.Mood == "" {
		in.Mood = "Trustworthy, Reliable, Competent"
	}
	if in.Lighting == "" {
		in.Lighting = "Bright natural lighting"
	}
	if in.Perspective == "" {
		in.Perspective = "Wide shot showing the team at work"
	}
	return in
}

// profileLines flattens scalar profile values into sorted "key: value" lines.
func profileLines(profile map[string]any) []string {
	var lines []string
	for k, v := range profile {
		switch v := v.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				lines = append(lines, k+": "+v)
			}
		case float64, bool, int:
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
	}
	sort.Strings(lines)
	return lines
}
