// Package download builds embedded download links for generated audio.
package download

import (
	"fmt"
	"html"
	"html/template"
	"os"
	"path/filepath"

	"github.com/vincent-petithory/dataurl"
)

// MediaType is the type carried by every download link, so browsers save the file
// instead of playing it.
const MediaType = "application/octet-stream"

const linkFormat = `<a href="%s" download="%s">Download %s</a>`

// Link is a download anchor whose target embeds the whole file.
type Link struct {
	Filename string `json:"filename"`
	Label    string `json:"label"`
	DataURI  string `json:"data_uri"`
}

// BuildLink encodes data as a base64 data URI offered under name.
func BuildLink(name, label string, data []byte) Link {
	return Link{
		Filename: filepath.Base(name),
		Label:    label,
		DataURI:  dataurl.New(data, MediaType).String(),
	}
}

// BuildFileLink reads the file at path and builds its link.
func BuildFileLink(path, label string) (Link, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Link{}, fmt.Errorf("failed to read '%s' for download link: %w", path, err)
	}

	return BuildLink(path, label, data), nil
}

// HTML renders the anchor element with escaped attributes.
func (l Link) HTML() template.HTML {
	// #nosec G203 -- every interpolated value is escaped
	return template.HTML(fmt.Sprintf(linkFormat,
		html.EscapeString(l.DataURI),
		html.EscapeString(l.Filename),
		html.EscapeString(l.Label),
	))
}

// Decode returns the bytes embedded in the link.
func (l Link) Decode() ([]byte, error) {
	decoded, err := dataurl.DecodeString(l.DataURI)
	if err != nil {
		return nil, fmt.Errorf("failed to decode download link: %w", err)
	}

	return decoded.Data, nil
}
