// package formatter provides functions to export playlist data to various formats (CSV, JSON, XML, XSPF, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// Format names an export serialization.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXML      Format = "xml"
	FormatXSPF     Format = "xspf"
	FormatText     Format = "txt"
	FormatMarkdown Format = "markdown"
)

// Formats lists every supported format.
var Formats = []Format{FormatCSV, FormatJSON, FormatXML, FormatXSPF, FormatText, FormatMarkdown}

// ParseFormat accepts a format name or a common alias ("text", "md").
func ParseFormat(s string) (Format, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "md":
		return FormatMarkdown, nil
	default:
		for _, known := range Formats {
			if Format(f) == known {
				return known, nil
			}
		}
		return "", fmt.Errorf("%w: %q", shared.ErrUnsupportedKind, s)
	}
}

// Extension returns the file extension (without the dot) for f.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ContentType returns the MIME type used when serving f over HTTP.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXML:
		return "application/xml"
	case FormatXSPF:
		return "application/xspf+xml"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Export serializes a playlist in the given format.
func Export(export *models.PlaylistExport, f Format) ([]byte, error) {
	if export == nil {
		return nil, fmt.Errorf("%w: nil playlist export", shared.ErrInvalidInput)
	}
	switch f {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatJSON:
		return shared.MarshalJSON(export, true)
	case FormatXML:
		return ExportToXML(export)
	case FormatXSPF:
		return ExportToXSPF(export)
	case FormatText:
		return ExportToText(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnsupportedKind, f)
	}
}

// ExportToCSV converts a PlaylistExport to CSV format with columns: ID, Title, Artist, Album, Duration, ISRC
//
// Duration is in milliseconds.
func ExportToCSV(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.ID,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.DurationMS),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PlaylistExport to Markdown format
func ExportToMarkdown(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Name)

	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", export.Playlist.Description)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", shared.VisibilityString(export.Playlist.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Title, albumPart, shared.FormatDuration(track.DurationMS))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a PlaylistExport to plain text format
func ExportToText(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name)
	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", export.Playlist.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

type xmlPlaylist struct {
	XMLName     xml.Name   `xml:"playlist"`
	ID          string     `xml:"id,attr,omitempty"`
	Name        string     `xml:"name"`
	Description string     `xml:"description,omitempty"`
	Public      bool       `xml:"public"`
	TrackCount  int        `xml:"trackCount"`
	Tracks      []xmlTrack `xml:"tracks>track"`
}

type xmlTrack struct {
	ID         string `xml:"id,attr,omitempty"`
	Title      string `xml:"title"`
	Artist     string `xml:"artist"`
	Album      string `xml:"album,omitempty"`
	DurationMS int    `xml:"durationMs"`
	ISRC       string `xml:"isrc,omitempty"`
}

// ExportToXML converts a PlaylistExport to a flat XML document.
func ExportToXML(export *models.PlaylistExport) ([]byte, error) {
	doc := xmlPlaylist{
		ID:          export.Playlist.ID,
		Name:        export.Playlist.Name,
		Description: export.Playlist.Description,
		Public:      export.Playlist.Public,
		TrackCount:  len(export.Tracks),
		Tracks:      make([]xmlTrack, 0, len(export.Tracks)),
	}
	for _, t := range export.Tracks {
		doc.Tracks = append(doc.Tracks, xmlTrack{
			ID:         t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			DurationMS: t.DurationMS,
			ISRC:       t.ISRC,
		})
	}
	return marshalXML(doc)
}

type xspfPlaylist struct {
	XMLName    xml.Name    `xml:"http://xspf.org/ns/0/ playlist"`
	Version    string      `xml:"version,attr"`
	Title      string      `xml:"title"`
	Annotation string      `xml:"annotation,omitempty"`
	Tracks     []xspfTrack `xml:"trackList>track"`
}

type xspfTrack struct {
	Identifier []string `xml:"identifier,omitempty"`
	Title      string   `xml:"title"`
	Creator    string   `xml:"creator"`
	Album      string   `xml:"album,omitempty"`
	TrackNum   int      `xml:"trackNum"`
	Duration   int      `xml:"duration,omitempty"`
}

// ExportToXSPF converts a PlaylistExport to an XSPF (XML Shareable Playlist Format) v1 document.
//
// ISRCs are written as urn:isrc identifiers; durations are in milliseconds as XSPF requires.
func ExportToXSPF(export *models.PlaylistExport) ([]byte, error) {
	doc := xspfPlaylist{
		Version:    "1",
		Title:      export.Playlist.Name,
		Annotation: export.Playlist.Description,
		Tracks:     make([]xspfTrack, 0, len(export.Tracks)),
	}
	for i, t := range export.Tracks {
		track := xspfTrack{
			Title:    t.Title,
			Creator:  t.Artist,
			Album:    t.Album,
			TrackNum: i + 1,
			Duration: t.DurationMS,
		}
		if t.ISRC != "" {
			track.Identifier = append(track.Identifier, "urn:isrc:"+t.ISRC)
		}
		doc.Tracks = append(doc.Tracks, track)
	}
	return marshalXML(doc)
}

func marshalXML(v any) ([]byte, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode XML: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(data)+1)
	out = append(out, xml.Header...)
	out = append(out, data...)
	return append(out, '\n'), nil
}

// ToMetadataJSON generates a JSON representation of playlist metadata (without tracks)
func ToMetadataJSON(playlist models.Playlist) ([]byte, error) {
	return shared.MarshalJSON(playlist, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a playlist to CSV format with accompanying metadata JSON file.
//
// Defaults to playlist ID as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(export *models.PlaylistExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Playlist.ID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export.Playlist)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteExport writes a single-file export of the playlist into dir and returns the paths written.
//
// CSV additionally writes a metadata JSON file next to the tracks file.
func WriteExport(export *models.PlaylistExport, f Format, dir string) ([]string, error) {
	if export == nil {
		return nil, fmt.Errorf("%w: nil playlist export", shared.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	base := filepath.Join(dir, fileStem(export.Playlist))
	if f == FormatCSV {
		res, err := WriteCSVExport(export, base)
		if err != nil {
			return nil, err
		}
		return []string{res.TracksFile, res.MetadataFile}, nil
	}

	data, err := Export(export, f)
	if err != nil {
		return nil, err
	}
	path := base + "." + f.Extension()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return []string{path}, nil
}

// fileStem returns a filesystem-safe base name for a playlist, falling back to its ID.
func fileStem(pl models.Playlist) string {
	stem := pl.ID
	if stem == "" {
		stem = pl.Name
	}
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, stem)
	if stem == "" {
		return "playlist"
	}
	return stem
}

// ManifestEntry is one playlist in a bulk export manifest.
type ManifestEntry struct {
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Manifest summarizes a bulk export.
type Manifest struct {
	Format     Format          `json:"format"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Playlists  []ManifestEntry `json:"playlists"`
}

// WriteManifest writes m as indented JSON to path.
func WriteManifest(m Manifest, path string) error {
	data, err := shared.MarshalJSON(m, true)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
