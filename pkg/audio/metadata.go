package audio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// TagReaderImpl reads ID3/MP4/FLAC/OGG tags
type TagReaderImpl struct{}

// NewTagReader creates a tag reader
func NewTagReader() *TagReaderImpl {
	return &TagReaderImpl{}
}

// ReadTags returns the title and artist embedded in r
func (TagReaderImpl) ReadTags(r io.ReadSeeker) (string, string, error) {
	metadata, err := tag.ReadFrom(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to read metadata: %w", err)
	}
	return strings.TrimSpace(metadata.Title()), strings.TrimSpace(metadata.Artist()), nil
}

// ReadFileTags opens path and reads its tags. Missing tags are not an error.
func ReadFileTags(reader TagReader, path string) (string, string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer func() { _ = file.Close() }()

	title, artist, err := reader.ReadTags(file)
	if err != nil {
		return "", ""
	}
	return title, artist
}
