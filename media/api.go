// Package media copies provider media objects into local storage.
package media

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/mqy/wabiz/chatstore"
)

// Dir is the storage prefix of downloaded media, relative to the blob root.
const Dir = "files/temp"

// Request identifies one provider media object to copy.
type Request struct {
	MediaID  string
	MimeType string
	// FileName is the local base name, see FileName.
	FileName string
	Kind     chatstore.MediaKind
}

// Fetcher downloads a media object and stores it, returning the reference
// to persist with the message. Implementations never retry.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*chatstore.MediaRef, error)
}

// BlobStore is the media byte storage. Paths are slash separated and
// relative to the store root.
type BlobStore interface {
	// Put stores r at path. Existing blobs are kept as is.
	Put(ctx context.Context, path string, r io.Reader) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Extension returns the file extension of a mime type: the subtype with
// parameters stripped, e.g. "audio/ogg; codecs=opus" => "ogg".
func Extension(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	i := strings.IndexByte(mt, '/')
	if i < 0 || i == len(mt)-1 {
		return ""
	}
	return strings.ToLower(mt[i+1:])
}

// FileName derives the local name of a media object, unique per media id.
// Documents keep the provider file name (base name only) under a directory
// named by the media id, everything else is named {mediaID}.{ext}.
func FileName(kind chatstore.MediaKind, mediaID, mimeType, providerName string) string {
	if kind == chatstore.MediaDocument {
		name := path.Base(strings.ReplaceAll(strings.TrimSpace(providerName), `\`, "/"))
		if name != "." && name != "/" && name != ".." {
			return mediaID + "/" + name
		}
	}
	if ext := Extension(mimeType); ext != "" {
		return mediaID + "." + ext
	}
	return mediaID
}

// Path returns the blob path of a media file name.
func Path(fileName string) string {
	return path.Join(Dir, fileName)
}
