package media

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// LocalStore implements interface `BlobStore` on a local directory.
// Blobs are write-once: a temp file is linked into place, an existing blob
// is never replaced.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob path %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid blob path %q", p)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Exists(ctx context.Context, p string) (bool, error) {
	name, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LocalStore) Put(ctx context.Context, p string, r io.Reader) error {
	name, err := s.resolve(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := ioutil.TempFile(dir, ".upload-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// os.Link fails when the target exists, keeping the first writer's blob.
	if err := os.Link(tmp, name); err != nil {
		if os.IsExist(err) {
			glog.V(5).Infof("blob %s exists, keep it", p)
			return nil
		}
		return err
	}
	return nil
}
