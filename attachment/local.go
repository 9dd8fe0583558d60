package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// LocalStore serves attachments stored as files under Dir, named by id.
// The MIME type is sniffed from the first 512 bytes.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

func (s *LocalStore) GetAttachment(_ context.Context, id string) (*leave.Attachment, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, generic.NewValidationError("attachment_id", "invalid attachment id %q", id)
	}

	f, err := os.Open(filepath.Join(s.Dir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &generic.NotFoundError{Kind: "attachment", ID: id}
		}
		return nil, fmt.Errorf("open attachment %s: %w", id, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat attachment %s: %w", id, err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read attachment %s: %w", id, err)
	}

	return &leave.Attachment{
		ID:       id,
		Size:     info.Size(),
		MimeType: http.DetectContentType(head[:n]),
	}, nil
}

var _ leave.AttachmentStore = (*LocalStore)(nil)
