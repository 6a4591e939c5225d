package document

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"escrowflow/access"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/validate"

	"github.com/google/uuid"
)

// BlobStore keeps file contents outside the database.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key, fileName string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Store persists document metadata.
type Store interface {
	CheckParent(ctx context.Context, caller access.Caller, parent Parent, parentID string) error
	Insert(ctx context.Context, caller access.Caller, d Document) (Document, error)
	List(ctx context.Context, caller access.Caller, parent Parent, parentID string) ([]Document, error)
}

type Service struct {
	repo        Store
	blobs       BlobStore
	idGenerator func() string
}

func NewService(repo Store, blobs BlobStore) *Service {
	return &Service{
		repo:        repo,
		blobs:       blobs,
		idGenerator: uuid.NewString,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Attach stores the upload and records it under a visible parent. The blob is
// removed again if the metadata row cannot be written.
func (s *Service) Attach(ctx context.Context, caller access.Caller, parent Parent, parentID string, up Upload) (Document, error) {
	up.Title = strings.TrimSpace(up.Title)
	up.FileName = cleanFileName(up.FileName)

	v := validate.Errors{}
	v.Required("title", up.Title)
	if up.Body == nil || up.FileName == "" {
		v.Add("file", "No file was submitted.")
	}
	if err := v.Err(); err != nil {
		return Document{}, err
	}

	if err := s.repo.CheckParent(ctx, caller, parent, parentID); err != nil {
		return Document{}, err
	}

	key := fmt.Sprintf("%ss/%s/documents/%s-%s", parent, parentID, s.idGenerator(), up.FileName)
	if up.ContentType == "" {
		up.ContentType = "application/octet-stream"
	}
	if err := s.blobs.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return Document{}, fmt.Errorf("document: store blob: %w", err)
	}

	doc, err := s.repo.Insert(ctx, caller, Document{
		Parent:      parent,
		ParentID:    parentID,
		Title:       up.Title,
		ObjectKey:   key,
		FileName:    up.FileName,
		ContentType: up.ContentType,
		Size:        up.Size,
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			logger.Warn(ctx, "orphaned document blob", "key", key, "error", delErr)
		}
		return Document{}, err
	}

	s.sign(ctx, &doc)
	return doc, nil
}

// List returns the documents of a visible parent with download links.
func (s *Service) List(ctx context.Context, caller access.Caller, parent Parent, parentID string) ([]Document, error) {
	docs, err := s.repo.List(ctx, caller, parent, parentID)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		s.sign(ctx, &docs[i])
	}
	return docs, nil
}

func (s *Service) sign(ctx context.Context, d *Document) {
	u, err := s.blobs.PresignedURL(ctx, d.ObjectKey, d.FileName)
	if err != nil {
		logger.Warn(ctx, "presign document", "key", d.ObjectKey, "error", err)
		return
	}
	d.URL = u
}

// cleanFileName keeps the base name and drops characters that would break an object key.
func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '?', r == '#', r == '%':
			return '_'
		}
		return r
	}, name)
}
