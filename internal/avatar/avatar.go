// Package avatar manages profile images: square-crop, upload, swap the
// user's avatar_url, and clean up the replaced blob.
package avatar

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/chat"
	"github.com/Gamma101/web-chat/internal/model"
)

const size = 256

type Service struct {
	records backend.Records
	blobs   backend.BlobStore
	log     *zap.SugaredLogger
}

func NewService(records backend.Records, blobs backend.BlobStore, log *zap.SugaredLogger) *Service {
	return &Service{records: records, blobs: blobs, log: log}
}

// Set replaces the user's avatar: the old blob is removed first (failure
// logged, not fatal), the new image is center-cropped to a square, uploaded
// under a fresh name, and the user record updated with its public URL.
func (s *Service) Set(ctx context.Context, userID string, img []byte) (string, error) {
	src, err := imaging.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: not a decodable image", apperr.ErrValidation)
	}
	square := imaging.Fill(src, size, size, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, square, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode avatar: %w", err)
	}

	s.removeCurrent(ctx, userID)

	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
	url, err := s.blobs.Upload(ctx, name, buf.Bytes(), "image/png")
	if err != nil {
		return "", fmt.Errorf("%w: upload avatar: %v", apperr.ErrBackend, err)
	}

	err = s.records.Update(ctx, model.CollUsers,
		backend.Where(backend.C("id", userID)),
		backend.Doc{"avatar_url": url})
	if err != nil {
		return "", fmt.Errorf("%w: update avatar url: %v", apperr.ErrBackend, err)
	}
	return url, nil
}

// Remove deletes the avatar blob (best effort) and clears avatar_url.
func (s *Service) Remove(ctx context.Context, userID string) error {
	s.removeCurrent(ctx, userID)
	err := s.records.Update(ctx, model.CollUsers,
		backend.Where(backend.C("id", userID)),
		backend.Doc{"avatar_url": ""})
	if err != nil {
		return fmt.Errorf("%w: clear avatar url: %v", apperr.ErrBackend, err)
	}
	return nil
}

func (s *Service) removeCurrent(ctx context.Context, userID string) {
	doc, err := s.records.SelectOne(ctx, model.CollUsers, backend.Where(backend.C("id", userID)))
	if err != nil {
		return
	}
	u := model.UserFromDoc(doc)
	if u.AvatarURL == "" {
		return
	}
	if err := s.blobs.Remove(ctx, []string{chat.BlobPath(u.AvatarURL)}); err != nil {
		s.log.Warnw("remove old avatar failed", "user", userID, "err", err)
	}
}
