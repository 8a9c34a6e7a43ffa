package api

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/chat"
	"github.com/Gamma101/web-chat/internal/model"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

// GET /api/v1/users?q= — the directory: everyone but the caller, optionally
// narrowed by a username substring.
func (s *Server) handleDirectory(c *fiber.Ctx) error {
	sess := currentSession(c)
	dir := chat.NewDirectoryStore(s.records, s.feed, s.log, sess.UserID)
	if _, err := dir.Load(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"users": dir.Filter(c.Query("q"))})
}

// GET /api/v1/users/:id — a single profile with its initials fallback.
func (s *Server) handleProfile(c *fiber.Ctx) error {
	doc, err := s.records.SelectOne(c.Context(), model.CollUsers,
		backend.Where(backend.C("id", c.Params("id"))))
	if err != nil {
		return fail(c, err)
	}
	u := model.UserFromDoc(doc)
	return c.JSON(fiber.Map{"user": u, "initials": u.Initials()})
}

func (s *Server) handleSetAvatar(c *fiber.Ctx) error {
	sess := currentSession(c)
	fh, err := c.FormFile("avatar")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "avatar file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fail(c, err)
	}
	url, err := s.avatars.Set(c.Context(), sess.UserID, data)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"avatar_url": url})
}

func (s *Server) handleRemoveAvatar(c *fiber.Ctx) error {
	sess := currentSession(c)
	if err := s.avatars.Remove(c.Context(), sess.UserID); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "removed"})
}

// GET /api/v1/conversations/:peer/messages — the materialized thread plus
// resolved reply references.
func (s *Server) handleLoadConversation(c *fiber.Ctx) error {
	sess := currentSession(c)
	cs := chat.NewConversationStore(s.records, s.blobs, s.feed, s.log, sess.UserID, c.Params("peer"))
	msgs, err := cs.Load(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs, "replies": cs.Replies()})
}

// POST /api/v1/conversations/:peer/messages — multipart: text, optional
// image, optional reply_id.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	sess := currentSession(c)
	// text and peer are persisted past this request; fiber's zero-copy
	// strings are only valid inside the handler, so copy them.
	text := utils.CopyString(c.FormValue("text"))

	var image []byte
	imageType := ""
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return fail(c, err)
		}
		image, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			return fail(c, err)
		}
		imageType = fh.Header.Get("Content-Type")
	}

	var replyID *int64
	if v := c.FormValue("reply_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid reply_id"})
		}
		replyID = &id
	}

	cs := chat.NewConversationStore(s.records, s.blobs, s.feed, s.log, sess.UserID, utils.CopyString(c.Params("peer")))
	if err := cs.Send(c.Context(), text, image, imageType, replyID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusCreated)
}

// authorMessage loads a message and checks the caller wrote it.
func (s *Server) authorMessage(c *fiber.Ctx) (model.Message, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return model.Message{}, apperr.ErrValidation
	}
	doc, err := s.records.SelectOne(c.Context(), model.CollMessages,
		backend.Where(backend.C("id", id)))
	if err != nil {
		return model.Message{}, err
	}
	m := model.MessageFromDoc(doc)
	if m.SenderID != currentSession(c).UserID {
		return model.Message{}, apperr.ErrUnauthorized
	}
	return m, nil
}

// PATCH /api/v1/messages/:id
func (s *Server) handleEditMessage(c *fiber.Ctx) error {
	m, err := s.authorMessage(c)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the author may edit"})
		}
		return fail(c, err)
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	cs := chat.NewConversationStore(s.records, s.blobs, s.feed, s.log, m.SenderID, m.ReceiverID)
	if err := cs.Edit(c.Context(), m.ID, req.Text); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "edited"})
}

// DELETE /api/v1/messages/:id
func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	m, err := s.authorMessage(c)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the author may delete"})
		}
		return fail(c, err)
	}
	cs := chat.NewConversationStore(s.records, s.blobs, s.feed, s.log, m.SenderID, m.ReceiverID)
	if err := cs.Delete(c.Context(), m.ID); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}
