package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/avatar"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/config"
	"github.com/Gamma101/web-chat/internal/session"
)

type Server struct {
	app      *fiber.App
	log      *zap.SugaredLogger
	records  backend.Records
	blobs    backend.BlobStore
	feed     backend.ChangeFeed
	sessions *session.Manager
	avatars  *avatar.Service
}

type Deps struct {
	Records  backend.Records
	Blobs    backend.BlobStore
	Feed     backend.ChangeFeed
	Sessions *session.Manager
	Avatars  *avatar.Service
}

func NewServer(cfg *config.Config, log *zap.SugaredLogger, deps Deps) *Server {
	s := &Server{
		log:      log,
		records:  deps.Records,
		blobs:    deps.Blobs,
		feed:     deps.Feed,
		sessions: deps.Sessions,
		avatars:  deps.Avatars,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	app.Use(countRequests())
	app.Use(NewIPRateLimiter(cfg.Server.RateLimitPerMin, log).Handler())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := app.Group("/api/v1/auth")
	auth.Post("/signup", s.handleSignUp)
	auth.Post("/login", s.handleLogin)
	auth.Post("/logout", s.handleLogout)

	v1 := app.Group("/api/v1", JWTAuth(s.sessions))
	v1.Get("/users", s.handleDirectory)
	v1.Get("/users/:id", s.handleProfile)
	v1.Post("/me/avatar", s.handleSetAvatar)
	v1.Delete("/me/avatar", s.handleRemoveAvatar)
	v1.Get("/conversations/:peer/messages", s.handleLoadConversation)
	v1.Post("/conversations/:peer/messages", s.handleSendMessage)
	v1.Patch("/messages/:id", s.handleEditMessage)
	v1.Delete("/messages/:id", s.handleDeleteMessage)

	app.Use("/ws", WSUpgrade())
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
