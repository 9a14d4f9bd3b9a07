package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"roomchat/internal/handlers"
	"roomchat/internal/handlers/auth"
	"roomchat/internal/handlers/room"
	"roomchat/internal/handlers/user"
	"roomchat/internal/middleware"
)

// Users is everything the account and profile endpoints need.
type Users interface {
	auth.Accounts
	user.Profiles
}

type Deps struct {
	DB            handlers.Pinger
	Authenticator middleware.Authenticator
	Users         Users
	Rooms         room.Registry
	Sessions      room.Syncer
	WS            http.Handler
	CORSOrigins   []string
	Log           logrus.FieldLogger
}

type Server struct {
	Addr string
	deps Deps
	http *http.Server
}

func NewServer(addr string, deps Deps) *Server {
	s := &Server{Addr: addr, deps: deps}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func HandlerFunc(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	d := s.deps
	r := chi.NewRouter()

	// middlewares
	r.Use(middleware.Logger(d.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.SessionTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "roomchat API is running")
	})
	r.Get("/health", HandlerFunc(&handlers.HealthHandler{DB: d.DB}))

	// auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", HandlerFunc(&auth.RegisterHandler{Users: d.Users}))
		r.Post("/login", HandlerFunc(&auth.LoginHandler{Users: d.Users}))
	})

	// authenticated routes grouped by feature
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.AuthJWT(d.Authenticator))
		r.Get("/", HandlerFunc(&user.ListHandler{Users: d.Users}))
		r.Get("/me", HandlerFunc(&user.MeHandler{Users: d.Users}))
		r.Patch("/me", HandlerFunc(&user.UpdateMeHandler{Users: d.Users}))
	})

	r.Route("/rooms", func(r chi.Router) {
		r.Use(middleware.AuthJWT(d.Authenticator))
		r.Get("/", HandlerFunc(&room.RoomListHandler{Rooms: d.Rooms}))
		r.Post("/", HandlerFunc(&room.CreateRoomHandler{Rooms: d.Rooms, Sessions: d.Sessions, Log: d.Log}))
		r.Post("/{roomId}/members", HandlerFunc(&room.AddMembersHandler{Rooms: d.Rooms, Sessions: d.Sessions, Log: d.Log}))
		r.Get("/{roomId}/messages", HandlerFunc(&room.RoomMessagesHandler{Rooms: d.Rooms}))
	})

	// WebSocket endpoint, authenticated during the handshake
	if d.WS != nil {
		r.Get("/ws", HandlerFunc(d.WS))
	}
	return r
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.deps.Log.WithField("addr", s.Addr).Info("server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
