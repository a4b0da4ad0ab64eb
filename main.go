package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"overlay-builder/core"
	"overlay-builder/handlers/api/projects"
	sceneapi "overlay-builder/handlers/api/scene"
	templatesapi "overlay-builder/handlers/api/templates"
	"overlay-builder/handlers/api/versions"
	"overlay-builder/handlers/auth"
	"overlay-builder/handlers/websocket"
	authMiddleware "overlay-builder/middleware"
	"overlay-builder/session"
	"overlay-builder/stores"
	"overlay-builder/templates"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type roomEntry struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// roomLister reports the rooms with live collaborators.
type roomLister interface {
	ActiveRooms() map[string]int
}

func handleRooms(hub roomLister, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := make(map[string]*roomEntry)
		for id, count := range hub.ActiveRooms() {
			rooms[id] = &roomEntry{ID: id, Users: count}
		}

		if registry != nil {
			stored, err := registry.ListRooms(r.Context())
			if err != nil {
				logrus.WithError(err).Warn("failed to list rooms from registry")
			}
			for _, room := range stored {
				entry, exists := rooms[room.ID]
				if !exists {
					entry = &roomEntry{ID: room.ID}
					rooms[room.ID] = entry
				}
				if room.LastActive > 0 {
					lastActive := room.LastActive
					entry.LastActive = &lastActive
				}
			}
		}

		list := make([]roomEntry, 0, len(rooms))
		for _, entry := range rooms {
			list = append(list, *entry)
		}
		lastActive := func(e roomEntry) int64 {
			if e.LastActive == nil {
				return 0
			}
			return *e.LastActive
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Users != list[j].Users {
				return list[i].Users > list[j].Users
			}
			if li, lj := lastActive(list[i]), lastActive(list[j]); li != lj {
				return li > lj
			}
			return list[i].ID < list[j].ID
		})
		render.JSON(w, r, list)
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if allowed := os.Getenv("ALLOWED_ORIGIN"); allowed != "" && origin == allowed {
		return true
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "[::1]":
			return true
		}
	}
	return false
}

func setupRouter(store stores.Store, sessions *session.Manager, catalog templatesapi.Catalog, hub roomLister, registry core.RoomRegistry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/rooms", handleRooms(hub, registry))

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", templatesapi.HandleList(catalog))
		r.Get("/{id}", templatesapi.HandleGet(catalog))
	})

	versionStore, hasVersions := store.(core.VersionStore)
	if hasVersions {
		logrus.Info("Version API routes registered")
	} else {
		logrus.Warn("Version API not available with this storage type")
	}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT)

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", projects.HandleList(store))
			r.Post("/", projects.HandleCreate(store, catalog))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", projects.HandleGet(sessions))
				r.Delete("/", projects.HandleDelete(store, sessions))
				r.Put("/name", projects.HandleRename(sessions))
				r.Post("/save", projects.HandleSave(sessions))
				r.Get("/status", projects.HandleStatus(sessions))
				r.Get("/export", projects.HandleExport(sessions))

				r.Route("/scene", func(r chi.Router) {
					r.Get("/", sceneapi.HandleGet(sessions))
					r.Get("/render", sceneapi.HandleRender(sessions))
					r.Get("/validate", sceneapi.HandleValidate(sessions))
					r.Post("/hits", sceneapi.HandleHits(sessions))
					r.Post("/reconcile", sceneapi.HandleReconcile(sessions))

					r.Post("/layers", sceneapi.HandleAddLayer(sessions))
					r.Route("/layers/{layerId}", func(r chi.Router) {
						r.Get("/", sceneapi.HandleGetLayer(sessions))
						r.Patch("/", sceneapi.HandleUpdateLayer(sessions))
						r.Delete("/", sceneapi.HandleDeleteLayer(sessions))
						r.Post("/duplicate", sceneapi.HandleDuplicateLayer(sessions))
						r.Post("/move", sceneapi.HandleMoveLayer(sessions))
						r.Post("/front", sceneapi.HandleBringToFront(sessions))
						r.Post("/back", sceneapi.HandleSendToBack(sessions))
						r.Post("/mask", sceneapi.HandleApplyMask(sessions))
						r.Post("/unmask", sceneapi.HandleRemoveMask(sessions))
						r.Post("/ungroup", sceneapi.HandleUngroup(sessions))
						r.Post("/isolate", sceneapi.HandleEnterIsolation(sessions))
					})
					r.Patch("/shapes/{shapeId}", sceneapi.HandleUpdateShape(sessions))
					r.Post("/group", sceneapi.HandleGroup(sessions))
					r.Post("/isolation/exit", sceneapi.HandleExitIsolation(sessions))

					r.Post("/select", sceneapi.HandleSelect(sessions))
					r.Post("/click", sceneapi.HandleClick(sessions))
					r.Post("/keys/down", sceneapi.HandleKeyDown(sessions))
					r.Post("/keys/up", sceneapi.HandleKeyUp(sessions))
					r.Post("/keys/press", sceneapi.HandleKeyPress(sessions))
					r.Post("/clipboard/{action}", sceneapi.HandleClipboard(sessions))
				})

				// Version routes - only available when the store keeps history
				if hasVersions {
					r.Get("/versions", versions.HandleList(store, versionStore))
					r.Post("/versions", versions.HandleCreate(sessions))
				}
			})
		})

		if hasVersions {
			r.Route("/api/versions/{versionId}", func(r chi.Router) {
				r.Get("/", versions.HandleGet(store, versionStore))
				r.Delete("/", versions.HandleDelete(store, versionStore))
				r.Post("/restore", versions.HandleRestore(store, versionStore, sessions))
			})
		}
	})

	return r
}

func templatesDir() string {
	if dir := os.Getenv("TEMPLATES_DIR"); dir != "" {
		return dir
	}
	return "./templates"
}

func waitForShutdown(srv *http.Server, sessions *session.Manager, hub *websocket.Hub, store stores.Store, stopWatch context.CancelFunc) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	stopWatch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	if err := sessions.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to save open projects")
	}
	hub.Close()
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	store := stores.GetStore()
	var roomRegistry core.RoomRegistry
	if registry, ok := store.(core.RoomRegistry); ok {
		roomRegistry = registry
	}

	hub := websocket.NewHub(roomRegistry, store)
	sessions := session.NewManager(store, session.ConfigFromEnv(), hub)

	catalog := templates.NewCatalog(templatesDir())
	if err := catalog.Load(); err != nil {
		logrus.WithError(err).Warn("Failed to load templates")
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	go func() {
		if err := catalog.Watch(watchCtx); err != nil {
			logrus.WithError(err).Warn("Template hot reload disabled")
		}
	}()

	r := setupRouter(store, sessions, catalog, hub, roomRegistry)
	r.Handle("/socket.io/", hub.Server().ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddress, Handler: r}
	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, sessions, hub, store, stopWatch)
}
