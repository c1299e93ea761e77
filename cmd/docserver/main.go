// Command docserver runs a single-process collaborative document server:
// an HTTP listener that upgrades /documents/{id}/ws into the wire
// protocol's websocket transport, backed by a configurable storage/WAL/
// relay stack. Flags select the backend, http.ServeMux does manual
// path-prefix routing, and shutdown follows the usual ListenAndServe /
// signal.Notify / Shutdown lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"docengine/auth"
	"docengine/config"
	"docengine/presence"
	"docengine/primitive"
	"docengine/protocol"
	"docengine/protocol/ws"
)

var logger = logging.Logger("docserver")

// exampleSchema is the reference document shape this binary serves: a
// title and body pair, enough to exercise every layer end to end without
// pulling a domain-specific schema into the library itself.
func exampleSchema() *primitive.StructPrimitive {
	return primitive.Struct(
		primitive.F("title", primitive.String().Default("")),
		primitive.F("body", primitive.String().Default("")),
	)
}

func buildAuthenticator(mode, staticToken, staticUser string) auth.Authenticator {
	switch mode {
	case "disabled":
		return auth.Disabled{}
	case "static":
		return auth.NewStaticTable(auth.StaticEntry{
			Token:      staticToken,
			UserID:     staticUser,
			Permission: auth.PermissionWrite,
		})
	default:
		logger.Warnf("unknown auth mode %q, falling back to disabled", mode)
		return auth.Disabled{}
	}
}

func main() {
	httpAddr := flag.String("addr", ":8080", "HTTP listen address")
	storageBackend := flag.String("storage", "memory", "storage backend: memory, redis, badger, mongo")
	walBackend := flag.String("wal", "memory", "WAL backend: memory, redis")
	relayBackend := flag.String("relay", "memory", "cross-process relay backend: memory, redis")
	redisAddr := flag.String("redis", "localhost:6379", "Redis server address")
	redisPassword := flag.String("redis-password", "", "Redis password")
	redisDB := flag.Int("redis-db", 0, "Redis database number")
	keyPrefix := flag.String("key-prefix", "docengine", "key prefix used by Redis/Badger storage keys")
	capacity := flag.Int("capacity", 256, "maximum documents resident in memory at once")
	authMode := flag.String("auth", "disabled", "auth mode: disabled, static")
	staticToken := flag.String("auth-token", "", "bearer token accepted when -auth=static")
	staticUser := flag.String("auth-user", "local", "user id granted when -auth=static")
	autosaveInterval := flag.Duration("autosave-interval", 5*time.Minute, "how often resident documents are snapshotted to storage")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		logging.SetAllLoggers(logging.LevelDebug)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := &config.Options{
		StorageBackend:  config.Backend(*storageBackend),
		WALBackend:      config.Backend(*walBackend),
		RelayBackend:    config.Backend(*relayBackend),
		RedisAddr:       *redisAddr,
		RedisPassword:   *redisPassword,
		RedisDB:         *redisDB,
		KeyPrefix:       *keyPrefix,
		ManagerCapacity: *capacity,
	}
	built, err := config.Build(ctx, opts)
	if err != nil {
		logger.Fatalf("failed to build storage stack: %v", err)
	}
	if built.RedisClient != nil {
		defer built.RedisClient.Close()
	}

	manager := config.NewManager(exampleSchema(), built, opts)
	presenceMgr := presence.NewManager()
	authenticator := buildAuthenticator(*authMode, *staticToken, *staticUser)

	go config.AutoSaveLoop(ctx, manager, *autosaveInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/documents/", func(w http.ResponseWriter, r *http.Request) {
		documentID, action, ok := parseDocumentPath(r.URL.Path)
		if !ok || action != "ws" {
			http.NotFound(w, r)
			return
		}
		connID := r.Header.Get("X-Connection-Id")
		if connID == "" {
			connID = fmt.Sprintf("%s-%d", documentID, time.Now().UnixNano())
		}
		err := ws.Serve(r.Context(), w, r, documentID, func(transport protocol.Transport) *protocol.Connection {
			return protocol.New(connID, documentID, transport, authenticator, manager, presenceMgr)
		})
		if err != nil {
			logger.Debugw("connection closed", "document", documentID, "error", err)
		}
	})

	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}

	go func() {
		logger.Infof("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}

	manager.SaveAllResident(shutdownCtx)
	logger.Info("server stopped")
}

// parseDocumentPath splits "/documents/{id}/{action}" into its parts.
func parseDocumentPath(path string) (documentID, action string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/documents/")
	if trimmed == path {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
