// Command patchesd wires the commit pipeline to a durable MongoDB store and
// a Redis fan-out notifier, and exposes commitChanges (POST) and deleteDoc
// (DELETE) over a minimal HTTP transport; undeleteDoc has no route.
//
// Grounded on the pack's nodestorage/v2/example/guild_territory/main.go
// (connect, build collections/cache/storage, build a service on top, log
// progress with the standard logger), generalized from one demo document
// type to the generic OT pipeline this module implements.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"patches/change"
	"patches/ids"
	"patches/notify/redispubsub"
	"patches/server"
	"patches/server/store/mongostore"
)

func main() {
	var (
		mongoURI = flag.String("mongo-uri", envOr("PATCHESD_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
		mongoDB  = flag.String("mongo-db", envOr("PATCHESD_MONGO_DB", "patches"), "MongoDB database name")
		redisAddr = flag.String("redis-addr", envOr("PATCHESD_REDIS_ADDR", "localhost:6379"), "Redis address for commit notifications")
		addr     = flag.String("addr", envOr("PATCHESD_ADDR", ":8080"), "HTTP listen address")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)

	db := mongoClient.Database(*mongoDB)
	store := mongostore.New(
		db.Collection("changes"),
		db.Collection("versions"),
		db.Collection("tombstones"),
		&mongostore.Options{Logger: logger},
	)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatal("failed to ensure MongoDB indexes", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	notifier := redispubsub.New(redisClient, logger)

	pipeline := server.NewPipeline(store, notifier, &server.PipelineOptions{
		SessionTimeout: 60 * time.Second,
		Logger:         logger,
	})

	srv := &daemon{pipeline: pipeline, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/docs/", srv.handleDoc)

	httpServer := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Info("patchesd listening", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// daemon adapts the Pipeline to a minimal JSON/HTTP transport. It is
// intentionally small: the reconciliation and OT logic all live in the
// server and transform packages, this is just wire plumbing.
type daemon struct {
	pipeline *server.Pipeline
	logger   *zap.Logger
}

type commitRequest struct {
	Changes  []change.ChangeInput `json:"changes"`
	ClientID string               `json:"clientId"`
}

type commitResponse struct {
	Prior []change.Change `json:"prior,omitempty"`
	New   []change.Change `json:"new,omitempty"`
}

func (d *daemon) handleDoc(w http.ResponseWriter, r *http.Request) {
	docIDStr := r.URL.Path[len("/v1/docs/"):]
	docID, err := ids.ParseDocID(docIDStr)
	if err != nil {
		http.Error(w, "invalid docId", http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost:
		d.handleCommit(w, r, docID)
	case r.Method == http.MethodDelete:
		d.handleDelete(w, r, docID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *daemon) handleCommit(w http.ResponseWriter, r *http.Request, docID ids.DocID) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var clientID ids.ClientID
	if req.ClientID != "" {
		if err := clientID.UnmarshalText([]byte(req.ClientID)); err != nil {
			http.Error(w, "invalid clientId", http.StatusBadRequest)
			return
		}
	}

	prior, newChanges, err := d.pipeline.CommitChanges(r.Context(), docID, req.Changes, clientID)
	if err != nil {
		d.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commitResponse{Prior: prior, New: newChanges})
}

func (d *daemon) handleDelete(w http.ResponseWriter, r *http.Request, docID ids.DocID) {
	var clientID ids.ClientID
	if cid := r.URL.Query().Get("clientId"); cid != "" {
		if err := clientID.UnmarshalText([]byte(cid)); err != nil {
			http.Error(w, "invalid clientId", http.StatusBadRequest)
			return
		}
	}
	if err := d.pipeline.DeleteDoc(r.Context(), docID, clientID); err != nil {
		d.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *daemon) writeError(w http.ResponseWriter, err error) {
	d.logger.Warn("request failed", zap.Error(err))
	switch err.(type) {
	case server.ErrDocExists, server.ErrClientAhead, server.ErrInconsistentBaseRev:
		http.Error(w, err.Error(), http.StatusConflict)
	case server.ErrDocDeleted:
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
