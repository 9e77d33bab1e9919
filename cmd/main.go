package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"mentorlink/contract"
	"mentorlink/internal"
	"mentorlink/repositories"
	"mentorlink/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the listener lifecycle, and
// centralizes error reporting so deferred cleanups (database close, engine
// stop) always execute before the process exits.
func run() error {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store    contract.ConversationStore
		profiles contract.ProfileStore
		blobs    contract.BlobStorage
	)
	if config.FirestoreProjectID != "" {
		client, err := firestore.NewClient(ctx, config.FirestoreProjectID)
		if err != nil {
			return fmt.Errorf("firestore client: %w", err)
		}
		defer func() { _ = client.Close() }()
		firestoreStore := repositories.NewFirestoreStore(client, log)
		store, profiles = firestoreStore, firestoreStore

		gcs, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("storage client: %w", err)
		}
		defer func() { _ = gcs.Close() }()
		blobs = repositories.NewGCSBlobStorage(gcs, config.GCSBucket)
	} else {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.ERROR))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		index, err := repositories.NewMessageIndex(config.BlugeFilepath)
		if err != nil {
			return fmt.Errorf("search index opening failed: %w", err)
		}
		defer func() { _ = index.Close() }()
		local := repositories.NewLocalStore(db, log, index)
		store, profiles = local, local
		blobs = repositories.NewDiskBlobStorage(config.BlobDir)
	}

	service := services.NewChatService(log, store, profiles, blobs, config.BufferSize)
	engine, updates, err := service.OpenInbox(ctx, config.WatchUserID)
	if err != nil {
		return fmt.Errorf("inbox listener failed to start: %w", err)
	}
	defer engine.StopListening()

	internal.StartDebugServer(log, config.DebugPort, config.WatchUserID, engine)

	log.Info("Watching inbox", "user", config.WatchUserID)
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down...")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Err != nil {
				return fmt.Errorf("inbox listener failed: %w", update.Err)
			}
			log.Info("Inbox update",
				"conversations", len(update.Conversations),
				"unread", update.TotalUnread)
		}
	}
}
