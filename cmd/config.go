package main

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	BlobDir        string `env:"BLOB_DIR,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	WatchUserID    string `env:"WATCH_USER_ID,required=true"`
	BufferSize     int    `env:"BUFFER_SIZE,default=16"`
	DebugPort      int    `env:"DEBUG_PORT,default=8080"`

	// When set, the firestore store is used instead of the local one.
	FirestoreProjectID string `env:"FIRESTORE_PROJECT_ID"`
	GCSBucket          string `env:"GCS_BUCKET"`
}
