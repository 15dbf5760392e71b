package main

import (
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"justintune/db"
	"justintune/fingerprint"
	"justintune/score"
	"justintune/session"
	"justintune/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

type healthResponse struct {
	Status       string `json:"status"`
	Pieces       int    `json:"pieces"`
	Fingerprints int    `json:"fingerprints"`
	Sessions     int    `json:"active_sessions"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func newHealthHandler(idx *fingerprint.Index, manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:       "ok",
			Pieces:       idx.PieceCount(),
			Fingerprints: idx.Size(),
			Sessions:     manager.ActiveCount(),
		})
	}
}

// loadIndex hydrates the in-memory fingerprint index and piece registry
// from the configured database.
func loadIndex(client db.Client, n int) (*fingerprint.Index, *score.SMFProvider, error) {
	entries, err := client.LoadFingerprints()
	if err != nil {
		return nil, nil, err
	}
	pieces, err := client.AllPieces()
	if err != nil {
		return nil, nil, err
	}

	names := make(map[uint32]string, len(pieces))
	for _, p := range pieces {
		names[p.ID] = p.Name
	}
	return fingerprint.NewIndexFromPostings(n, entries, names), score.NewSMFProvider(pieces), nil
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	cfg := session.ConfigFromEnv()

	dbClient, err := db.NewDBClient()
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer dbClient.Close()

	idx, provider, err := loadIndex(dbClient, cfg.NgramSize)
	if err != nil {
		log.Fatalf("failed to load fingerprint index: %v", err)
	}
	log.Printf("Loaded %d pieces, %d fingerprint entries (n=%d)", idx.PieceCount(), idx.Size(), idx.N())

	manager := session.NewManager(cfg, idx, provider, score.NewWindowAligner)
	controller := newSocketController(manager)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		connURL := socket.URL()
		log.Printf("CONNECTED: %s, transport: %s, remote addr: %s\n", socket.ID(), connURL.String(), socket.RemoteAddr())
		controller.handleConnect(socket)
		return nil
	})

	server.OnEvent("/", "midi_note", func(socket socketio.Conn, msg string) {
		// Notes are handled synchronously so one session's events keep
		// their order on the wire.
		controller.handleMIDINote(socket, msg)
	})

	server.OnEvent("/", "reset", func(socket socketio.Conn) {
		log.Printf("reset received from %s\n", socket.ID())
		controller.handleReset(socket)
	})

	server.OnEvent("/", "get_status", func(socket socketio.Conn) {
		controller.handleStatus(socket)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
		controller.handleDisconnect(s)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/health", newHealthHandler(idx, manager))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key_default := "/etc/letsencrypt/live/localport.online/privkey.pem"
		cert_file_default := "/etc/letsencrypt/live/localport.online/fullchain.pem"

		cert_key := utils.GetEnv("CERT_KEY", cert_key_default)
		cert_file := utils.GetEnv("CERT_FILE", cert_file_default)
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}

// pieceMeta is one row of the optional metadata CSV: file,composer,track.
type pieceMeta struct {
	composer string
	track    string
}

func loadMetadata(path string) (map[string]pieceMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	meta := make(map[string]pieceMeta, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		meta[strings.TrimSpace(row[0])] = pieceMeta{
			composer: strings.TrimSpace(row[1]),
			track:    strings.TrimSpace(row[2]),
		}
	}
	return meta, nil
}

// buildIndex walks a directory of score MIDI files, registers each
// piece and stores its n-gram fingerprints. A file that fails to parse
// is skipped, not fatal.
func buildIndex(dir, metaPath string) {
	cfg := session.ConfigFromEnv()

	dbClient, err := db.NewDBClient()
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer dbClient.Close()

	meta := map[string]pieceMeta{}
	if metaPath != "" {
		meta, err = loadMetadata(metaPath)
		if err != nil {
			log.Fatalf("failed to read metadata CSV: %v", err)
		}
	}

	files, err := score.WalkMIDIFiles(dir)
	if err != nil {
		log.Fatalf("failed to scan %s: %v", dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("no MIDI files found under %s", dir)
	}

	idx := fingerprint.NewIndex(cfg.NgramSize)
	indexed := 0
	for _, path := range files {
		pitches, err := score.ExtractPitches(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		if len(pitches) < cfg.NgramSize {
			log.Printf("skipping %s: only %d notes", path, len(pitches))
			continue
		}

		base := filepath.Base(path)
		composer, track := "", strings.TrimSuffix(base, filepath.Ext(base))
		if m, ok := meta[base]; ok {
			composer, track = m.composer, m.track
		}
		name := track
		if composer != "" {
			name = composer + ": " + track
		}

		pieceID, err := dbClient.RegisterPiece(name, composer, track, path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}

		count := idx.AddPiece(pieceID, name, pitches)
		indexed++
		log.Printf("indexed %s (%d notes, %d fingerprints)", name, len(pitches), count)
	}

	if indexed == 0 {
		log.Fatal("no pieces indexed")
	}
	if err := dbClient.StoreFingerprints(idx.Entries()); err != nil {
		log.Fatalf("failed to store fingerprints: %v", err)
	}
	log.Printf("Done: %d pieces, %d fingerprint entries", indexed, idx.Size())
}

// identifyFile runs a one-shot identification of a MIDI file against
// the stored index and prints the ranked candidates.
func identifyFile(path string) {
	cfg := session.ConfigFromEnv()

	dbClient, err := db.NewDBClient()
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer dbClient.Close()

	idx, _, err := loadIndex(dbClient, cfg.NgramSize)
	if err != nil {
		log.Fatalf("failed to load fingerprint index: %v", err)
	}

	pitches, err := score.ExtractPitches(path)
	if err != nil {
		log.Fatalf("failed to read %s: %v", path, err)
	}

	results := idx.Identify(pitches, cfg.TopK)
	if len(results) == 0 {
		log.Println("no matches")
		return
	}
	for _, r := range results {
		log.Printf("%d. %s (matches=%d confidence=%.1f coverage=%.1f)",
			r.Rank, r.Piece, r.Matches, r.Confidence, r.Coverage)
	}
}

// erase wipes the piece registry and fingerprint store.
func erase() {
	dbClient, err := db.NewDBClient()
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer dbClient.Close()

	if err := dbClient.DeleteAll(); err != nil {
		log.Fatalf("failed to erase database: %v", err)
	}
	log.Println("Database erased")
}
