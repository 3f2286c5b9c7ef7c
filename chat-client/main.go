package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/portal-chat/chat-client/render"
	"github.com/gosuda/portal-chat/chat-client/session"
	"github.com/gosuda/portal-chat/chat-client/wsconn"
)

var rootCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Websocket chat client with a local web UI",
	RunE:  runClient,
}

var (
	flagServer          string
	flagPort            int
	flagRelayURLs       []string
	flagName            string
	flagCredKey         string
	flagTranscriptLimit int
	flagAvatarURL       string
	flagEmojiCDN        string
	flagEmojiASCII      bool
	flagLogLevel        string
)

func init() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", envOr("CHAT_SERVER", "localhost:8000"), "chat server host; the client dials ws://<server>/ws (env CHAT_SERVER)")
	flags.IntVar(&flagPort, "port", 8092, "local UI HTTP port (negative to disable)")
	flags.StringSliceVar(&flagRelayURLs, "relay", strings.Split(os.Getenv("RELAY"), ","), "optional Portal relay URL(s) to expose the UI through; repeat or comma-separated (env RELAY)")
	flags.StringVar(&flagName, "name", "chat-client", "UI title and relay lease name")
	flags.StringVar(&flagCredKey, "cred-key", "", "optional relay credential key (base64 encoded)")
	flags.IntVar(&flagTranscriptLimit, "transcript-limit", session.DefaultTranscriptLimit, "max messages kept in the transcript (0 for unbounded)")
	flags.StringVar(&flagAvatarURL, "avatar-url", render.DefaultAvatarURL, "avatar service base URL; the MD5 of the username is appended")
	flags.StringVar(&flagEmojiCDN, "emoji-cdn", render.DefaultEmojiCDN, "base URL of emoji PNGs named by codepoint")
	flags.BoolVar(&flagEmojiASCII, "emoji-ascii", true, "convert ASCII smileys such as :) to emoji")
	flags.StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat-client command")
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint, err := wsconn.Endpoint(flagServer)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, err := wsconn.Dial(dialCtx, endpoint)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	events := newBroker()
	renderer := &render.Renderer{
		AvatarBase: flagAvatarURL,
		Emoji:      render.Emojifier{CDN: flagEmojiCDN, ASCII: flagEmojiASCII},
	}
	sess := session.New(conn,
		session.WithRenderer(renderer),
		session.WithTranscriptLimit(flagTranscriptLimit),
		session.WithNotifier(events),
		session.WithObserver(events),
	)

	// Single reader: inbound records are applied one at a time, in order.
	go func() {
		err := readInbound(ctx, conn, sess)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("[chat] connection lost; not reconnecting")
		} else {
			log.Warn().Msg("[chat] server closed the connection; not reconnecting")
		}
	}()

	handler := NewHandler(flagName, sess, events)

	clients, listeners, err := listenRelays(flagRelayURLs, flagName, flagCredKey)
	if err != nil {
		return err
	}
	if len(listeners) == 0 && flagPort < 0 {
		return fmt.Errorf("nothing to serve: local port disabled and no relay given via --relay or RELAY env")
	}

	for i, ln := range listeners {
		idx := i
		relaySrv := newUIServer(ctx, "", handler)
		go func() {
			if err := relaySrv.Serve(ln); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
				log.Error().Err(err).Int("listener", idx).Msg("[chat] relay http error")
			}
		}()
	}

	var httpSrv *http.Server
	if flagPort >= 0 {
		httpSrv = newUIServer(ctx, fmt.Sprintf(":%d", flagPort), handler)
		log.Info().Msgf("[chat] UI at http://127.0.0.1:%d (server %s)", flagPort, endpoint)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[chat] local http stopped")
			}
		}()
	}

	<-ctx.Done()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range clients {
		_ = c.Close()
	}
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("[chat] http server shutdown error")
		}
	}
	log.Info().Msg("[chat] shutdown complete")
	return nil
}

// readInbound feeds every inbound frame to sess in arrival order. Malformed
// records are logged and dropped; reading continues.
func readInbound(ctx context.Context, conn *wsconn.Conn, sess *session.Session) error {
	return conn.Listen(ctx, func(payload []byte) {
		if _, err := sess.Receive(payload); err != nil {
			log.Warn().Err(err).Msg("[chat] drop inbound message")
		}
	})
}

// newUIServer builds the UI http.Server. Request contexts derive from ctx, so
// open event streams end as soon as the client is told to stop.
func newUIServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// listenRelays opens one Portal listener per relay URL so the UI is reachable
// through the relay as well as locally.
func listenRelays(urls []string, name, credKey string) ([]*sdk.RDClient, []net.Listener, error) {
	var relays []string
	for _, raw := range urls {
		for _, p := range strings.Split(raw, ",") {
			if u := strings.TrimSpace(p); u != "" {
				relays = append(relays, u)
			}
		}
	}
	if len(relays) == 0 {
		return nil, nil, nil
	}

	cred := sdk.NewCredential()
	if credKey != "" {
		key, err := base64.StdEncoding.DecodeString(credKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode cred key: %w", err)
		}
		cred, err = cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("new credential from private key: %w", err)
		}
	}

	var clients []*sdk.RDClient
	var listeners []net.Listener
	for _, u := range relays {
		client, err := sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = []string{u} })
		if err != nil {
			log.Error().Err(err).Str("url", u).Msg("new relay client failed")
			continue
		}
		clients = append(clients, client)
		ln, err := client.Listen(cred, name, []string{"http/1.1"})
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("listen (%s): %w", u, err)
		}
		log.Info().Str("url", u).Msg("[chat] UI published through relay")
		listeners = append(listeners, ln)
	}
	return clients, listeners, nil
}
