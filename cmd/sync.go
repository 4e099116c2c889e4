package cmd

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/localfirst/ldb/config"
	"github.com/localfirst/ldb/doc"
	"github.com/localfirst/ldb/log"
	"github.com/localfirst/ldb/metrics"
	"github.com/localfirst/ldb/pkg/certs"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/keys"
	"github.com/localfirst/ldb/registry"
	"github.com/localfirst/ldb/storage"
	syncpkg "github.com/localfirst/ldb/sync"
)

func init() {
	var (
		configPath string
		storeDir   string
		keyFile    string
		docIDs     []string
		tlsCert    string
		tlsKey     string
	)
	syncCommand := &cobra.Command{
		Use:   "sync",
		Short: "Gossip documents with configured peers",
	}
	RootCommand.AddCommand(syncCommand)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived peer: accept connections and gossip the named documents with configured peers",
		Long: "serve opens the named documents, dials every peer in the config " +
			"file (one TCP connection per peer/document pair), and accepts " +
			"inbound connections from peers doing the same, relaying document " +
			"mutations between them until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fail(err)
			}
			if storeDir != "" {
				cfg.StoreDir = storeDir
			}

			kp, err := loadKeyPair(keyFile)
			if err != nil {
				return fail(err)
			}
			store, err := openStore(cfg.StoreDir)
			if err != nil {
				return fail(err)
			}
			defer store.Close(context.Background())

			logger := newLogger(cfg.LogLevel)
			reg := registry.New()
			docs, err := openDocuments(store, reg, kp, docIDs, logger)
			if err != nil {
				return fail(err)
			}

			var certMgr *certs.Manager
			if tlsCert != "" || tlsKey != "" {
				certMgr, err = certs.Load(tlsCert, tlsKey)
				if err != nil {
					return fail(err)
				}
			}

			keyRing := syncpkg.NewKeyRing()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if cfg.MetricsAddr != "" {
				go serveMetrics(cfg.MetricsAddr, logger)
			}

			sessions := dialPeers(ctx, cfg, docs, keyRing, kp, certMgr != nil, logger)
			defer stopSessions(sessions)

			onAccept := func(conn net.Conn, t *syncpkg.TCPTransport) {
				handleInbound(ctx, conn, t, cfg.Peers, docs, keyRing, kp, logger)
			}
			errCh := make(chan error, 1)
			go func() {
				if certMgr != nil {
					errCh <- syncpkg.ListenTLS(ctx, cfg.ListenAddr, certMgr, onAccept)
				} else {
					errCh <- syncpkg.ListenTCP(ctx, cfg.ListenAddr, onAccept)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			select {
			case err := <-errCh:
				if err != nil {
					return fail(err)
				}
			case <-sigCh:
				logger.Info("shutting down")
			}
			return nil
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	serveCmd.Flags().StringVar(&storeDir, "store", "", "badger data directory (overrides config)")
	serveCmd.Flags().StringVar(&keyFile, "key-file", "", "path to the local peer's key file")
	serveCmd.Flags().StringArrayVar(&docIDs, "doc", nil, "a hex-encoded document id to serve (repeatable)")
	serveCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "PEM certificate file; terminates TLS on the gossip listener and dials peers over TLS when set")
	serveCmd.Flags().StringVar(&tlsKey, "tls-key", "", "PEM private key file, paired with --tls-cert")
	serveCmd.MarkFlagRequired("key-file")
	serveCmd.MarkFlagRequired("doc")
	syncCommand.AddCommand(serveCmd)
}

// openDocuments opens every id in docIDs from store into reg, keyed by
// document id for sessions and the inbound handler to look up by.
func openDocuments(store storage.Store, reg *registry.Registry, kp *keys.KeyPair, docIDs []string, logger *log.Entry) (map[id.DocId]*doc.Document, error) {
	out := make(map[id.DocId]*doc.Document, len(docIDs))
	for _, hexID := range docIDs {
		docID, err := parseDocId(hexID)
		if err != nil {
			return nil, err
		}
		d, err := doc.Open(context.Background(), store, reg, kp, docID, logger)
		if err != nil {
			return nil, err
		}
		out[docID] = d
	}
	return out, nil
}

// dialPeers opens one TCP connection, and one gossip Session, per
// (configured peer, locally held document) pair, and starts each session's
// retry loop. There is no shared CA in this deployment model, so a TLS
// dial trusts whatever certificate the peer presents (its identity is
// authenticated at the CRDT layer instead, by the ed25519 signatures every
// leaf carries) rather than verifying a certificate chain.
func dialPeers(ctx context.Context, cfg config.Config, docs map[id.DocId]*doc.Document, keyRing *syncpkg.KeyRing, kp *keys.KeyPair, useTLS bool, logger *log.Entry) []*syncpkg.Session {
	var sessions []*syncpkg.Session
	for _, p := range cfg.Peers {
		peerID, err := parsePeerId(p.Id)
		if err != nil {
			if logger != nil {
				logger.WithField("peer", p.Id).Warn("skipping peer with malformed id")
			}
			continue
		}
		for _, d := range docs {
			var transport *syncpkg.TCPTransport
			var err error
			if useTLS {
				transport, err = syncpkg.DialTLS(ctx, p.Addr, &tls.Config{InsecureSkipVerify: true})
			} else {
				transport, err = syncpkg.DialTCP(ctx, p.Addr)
			}
			if err != nil {
				if logger != nil {
					logger.WithField("addr", p.Addr).Warn("dialing peer failed, skipping it for this document")
				}
				continue
			}
			s := syncpkg.NewSession(d, peerID, transport, keyRing, kp, logger)
			s.Start(ctx)
			sessions = append(sessions, s)
		}
	}
	return sessions
}

func stopSessions(sessions []*syncpkg.Session) {
	for _, s := range sessions {
		s.Stop()
	}
}

// handleInbound drives one accepted connection as a gossip Session. A
// connection carries frames for exactly one document (Session.receive
// applies every frame to its own document unconditionally), so serving
// more than one document over a single listener only works when the dialer
// and this peer agree on which one; with more than one document configured
// this peer can't infer that from the socket alone and closes the
// connection instead of risking misrouted frames.
func handleInbound(ctx context.Context, conn net.Conn, t *syncpkg.TCPTransport, peers []config.Peer, docs map[id.DocId]*doc.Document, keyRing *syncpkg.KeyRing, kp *keys.KeyPair, logger *log.Entry) {
	if len(docs) != 1 {
		if logger != nil {
			logger.WithField("remote", conn.RemoteAddr()).Warn("sync: inbound connection rejected, serve is running more than one document")
		}
		t.Close()
		return
	}
	peerID, ok := matchConfiguredPeer(conn.RemoteAddr(), peers)
	if !ok {
		if logger != nil {
			logger.WithField("remote", conn.RemoteAddr()).Warn("sync: inbound connection from unconfigured peer, closing")
		}
		t.Close()
		return
	}
	var d *doc.Document
	for _, v := range docs {
		d = v
	}
	if logger != nil {
		logger.WithField("remote", conn.RemoteAddr()).Info("sync peer connected")
	}
	syncpkg.NewSession(d, peerID, t, keyRing, kp, logger).Start(ctx)
}

// matchConfiguredPeer identifies an inbound connection by comparing its
// remote host against the host half of each configured peer's dial address.
func matchConfiguredPeer(remote net.Addr, peers []config.Peer) (id.PeerId, bool) {
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return id.PeerId{}, false
	}
	for _, p := range peers {
		ph, _, err := net.SplitHostPort(p.Addr)
		if err != nil || ph != host {
			continue
		}
		if pid, err := parsePeerId(p.Id); err == nil {
			return pid, true
		}
	}
	return id.PeerId{}, false
}

func serveMetrics(addr string, logger *log.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GlobalMetricsRegistry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && logger != nil {
		logger.WithField("err", err).Warn("metrics server stopped")
	}
}
