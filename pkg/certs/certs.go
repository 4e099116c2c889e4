// Package certs loads a TLS keypair for sync's gossip listener, the narrow
// piece of _examples/original_source/cloud-relay/src/acme.rs's certificate
// bootstrap this system keeps: a peer process given a cert/key pair can
// terminate TLS on its gossip socket instead of running plaintext TCP.
// Automated issuance/renewal (the rest of acme.rs) is out of core scope
// (spec.md §1 treats relay infrastructure as out-of-core); an operator who
// wants ACME can point --tls-cert/--tls-key at whatever a separate ACME
// client maintains on disk.
package certs

import "crypto/tls"

// Manager hands out a peer's gossip TLS certificate, reloadable by
// constructing a fresh Manager and swapping it in (no in-process watch).
type Manager struct {
	cert *tls.Certificate
}

// Load reads a PEM certificate and private key from disk.
func Load(certFile, keyFile string) (*Manager, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &Manager{cert: &cert}, nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (m *Manager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return m.cert, nil
}

// Config builds a server-side tls.Config backed by this manager.
func (m *Manager) Config() *tls.Config {
	return &tls.Config{GetCertificate: m.GetCertificate}
}
