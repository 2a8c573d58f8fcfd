// Package transport provides the helpers leaf specifiers share and, in its
// subpackages, the leaf specifier classes themselves.
//
// Key pieces:
// - ConnPeer: splits a net.Conn into Peer halves with half-close support
// - AcceptSource: turns a listener into a lazy stream of Peers
// - PeerConn: presents a Peer as a net.Conn for libraries that want one
//
// Subpackages: tcp, udp, unix, mem, quic, winpipe, stdio, file, exec, trivial.
package transport
