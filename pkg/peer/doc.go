// Package peer holds the types every endpoint shares.
//
// A specifier string is parsed into a tree of Nodes. Constructing a Node
// yields a Constructor: one Peer or a stream of them, optionally with a
// transform applied to each. A Peer is a live duplex connection; two of them
// make a session.
//
// ReadDebt adapts message-oriented sources to byte-stream readers, and
// ProgramState carries the registries shared by the whole run.
package peer
