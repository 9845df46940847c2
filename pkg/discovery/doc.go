// Package discovery advertises running session servers over mDNS/DNS-SD
// and browses for them.
//
// A server is announced as one service instance. The instance name is
// user-chosen; TXT records carry free-form key=value metadata, with the
// reserved key "id" holding the server ID and "tls" set when the server
// requires TLS.
package discovery
