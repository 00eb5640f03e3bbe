/*
Package tunnel provides the TCP tunnel controllers run by a group.

Four types are understood: client and httpclient listen locally and carry
each accepted connection as a yamux stream to a remote server tunnel;
server and httpserver accept yamux transports and relay every stream to
their target. The http variants are relayed byte for byte like their plain
counterparts.

A record looks like:

	name=web
	type=client
	listenHost=127.0.0.1
	listenPort=8080
	targetHost=tunnels.example.net
	targetPort=7654
	sharedClient=true
	startOnLoad=true

Client tunnels with sharedClient=true and the same target reuse one
session, handed out by SharedSessions and reference-counted by the
coordinator; the session is closed when the last of them stops. Every
connection handler runs on the coordinator's worker pool.
*/
package tunnel
