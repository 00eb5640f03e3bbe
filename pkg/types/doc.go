/*
Package types defines the data model shared by every tunnelgroup package.

It holds the lifecycle State enum, the flat tunnel config Record, and the
interfaces at the edge of the group: Controller (one tunnel), Session (a
shared transport session), Executor (the worker pool as seen by controllers),
Coordinator (the group as seen by controllers) and Factory (record to
controller). Journal entries written by pkg/storage live here too so that the
loader and the group can produce them without importing the store.

# Records

A Record is the prefix-stripped view of one tunnel's properties:

	tunnel.0.type=client
	tunnel.0.name=irc
	tunnel.0.listenPort=6668

becomes

	Record{"type": "client", "name": "irc", "listenPort": "6668",
	       "configFile": "/etc/tunnelgroup/tunnel.config.d/00-irc-config"}

The synthetic configFile key is added at load time. A Record without a type
key is not a tunnel and is skipped by the loader.

# Controllers and sessions

Controllers are built by a Factory and hold a Coordinator back-reference.
While running they Acquire the Session they use and Release it on stop; the
group closes a session only when its last owner releases it.
*/
package types
