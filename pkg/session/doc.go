/*
Package session tracks which tunnel controllers share a transport session.

Controllers that use the same client identity share one session. Each one
calls Acquire when it starts using the session and Release when it stops.
The session is destroyed after the last Release, outside the registry lock.

# Architecture

	  client "web"  ──Acquire──┐
	  client "api"  ──Acquire──┼──▶  sessions[id] = {session, owners}
	  client "mail" ──Acquire──┘            │
	                                        │ last Release
	                                        ▼
	                               delete entry, unlock
	                                        │
	                                        ▼
	                               session.Destroy()
	                                        │
	                          ┌─────────────┴─────────────┐
	                          ▼                           ▼
	                  session.closed event      close error: logged,
	                                            counted, not retried

Entries are keyed by the session ID. An entry exists only while it has at
least one owner.

# Rules

  - Acquire is idempotent: the same owner counts once
  - Release of a non-owner leaves the count unchanged
  - Releasing a session that was never acquired still destroys it, with a
    warning
  - Destroy runs without the lock held, so a slow close never blocks
    other controllers
  - Session implementations must tolerate being destroyed twice

# Usage

	sessions := session.NewRegistry(broker)

	sessions.Acquire(web, sess)
	sessions.Acquire(api, sess)
	sessions.Owners(sess.ID()) // 2

	sessions.Release(web, sess) // still in use
	sessions.Release(api, sess) // destroyed

The group exposes the registry through types.Coordinator, so controllers
only ever see Acquire and Release.

# Metrics

  - tunnelgroup_sessions_active: sessions with at least one owner
  - tunnelgroup_session_owners: total ownerships
  - tunnelgroup_session_close_errors_total: failed destroys
*/
package session
