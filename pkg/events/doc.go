/*
Package events provides an in-memory event broker for tunnel group
notifications.

The broker broadcasts every published event to every subscriber. Publishing
never blocks: when the broker buffer is full the event is dropped, and a
subscriber whose own buffer is full misses the event.

# Architecture

	Publisher ──▶ eventCh (buffer: 100) ──▶ broadcast loop
	                                              │
	                     ┌────────────────────────┼──────────────────┐
	                     ▼                        ▼                  ▼
	              Subscriber (50)          Subscriber (50)    Subscriber (50)

# Event Types

Group events:
  - group.state: the group moved to a new lifecycle state
  - app.state: an app registered with a lifecycle.AppManager reported a state

Controller events:
  - controller.added, controller.removed
  - controllers.loaded, controllers.unloaded

Configuration events:
  - config.saved, config.removed: a per-tunnel file was rewritten
  - config.migrated: the legacy file was split into the config directory

Session events:
  - session.closed: the last owner released a shared session

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			log.Logger.Info().
				Str("type", string(ev.Type)).
				Str("message", ev.Message).
				Msg("event")
		}
	}()

	broker.Publish(events.NewEvent(events.EventConfigSaved, "saved web", map[string]string{
		"tunnel": "web",
	}))

A nil *Broker accepts Publish calls and discards them, so components can
take an optional broker without nil checks.
*/
package events
