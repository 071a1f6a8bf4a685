// Package interaction implements the command channel of a hub session.
//
// Every command carries a per-session integer id. The hub answers with a
// result frame (or a pong for ping) carrying the same id; subscriptions keep
// receiving event frames under the id of the subscribe_events command until
// they are cancelled.
//
// # Client Usage
//
//	client := interaction.NewClient(conn)
//
//	// feed every inbound frame from the session reader
//	go func() {
//	    for {
//	        frame, err := conn.ReadFrame()
//	        if err != nil {
//	            client.Close()
//	            return
//	        }
//	        _ = client.HandleFrame(frame)
//	    }
//	}()
//
//	states, err := client.GetStates(ctx)
//	_, err = client.CallService(ctx, "light", "turn_on", map[string]any{"entity_id": "light.kitchen"})
//
//	sub, err := client.SubscribeEvents(ctx, "state_changed", func(id uint64, ev *wire.EventMessage) {
//	    queue <- ev
//	})
//	defer sub.Unsubscribe(ctx)
//
// A failed result is returned as *ResultError and never affects the
// session. Closing the client fails every pending request with
// ErrClientClosed.
package interaction
