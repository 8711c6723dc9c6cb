/*
Package domain contains the core domain models of the photobooth capture sequence.

It defines the session snapshot, the events that drive the capture state machine and
the effects the machine asks its host to perform. This package is kept pure and free
of I/O, so the transition logic can be exercised without a camera or a screen.

# Key Entities

  - SessionState: the controller-owned snapshot (phase, captured images, stream handle, countdown).
  - Event: an input to the state machine (start, begin cycle, tick, frame captured, restart...).
  - Effect: a side-effect request for the host (show a view, schedule a tick, release the stream...).
  - Artifact: the composed photo strip offered for download.
*/
package domain
