/*
Package ports defines the driven ports (interfaces) for the photobooth controller.

These interfaces decouple the capture state machine from the camera hardware, the
image pipeline and whatever screen displays the booth, so the controller runs the same
against a webcam in a terminal, a browser behind HTTP, or fakes in tests.

# Key Interfaces

  - CameraDevice: acquires and releases a live Stream of frames.
  - FrameRenderer: turns a frame into a still and stills into a strip.
  - DisplaySurface: renders the Start, Capture and Results views and status text.
  - Scheduler: arms cancellable timers for countdown ticks.
  - DistributedLocker: guards exclusive camera ownership across processes.
*/
package ports
