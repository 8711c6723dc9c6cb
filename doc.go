/*
Package photobooth runs the capture sequence of a selfie photobooth: open the camera,
count down, take a still, repeat until the strip is full, then compose the strip.

The sequence is a pure state machine (internal/runtime.Transition) driven by a
controller that talks to the outside through ports: a CameraDevice supplying frames,
a FrameRenderer producing PNG stills and the strip, a DisplaySurface showing the
views, and a Scheduler arming countdown ticks. Adapters for each live under pkg/adapters
and the CLI in cmd/photobooth wires them to a terminal, an HTTP API or an MCP server.

# Usage

	booth, err := photobooth.New(synthetic.New(), surface)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := booth.StartSession(ctx); err != nil {
		log.Fatal(err) // camera unavailable
	}

	// Each call starts one countdown; calls during a countdown are ignored.
	booth.BeginCaptureCycle(ctx)

	// Once every photo is taken:
	path, err := booth.WriteStrip(ctx, ".")

Only one countdown runs at a time, and a restart invalidates pending ticks and camera
acquisitions so late callbacks never touch a fresh session.
*/
package photobooth
