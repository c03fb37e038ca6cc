package persistentworker

import "context"

// Handler processes individual work requests.
// The Worker calls HandleRequest for one request at a time, so
// implementations need not be safe for concurrent use.
type Handler interface {
	// HandleRequest processes a single work request and returns a response.
	// A failing action is reported through the response's ExitCode and
	// Output. A non-nil error means the action could not be attempted at all;
	// it terminates the Worker.
	HandleRequest(ctx context.Context, req WorkRequest) (WorkResponse, error)
}

// HandlerFunc is a function adapter that implements Handler.
type HandlerFunc func(context.Context, WorkRequest) (WorkResponse, error)

// HandleRequest calls the function itself.
func (f HandlerFunc) HandleRequest(ctx context.Context, req WorkRequest) (WorkResponse, error) {
	return f(ctx, req)
}
