package contracts

import "github.com/julienschmidt/httprouter"

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// StreamingHandler registers long-lived routes that bypass the request
// timeout, idempotency and body middleware.
type StreamingHandler interface {
	RegisterStreamRoutes(*httprouter.Router)
}
