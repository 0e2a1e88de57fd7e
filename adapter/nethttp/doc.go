// Package nethttp attaches the admission pipeline to net/http servers and
// clients.
//
// Middleware works with any router that accepts func(http.Handler)
// http.Handler; with github.com/gorilla/mux it also resolves the matched
// route template for per-route policies:
//
//	router := mux.NewRouter()
//	router.HandleFunc("/v1/items/{id}", getItem).Methods(http.MethodGet)
//
//	mw, err := nethttp.Middleware(pipeline, nethttp.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	router.Use(mw)
//
// Transport signs and authenticates outgoing requests:
//
//	client := &http.Client{
//	    Transport: nethttp.NewTransport(nil, outbound),
//	}
package nethttp
