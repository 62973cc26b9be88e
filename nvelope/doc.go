/*
Package nvelope holds the transformers that sit between HTTP and
nrpc procedures.

There are two codecs.  RPC is the internal protocol: a JSON envelope
of data plus meta that lets dates, big integers, NaN, sets, maps with
non-string keys, and URLs survive the trip.  Values that contain
[]byte or File switch the body to multipart/form-data.  OpenAPI is for
everyone else: inputs come from the query string or from a body
decoded by Content-Type, forms use bracket notation, and responses are
negotiated with the Accept header.

DeferredWriter allows output to be buffered and then abandoned so that
an error response can replace a partial success.

MakeResponseEncoder turns the (Response, error) returned by the rest
of an nject chain into a response using the request's Codec.

CatchPanic makes it easy to turn panics into error returns.
*/
package nvelope
