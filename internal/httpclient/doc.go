// Package httpclient executes the upload requests a sweep is made of.
//
// The package covers three steps of a single request:
//   - Loading the test image once via a [PayloadSource]
//   - Building a multipart/form-data upload carrying the bearer token ([RequestBuilder])
//   - Sending it with a per-request deadline and classifying the result ([Executor])
//
// # Executing Requests
//
//	builder, err := httpclient.NewRequestBuilder(targetURL, "file", nil)
//	if err != nil {
//		return err
//	}
//	exec := httpclient.NewExecutor(httpclient.NewClient(100), builder, httpclient.ExecutorOptions{})
//	outcome := exec.Execute(ctx, cred, payload, 30*time.Second)
//
// Execute never returns an error: every terminal condition becomes a
// [metrics.Outcome]. Latency runs from dispatch until the response body has
// been fully read. Requests abandoned at the deadline are reported as
// timeouts with the deadline as their latency.
//
// # Classification
//
//   - 2xx: success
//   - deadline exceeded: timeout
//   - refused, reset, DNS and other dial failures: connection error
//   - 401 and 403: auth error
//   - any other status: server error
//   - anything else: other
package httpclient
