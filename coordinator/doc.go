/*
Package coordinator wraps a transport.Transport so that outgoing calls always carry the best
available access token while at most one credential operation (generate, renew or refresh) runs
at a time.

Every call passes an admission decision before it is sent:

  - a blocking operation (refresh or generate) is running: the call is queued;
  - the access token is valid: the call proceeds, and if the token is older than RenewAfter a
    background renew is started without holding anyone up;
  - the access token is invalid: a refresh (if the refresh token is valid) or a generate (if the
    embedder is connected) is started and the call is queued;
  - nothing can produce a token: the call proceeds without one.

When an operation settles, including every fallback it triggered (renew falls back to refresh,
refresh falls back to generate), the queue is drained in arrival order. Each queued call repeats
the admission decision with the new state, so it proceeds with the new token, waits for another
operation, or fails with the operation's original error when nothing else can be tried.

A call answered with HTTP 401 drops the access token and is retried once when a refresh or
generate is possible. Errors that are not recovered are passed to the configured ErrorHandler and
then returned unchanged.
*/
package coordinator
