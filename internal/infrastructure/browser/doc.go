// Package browser provides a bounded pool of headless Chrome sessions driven
// through the Chrome DevTools Protocol.
//
// Every operation borrows a pool slot, gets a fresh browser session, and
// hands the caller a Page. The session is torn down and the slot released on
// every exit path, including errors, context cancellation, and panics inside
// the callback.
package browser
