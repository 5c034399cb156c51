// Package frame implements the message protocol between the desktop master
// and the applications it embeds.
//
// A [Window] is an in-process stand-in for a browser window: it has a fixed
// origin, delivers one message at a time to its listeners, and drops any
// message whose target origin does not match its own. Windows embed other
// windows under a name; the master looks frames up as "app-window-<appName>".
//
// The [Master] is the trust anchor. It accepts SYSTEM_CONNECT from any frame
// it embeds, keeps a bounded registry keyed by app key, and answers requests
// only to the origin a child registered with.
//
// A [Child] trusts exactly one master origin. Each call gets a correlation id
// and a deadline; replies from any other origin, or with an unknown id, are
// ignored.
package frame
