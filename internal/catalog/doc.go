// Package catalog maintains the registry of known broker topics.
//
// A topic record is created lazily the first time any device publishes
// or subscribes to a path. Each record carries two permission flags:
// is_public gates publication and allow_subscribe gates subscription.
// New topics default to fully open; operators tighten flags afterwards.
package catalog
