// Package notifications builds push notification payloads, journals
// delivery attempts, and fans in-app events out to connected WebSocket
// clients.
//
// Push payloads follow the service-worker contract: a JSON object with
// title, body, icon, badge, tag, type, and a data.url the client opens
// when the notification is clicked. Actual delivery to a browser push
// service happens behind the Dispatcher interface; every attempt is
// journaled in notification_log and failed attempts are retried with
// exponential backoff by the RetryWorker.
package notifications
