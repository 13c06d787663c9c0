// Package alerts delivers outbound notifications when a reading trips a
// clinical rule. Delivery is fire-and-forget: Dispatcher.Notify records the
// alert, applies the per-patient cooldown and returns immediately; each
// notifier runs in its own goroutine and failures are only logged.
//
// Channels: Twilio (WhatsApp or SMS) and Slack, Teams or generic HTTP
// webhooks, all over resty.
package alerts
