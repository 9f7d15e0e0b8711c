package common

const (
	// APIPath is the upstream hashtag generation endpoint. Any request whose
	// path contains it is treated as an API call rather than a static asset.
	APIPath = "/hashtags"

	// HistoryKey is the key-value slot holding the serialized history document.
	HistoryKey = "htgenHistory"

	// QueuedHeaderName marks a synthetic response produced by the worker after
	// an offline request was stored for later replay.
	QueuedHeaderName = "X-Htgen-Queued"

	// RequestIDHeaderName carries a per-upload correlation id.
	RequestIDHeaderName = "X-Request-Id"

	// OfflineStateMessageType is the only message type broadcast to UI surfaces.
	OfflineStateMessageType = "OFFLINE_STATE"

	// OfflineQueuedMessage is returned in place of an API response when the
	// request was queued.
	OfflineQueuedMessage = "You are offline. Your request will be processed when you are back online."
)
