package featureflag

type Flag string

const (
	// New worlds record index entries at every visited node.
	FlagLegacyPathEntries Flag = "LEGACY_PATH_ENTRIES"

	// New worlds redistribute split entries by the triggering point.
	FlagLegacySplitRedistribution Flag = "LEGACY_SPLIT_REDISTRIBUTION"

	// New worlds only rebuild their index on explicit requests.
	FlagDisableFrameRebuild Flag = "DISABLE_FRAME_REBUILD"

	// Disables the streaming endpoint.
	FlagDisableWebsocket Flag = "DISABLE_WEBSOCKET"
)
