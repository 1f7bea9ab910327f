package videos

import (
	"encoding/json"
	"fmt"
)

// EventKind enumerates the webhook event kinds this service reacts to.
// Everything else maps to EventUnknown and is acknowledged without effect.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventAssetCreated
	EventAssetReady
	EventRenditionsReady
)

const (
	eventTypeAssetCreated    = "video.upload.asset_created"
	eventTypeAssetReady      = "video.asset.ready"
	eventTypeRenditionsReady = "video.asset.static_renditions.ready"
)

// String returns the provider's wire name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventAssetCreated:
		return eventTypeAssetCreated
	case EventAssetReady:
		return eventTypeAssetReady
	case EventRenditionsReady:
		return eventTypeRenditionsReady
	default:
		return "unknown"
	}
}

// ParseEventKind maps a wire type to an EventKind.
func ParseEventKind(s string) EventKind {
	switch s {
	case eventTypeAssetCreated:
		return EventAssetCreated
	case eventTypeAssetReady:
		return EventAssetReady
	case eventTypeRenditionsReady:
		return EventRenditionsReady
	default:
		return EventUnknown
	}
}

// PlaybackID is one entry of an asset's playback ID list.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// RenditionFile is one downloadable rendition of an asset.
type RenditionFile struct {
	Name   string `json:"name"`
	Ext    string `json:"ext"`
	Status string `json:"status"`
}

// StaticRenditions holds the rendition file list of a
// static_renditions.ready event.
type StaticRenditions struct {
	Status string          `json:"status"`
	Files  []RenditionFile `json:"files"`
}

// EventData is the data section of a webhook body. Fields are populated
// depending on the event kind.
type EventData struct {
	AssetID          string            `json:"asset_id"`
	UploadID         string            `json:"upload_id"`
	Duration         float64           `json:"duration"`
	PlaybackIDs      []PlaybackID      `json:"playback_ids"`
	StaticRenditions *StaticRenditions `json:"static_renditions"`
}

// Event is a decoded webhook event.
type Event struct {
	Kind     EventKind
	RawType  string
	ObjectID string
	Data     EventData
}

type webhookBody struct {
	Type   string `json:"type"`
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
	Data EventData `json:"data"`
}

// ParseEvent decodes a raw webhook body into a typed Event.
func ParseEvent(body []byte) (Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return Event{}, fmt.Errorf("decode webhook body: %w", err)
	}
	return Event{
		Kind:     ParseEventKind(wb.Type),
		RawType:  wb.Type,
		ObjectID: wb.Object.ID,
		Data:     wb.Data,
	}, nil
}

// UploadID returns the correlation key for the event. For asset_created the
// object itself is the upload; asset-level events carry the upload ID in the
// data section.
func (e Event) UploadID() string {
	switch e.Kind {
	case EventAssetCreated:
		return e.ObjectID
	case EventAssetReady, EventRenditionsReady:
		return e.Data.UploadID
	default:
		return ""
	}
}

// AssetID returns the asset identifier carried by the event, if any. For
// asset.ready the object is the asset; asset_created carries it in data.
func (e Event) AssetID() string {
	switch e.Kind {
	case EventAssetCreated:
		return e.Data.AssetID
	case EventAssetReady:
		return e.ObjectID
	default:
		return ""
	}
}

// ThumbnailURL derives the thumbnail location for a playback ID. The result
// depends on nothing but the playback ID.
func ThumbnailURL(playbackID string) string {
	return fmt.Sprintf("https://image.mux.com/%s/thumbnail.jpg?time=0", playbackID)
}

// ChooseRendition picks the downloadable rendition to record, preferring the
// high-quality MP4 over the low-quality one. Returns "" when neither exists.
func ChooseRendition(files []RenditionFile) string {
	for _, want := range []string{"high.mp4", "low.mp4"} {
		for _, f := range files {
			if f.Name == want {
				return f.Name
			}
		}
	}
	return ""
}
