package connect

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/tapedeck/internal/app/player"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// Messages travel as google.protobuf.Struct. Field names follow the JSON
// tags below on both sides of the wire.

// EntryView is the wire form of a queue entry.
type EntryView struct {
	InstanceID string `json:"instance_id"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artwork_url"`
	DurationMs int64  `json:"duration_ms"`
}

// ModeView is the wire form of the navigation mode.
type ModeView struct {
	Shuffle bool   `json:"shuffle"`
	Repeat  string `json:"repeat"`
}

// ProgressView is the wire form of playback progress.
type ProgressView struct {
	PositionMs int64   `json:"position_ms"`
	DurationMs int64   `json:"duration_ms"`
	BufferedMs int64   `json:"buffered_ms"`
	Percent    float64 `json:"percent"`
	Seeking    bool    `json:"seeking"`
}

// NoticeView is the wire form of a notice.
type NoticeView struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Time    string `json:"time"` // RFC 3339
}

// ChangeView is the wire form of a playback state change.
type ChangeView struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Cause    string `json:"cause"`
}

// SnapshotView is the wire form of a player snapshot.
type SnapshotView struct {
	Items     []EntryView  `json:"items"`
	Index     int          `json:"index"`
	Current   *EntryView   `json:"current"`
	Mode      ModeView     `json:"mode"`
	State     string       `json:"state"`
	Confirmed string       `json:"confirmed"`
	Pending   bool         `json:"pending"`
	Progress  ProgressView `json:"progress"`
	Notices   []NoticeView `json:"notices"`
	Change    *ChangeView  `json:"change"`
	Seq       uint64       `json:"seq"`
}

func entryMap(e track.Entry) map[string]any {
	return map[string]any{
		"instance_id": e.InstanceID,
		"id":          e.Ref.ID,
		"title":       e.Ref.Title,
		"artist":      e.Ref.Artist,
		"album":       e.Ref.Album,
		"artwork_url": e.Ref.ArtworkURL,
		"duration_ms": e.Ref.DurationMs,
	}
}

// EncodeSnapshot converts a snapshot into a Struct message.
func EncodeSnapshot(s player.Snapshot) (*structpb.Struct, error) {
	m := map[string]any{
		"items": lo.Map(s.Items, func(e track.Entry, _ int) any { return entryMap(e) }),
		"index": s.Index,
		"mode": map[string]any{
			"shuffle": s.Mode.Shuffle,
			"repeat":  s.Mode.Repeat.String(),
		},
		"state":     s.State.String(),
		"confirmed": s.Confirmed.String(),
		"pending":   s.Pending,
		"progress": map[string]any{
			"position_ms": s.Progress.PositionMs,
			"duration_ms": s.Progress.DurationMs,
			"buffered_ms": s.Progress.BufferedMs,
			"percent":     s.Progress.Percent,
			"seeking":     s.Progress.Seeking,
		},
		"notices": lo.Map(s.Notices, func(n player.Notice, _ int) any {
			return map[string]any{
				"id":      n.ID,
				"kind":    string(n.Kind),
				"message": n.Message,
				"time":    n.Time.Format(time.RFC3339),
			}
		}),
		"seq": s.Seq,
	}
	if s.Current != nil {
		m["current"] = entryMap(*s.Current)
	}
	if s.Change != nil {
		m["change"] = map[string]any{
			"previous": s.Change.Previous.String(),
			"current":  s.Change.Current.String(),
			"cause":    s.Change.Cause.String(),
		}
	}

	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}
	return msg, nil
}

// DecodeSnapshot converts a Struct message back into a SnapshotView.
func DecodeSnapshot(msg *structpb.Struct) (SnapshotView, error) {
	var v SnapshotView
	if err := decode(msg, &v); err != nil {
		return SnapshotView{}, errors.Wrap(err, "failed to decode snapshot")
	}
	return v, nil
}

// EncodeArgs converts request arguments into a Struct message. Values may
// be track.Ref (or slices of it) in addition to the types structpb accepts.
func EncodeArgs(args map[string]any) (*structpb.Struct, error) {
	m := make(map[string]any, len(args))
	for k, v := range args {
		switch x := v.(type) {
		case track.Ref:
			m[k] = refMap(x)
		case []track.Ref:
			m[k] = lo.Map(x, func(r track.Ref, _ int) any { return refMap(r) })
		default:
			m[k] = v
		}
	}
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	return msg, nil
}

func refMap(r track.Ref) map[string]any {
	return map[string]any{
		"id":          r.ID,
		"title":       r.Title,
		"artist":      r.Artist,
		"album":       r.Album,
		"artwork_url": r.ArtworkURL,
		"duration_ms": r.DurationMs,
	}
}

// decode maps a Struct message onto out using json tag names. Numbers
// arrive as float64 and strings are accepted where numbers are expected.
func decode(msg *structpb.Struct, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(msg.AsMap())
}
