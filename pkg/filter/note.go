package filter

import (
	"context"

	"github.com/rssfunnel/funnel/pkg/feed"
)

// NoteConfig is free-form text. The filter does nothing; it exists so a
// pipeline can carry comments that survive config round-trips and show up
// in the inspector.
type NoteConfig string

type note struct{}

func newNote(NoteConfig, BuildOptions) (Filter, error) {
	return note{}, nil
}

func (note) Run(context.Context, *feed.Feed) error { return nil }
