package hashed

import (
	"context"
	"fmt"
	"slices"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
)

// restore rebuilds the in-memory state from the journal and reseals the
// snapshot for the persisted epoch at its persisted seal point, so the
// thumbprint of an epoch survives a restart.
func (s *Store) restore(ctx context.Context) error {
	state, err := s.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading journal: %w", err)
	}

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	s.epoch = state.Epoch
	if state.Anchor != "" {
		s.anchor = state.Anchor
	}

	links := make([]link, 0, len(state.Entries)+len(state.Stubs))
	for _, st := range state.Stubs {
		links = append(links, link{seq: st.Seq, id: st.ID, prev: st.PrevHash, stub: true})
	}

	// The latest link for an id wins. An earlier one can survive only if the
	// process stopped between appending a re-post and stubbing the original.
	latest := make(map[string]*entry.Entry, len(state.Entries))
	for _, e := range state.Entries {
		if prior, ok := latest[e.ID]; !ok || prior.Seq < e.Seq {
			latest[e.ID] = e
		}
	}
	for _, e := range state.Entries {
		stub := latest[e.ID] != e
		links = append(links, link{seq: e.Seq, id: e.ID, prev: e.PrevHash, stub: stub})
		if !stub {
			s.entries.put(e)
		}
	}

	slices.SortFunc(links, func(a, b link) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	s.links = links
	s.head = s.anchor
	if n := len(links); n > 0 {
		s.head = links[n-1].id
		s.nextSeq = links[n-1].seq + 1
	}

	// Sequence numbers below the seal point stay reserved even when their
	// links were dropped, or a later post would fall into the sealed range.
	s.sealSeq = state.SealSeq
	s.nextSeq = max(s.nextSeq, s.sealSeq)

	now := s.opts.Clock()
	s.sealed.Store(snapshot.New(s.epoch, s.collect(s.epoch, s.sealSeq, now), now))

	s.opts.Logger.Info("blackboard restored from journal",
		"store", s.opts.Name,
		"epoch", s.epoch,
		"entries", len(latest),
		"links", len(links),
	)
	return nil
}
