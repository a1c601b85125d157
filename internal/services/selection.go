package services

import (
	"context"

	"ledger/internal/core"
)

// SubscribeSelection streams the selected ledger. The current value is sent
// right away and again after every selection change or mutation; nil means
// nothing is selected. A slow reader only ever sees the latest value. The
// channel is closed when ctx is done.
func (s *LedgerStore) SubscribeSelection(ctx context.Context) <-chan *core.Ledger {
	ch := make(chan *core.Ledger, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	offer(ch, s.currentSelection())
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, id)
		close(ch)
		s.subMu.Unlock()
	}()

	return ch
}

func (s *LedgerStore) currentSelection() *core.Ledger {
	l, ok := s.Selected()
	if !ok {
		return nil
	}
	return &l
}

func (s *LedgerStore) notifySelection() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	sel := s.currentSelection()
	for _, ch := range s.subs {
		offer(ch, sel)
	}
}

// offer replaces whatever is pending in ch with v. Only senders holding
// subMu call it, so the drain-then-send cannot race another sender.
func offer(ch chan *core.Ledger, v *core.Ledger) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
