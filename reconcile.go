package qaboard

import "errors"

// Subscriber is a source of realtime messages, typically a *Hub.
type Subscriber interface {
	Subscribe(handler MessageHandler) (unsubscribe func())
}

// Attach feeds every change broadcast on src into f. Malformed and unknown
// messages are logged and skipped. The returned func detaches the feed.
func (f *Feed) Attach(src Subscriber) (detach func()) {
	return src.Subscribe(func(msg Message) {
		ch, err := ParseChange(msg)
		if err != nil {
			if errors.Is(err, ErrUnknownMessageType) {
				f.logger.Debug("ignoring message", "type", msg.Type)
			} else {
				f.logger.Warn("dropping message", "err", err)
			}
			return
		}
		f.Apply(ch)
	})
}

// Apply reconciles one change into the window and reports whether the window
// was modified.
//
// Created questions are only ever prepended: one that would not sort before
// the current head belongs past the materialized prefix and is left for
// LoadMore to bring in. Updates to questions outside the window and deletes of
// unknown ids are no-ops. The window is re-sorted only when an update changes
// a status.
func (f *Feed) Apply(ch Change) bool {
	f.mu.Lock()
	var changed bool
	switch ch.Kind {
	case ChangeCreated:
		changed = f.applyCreatedLocked(ch.Question)
	case ChangeUpdated:
		changed = f.applyUpdatedLocked(ch.Patch)
	case ChangeDeleted:
		changed = f.applyDeletedLocked(ch.ID)
	}
	f.mu.Unlock()

	if changed {
		f.emit(EventChanged, ch)
	} else {
		f.logger.Debug("change left window untouched", "kind", ch.Kind, "id", ch.ID)
	}
	return changed
}

func (f *Feed) applyCreatedLocked(q Question) bool {
	if q.ID == 0 || q.Timestamp == "" {
		return false
	}
	if f.indexLocked(q.ID) >= 0 {
		return false
	}
	if len(f.items) == 0 {
		f.items = []Question{q}
		return true
	}
	if !SortsBefore(q, f.items[0]) {
		return false
	}
	f.items = append([]Question{q}, f.items...)
	return true
}

func (f *Feed) applyUpdatedLocked(p QuestionPatch) bool {
	i := f.indexLocked(p.ID)
	if i < 0 {
		return false
	}
	merged, statusChanged := p.Merge(f.items[i])
	f.items[i] = merged
	if statusChanged {
		SortQuestions(f.items)
	}
	return true
}

func (f *Feed) applyDeletedLocked(id int) bool {
	i := f.indexLocked(id)
	if i < 0 {
		return false
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	return true
}
